package mongo

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/stayhive/guesthouse-reservations/internal/domain"
	"github.com/stayhive/guesthouse-reservations/internal/observability"
)

// CatalogRepository reads room metadata owned by the catalog service. The
// reservation core never writes rooms; CreateRoom exists for seeding and
// tests.
type CatalogRepository struct {
	rooms  *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		rooms:  db.Collection("rooms"),
		logger: logger,
	}
}

type RoomDoc struct {
	ID             uuid.UUID `bson:"_id"`
	GuestHouseID   uuid.UUID `bson:"guest_house_id"`
	Type           string    `bson:"type"` // AC | NON_AC
	PricePerPerson float64   `bson:"price_per_person"`
	MaxOccupancy   int       `bson:"max_occupancy"`
}

func (c *CatalogRepository) GetRoom(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	var doc RoomDoc
	err := c.rooms.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Room{}, domain.ErrNotFound
	}
	if err != nil {
		c.logger.WithField("room_id", id).Error("failed to get room", err)
		return domain.Room{}, err
	}
	return domain.Room{
		ID:             doc.ID,
		GuestHouseID:   doc.GuestHouseID,
		Type:           domain.RoomType(doc.Type),
		PricePerPerson: doc.PricePerPerson,
		MaxOccupancy:   doc.MaxOccupancy,
	}, nil
}

func (c *CatalogRepository) CreateRoom(ctx context.Context, doc RoomDoc) error {
	_, err := c.rooms.InsertOne(ctx, doc)
	if err != nil {
		c.logger.Error("failed to create room", err)
	}
	return err
}
