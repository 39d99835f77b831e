package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/stayhive/guesthouse-reservations/internal/domain"
	"github.com/stayhive/guesthouse-reservations/internal/observability"
)

// AuditLogger mirrors lifecycle transitions into a mongo collection for
// operators. The SQL status-history table stays the source of truth; this
// copy is for ad-hoc querying and is allowed to lag or fail soft.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("reservation_audit"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	ActorID   uuid.UUID `bson:"actor_id"`
	ActorRole string    `bson:"actor_role"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, actor domain.Actor, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		ActorID:   actor.ID,
		ActorRole: string(actor.Role),
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogTransition(ctx context.Context, res domain.Reservation, actor domain.Actor, from domain.Status) error {
	data := map[string]interface{}{
		"reservation_id": res.ID,
		"room_id":        res.RoomID,
		"from_status":    from,
		"to_status":      res.Status,
		"notes":          res.Notes,
	}
	return a.LogEvent(ctx, "reservation.transition", actor, data)
}

func (a *AuditLogger) LogReservation(ctx context.Context, res domain.Reservation) error {
	data := map[string]interface{}{
		"reservation_id": res.ID,
		"room_id":        res.RoomID,
		"check_in":       res.CheckIn.Format("2006-01-02"),
		"check_out":      res.CheckOut.Format("2006-01-02"),
		"total_amount":   res.TotalAmount,
	}
	return a.LogEvent(ctx, "reservation.requested", domain.Actor{ID: res.RequesterID, Role: domain.RoleRequester}, data)
}
