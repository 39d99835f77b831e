package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stayhive/guesthouse-reservations/internal/adapters/crdb"
	mongoadapter "github.com/stayhive/guesthouse-reservations/internal/adapters/mongo"
	"github.com/stayhive/guesthouse-reservations/internal/adapters/rabbit"
	redisadapter "github.com/stayhive/guesthouse-reservations/internal/adapters/redis"
	"github.com/stayhive/guesthouse-reservations/internal/engine"
	httphandler "github.com/stayhive/guesthouse-reservations/internal/http"
	"github.com/stayhive/guesthouse-reservations/internal/idempotency"
	"github.com/stayhive/guesthouse-reservations/internal/identity"
	"github.com/stayhive/guesthouse-reservations/internal/observability"
	"github.com/stayhive/guesthouse-reservations/internal/outbox"
	"github.com/stayhive/guesthouse-reservations/internal/rateLimit"
	"github.com/stayhive/guesthouse-reservations/migrations"
)

func TestIntegration_RequestApprovePayConfirm(t *testing.T) {
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer crdbContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForExec([]string{"mongosh", "--eval", "db.runCommand('ping').ok"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("15672"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	crdbEndpoint, err := crdbContainer.PortEndpoint(ctx, "26257", "")
	if err != nil {
		t.Fatal(err)
	}
	mongoEndpoint, err := mongoContainer.PortEndpoint(ctx, "27017", "")
	if err != nil {
		t.Fatal(err)
	}
	redisEndpoint, err := redisContainer.PortEndpoint(ctx, "6379", "")
	if err != nil {
		t.Fatal(err)
	}
	rabbitEndpoint, err := rabbitContainer.PortEndpoint(ctx, "5672", "")
	if err != nil {
		t.Fatal(err)
	}

	dsn := "postgresql://root@" + crdbEndpoint + "/defaultdb?sslmode=disable"

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		t.Fatal(err)
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatal(err)
	}
	if err := goose.Up(db, "."); err != nil {
		t.Fatal(err)
	}
	db.Close()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	store := crdb.NewRepository(pool, 10*time.Second)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+mongoEndpoint))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	mongoDB := mongoClient.Database("stay")
	logger := observability.NewLogger()
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: redisEndpoint})
	cache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour)
	rl := rateLimit.NewRateLimiter(cache)

	rabbitConn, err := amqp.Dial("amqp://guest:guest@" + rabbitEndpoint + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		t.Fatal(err)
	}
	consumer, err := rabbit.NewConsumer(rabbitConn, "stay.events.test", "reservation.*")
	if err != nil {
		t.Fatal(err)
	}
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}

	outboxCtx, stopOutbox := context.WithCancel(ctx)
	defer stopOutbox()
	go outbox.NewPublisher(store, rabbitPub, logger).Run(outboxCtx, 200*time.Millisecond)

	operatorID := uuid.New()
	ident := identity.NewStaticProvider([]string{operatorID.String()})
	eng := engine.New(store, catalog, ident, cache, audit, logger, 3, 100*time.Millisecond, 30*time.Second)

	handlers := httphandler.NewHandlers(eng, idemp)
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, logger, rl))
	defer srv.Close()

	roomID := uuid.New()
	requesterID := uuid.New()
	if err := catalog.CreateRoom(ctx, mongoadapter.RoomDoc{
		ID:             roomID,
		GuestHouseID:   uuid.New(),
		Type:           "AC",
		PricePerPerson: 600,
		MaxOccupancy:   2,
	}); err != nil {
		t.Fatal(err)
	}

	call := func(method, path string, actor uuid.UUID, body map[string]interface{}) *http.Response {
		var payload []byte
		if body != nil {
			payload, _ = json.Marshal(body)
		}
		req, _ := http.NewRequest(method, srv.URL+path, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Actor-ID", actor.String())
		if method == http.MethodPost {
			req.Header.Set("Idempotency-Key", uuid.New().String())
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	// request
	resp := call(http.MethodPost, "/v1/reservations", requesterID, map[string]interface{}{
		"room_id":     roomID.String(),
		"check_in":    "2026-09-10",
		"check_out":   "2026-09-13",
		"guest_count": 2,
		"members": []map[string]interface{}{
			{"full_name": "Ana Petrova", "document_ref": "doc://passports/7281"},
			{"full_name": "Ivan Petrov", "document_ref": "doc://passports/7282"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create failed, status: %d", resp.StatusCode)
	}
	var created struct {
		ReservationID uuid.UUID `json:"reservation_id"`
		Status        string    `json:"status"`
		TotalAmount   float64   `json:"total_amount"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if created.Status != "PENDING" {
		t.Fatalf("expected PENDING, got %s", created.Status)
	}
	if created.TotalAmount != 3600 {
		t.Fatalf("expected total 3600, got %v", created.TotalAmount)
	}

	// overlapping request from another guest loses
	resp = call(http.MethodPost, "/v1/reservations", uuid.New(), map[string]interface{}{
		"room_id":     roomID.String(),
		"check_in":    "2026-09-12",
		"check_out":   "2026-09-15",
		"guest_count": 1,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for overlap, got %d", resp.StatusCode)
	}

	// approve as operator
	resID := created.ReservationID.String()
	resp = call(http.MethodPatch, "/v1/reservations/"+resID+"/status", operatorID, map[string]interface{}{
		"target_status": "APPROVED",
		"notes":         "room inspected",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve failed, status: %d", resp.StatusCode)
	}

	// payment callback
	resp = call(http.MethodPost, "/v1/payments/callback", requesterID, map[string]interface{}{
		"reservation_id": resID,
		"status":         "SUCCEEDED",
		"transaction_id": "tx123",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("payment callback failed, status: %d", resp.StatusCode)
	}

	// confirm as operator
	resp = call(http.MethodPatch, "/v1/reservations/"+resID+"/status", operatorID, map[string]interface{}{
		"target_status": "CONFIRMED",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm failed, status: %d", resp.StatusCode)
	}

	// requester sees the final state
	resp = call(http.MethodGet, "/v1/reservations/"+resID, requesterID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get failed, status: %d", resp.StatusCode)
	}
	var got struct {
		Status        string `json:"status"`
		PaymentStatus string `json:"payment_status"`
	}
	json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()
	if got.Status != "CONFIRMED" {
		t.Errorf("expected status CONFIRMED, got %s", got.Status)
	}
	if got.PaymentStatus != "COMPLETED" {
		t.Errorf("expected payment COMPLETED, got %s", got.PaymentStatus)
	}

	// the outbox publisher delivered lifecycle events to the exchange
	received := map[string]bool{}
	timeout := time.After(10 * time.Second)
	for len(received) < 4 {
		select {
		case d := <-deliveries:
			received[d.RoutingKey] = true
			d.Ack(false)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", received)
		}
	}
	for _, key := range []string{"reservation.requested", "reservation.approved", "reservation.paid", "reservation.confirmed"} {
		if !received[key] {
			t.Errorf("missing event %s", key)
		}
	}
}
