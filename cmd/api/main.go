package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stayhive/guesthouse-reservations/internal/adapters/crdb"
	mongoadapter "github.com/stayhive/guesthouse-reservations/internal/adapters/mongo"
	"github.com/stayhive/guesthouse-reservations/internal/adapters/rabbit"
	redisadapter "github.com/stayhive/guesthouse-reservations/internal/adapters/redis"
	"github.com/stayhive/guesthouse-reservations/internal/config"
	"github.com/stayhive/guesthouse-reservations/internal/engine"
	httphandler "github.com/stayhive/guesthouse-reservations/internal/http"
	"github.com/stayhive/guesthouse-reservations/internal/idempotency"
	"github.com/stayhive/guesthouse-reservations/internal/identity"
	"github.com/stayhive/guesthouse-reservations/internal/observability"
	"github.com/stayhive/guesthouse-reservations/internal/rateLimit"
	"github.com/stayhive/guesthouse-reservations/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	if err := migrate(cfg.DBDSN); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer pool.Close()
	store := crdb.NewRepository(pool, cfg.StorageTimeout)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("stay")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(cache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	if _, err := rabbit.NewPublisher(rabbitConn); err != nil {
		log.Fatalf("failed to declare exchange: %v", err)
	}

	ident := identity.NewStaticProvider(cfg.OperatorIDs)
	eng := engine.New(store, catalog, ident, cache, audit, logger, cfg.WriteRetries, cfg.RetryBackoff, cfg.AvailCacheTTL)

	handlers := httphandler.NewHandlers(eng, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}

func migrate(dsn string) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}
