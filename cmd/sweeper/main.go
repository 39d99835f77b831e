package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayhive/guesthouse-reservations/internal/adapters/crdb"
	"github.com/stayhive/guesthouse-reservations/internal/config"
	"github.com/stayhive/guesthouse-reservations/internal/domain"
	"github.com/stayhive/guesthouse-reservations/internal/observability"
)

// The sweeper cancels PENDING reservations nobody acted on within the
// configured TTL, so abandoned requests stop blocking their rooms. It acts
// as an operator; pending -> cancelled is always a legal transition.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool, cfg.StorageTimeout)

	actorID, _ := uuid.Parse(os.Getenv("SWEEPER_ACTOR_ID"))

	sweeper := NewSweeper(repo, logger, domain.Actor{ID: actorID, Role: domain.RoleOperator}, cfg.PendingTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown sweeper")
}

type Sweeper struct {
	repo   *crdb.Repository
	logger observability.Logger
	actor  domain.Actor
	ttl    time.Duration
}

func NewSweeper(repo *crdb.Repository, logger observability.Logger, actor domain.Actor, ttl time.Duration) *Sweeper {
	return &Sweeper{repo: repo, logger: logger, actor: actor, ttl: ttl}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			stale, err := s.repo.ListStalePending(ctx, now.Add(-s.ttl))
			if err != nil {
				s.logger.Error("failed to list stale pending reservations", err)
				continue
			}
			for _, res := range stale {
				if err := s.cancelWithRetry(ctx, res.ID); err != nil {
					s.logger.WithField("reservation_id", res.ID).WithError(err).Error("failed to cancel stale reservation")
				}
			}
		}
	}
}

func (s *Sweeper) cancelWithRetry(ctx context.Context, id uuid.UUID) error {
	var err error
	for i := 0; i < 3; i++ {
		if i > 0 {
			backoff := time.Duration(1<<(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		_, err = s.repo.UpdateStatus(ctx, id, domain.StatusCancelled, s.actor, "auto-cancelled: pending past TTL")
		if err == nil || errors.Is(err, domain.ErrInvalidTransition) {
			// someone acted on it between the list and the cancel
			return nil
		}
		if !domain.Retryable(err) {
			return err
		}
	}
	return err
}
