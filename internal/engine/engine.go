// Package engine orchestrates the reservation core: validation and pricing
// on the way in, actor authorization and bounded retries around the store's
// atomic operations. No SQL and no HTTP here.
package engine

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/stayhive/guesthouse-reservations/internal/domain"
	"github.com/stayhive/guesthouse-reservations/internal/identity"
	"github.com/stayhive/guesthouse-reservations/internal/observability"
)

// Store is the reservation persistence contract. The conflict-sensitive
// operations (CreateIfAvailable, UpdateStatus to APPROVED) are atomic with
// respect to the room's active reservation set.
type Store interface {
	CreateIfAvailable(ctx context.Context, res domain.Reservation, members []domain.ReservationMember) error
	UpdateStatus(ctx context.Context, id uuid.UUID, target domain.Status, actor domain.Actor, notes string) (*domain.Reservation, error)
	AddMembers(ctx context.Context, id uuid.UUID, members []domain.ReservationMember) error
	SetPaymentStatus(ctx context.Context, id uuid.UUID, payment domain.PaymentStatus) error
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	ListActiveByRoom(ctx context.Context, roomID uuid.UUID) ([]domain.Reservation, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]domain.Reservation, error)
}

// Catalog is the read-only room metadata collaborator.
type Catalog interface {
	GetRoom(ctx context.Context, id uuid.UUID) (domain.Room, error)
}

// AvailabilityCache is optional; answers are advisory and may be stale.
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, roomID, checkIn, checkOut string) (bool, bool, error)
	SetAvailability(ctx context.Context, roomID, checkIn, checkOut string, available bool, ttl time.Duration) error
	InvalidateRoom(ctx context.Context, roomID string) error
}

// Audit mirrors committed changes into the operator-facing audit store.
// Failures are logged and swallowed; the SQL history table is the record.
type Audit interface {
	LogReservation(ctx context.Context, res domain.Reservation) error
	LogTransition(ctx context.Context, res domain.Reservation, actor domain.Actor, from domain.Status) error
}

type Engine struct {
	store    Store
	catalog  Catalog
	ident    identity.Provider
	cache    AvailabilityCache
	audit    Audit
	logger   observability.Logger
	retries  int
	backoff  time.Duration
	cacheTTL time.Duration
}

func New(store Store, catalog Catalog, ident identity.Provider, cache AvailabilityCache, audit Audit, logger observability.Logger, retries int, backoff, cacheTTL time.Duration) *Engine {
	if retries < 1 {
		retries = 1
	}
	return &Engine{
		store:    store,
		catalog:  catalog,
		ident:    ident,
		cache:    cache,
		audit:    audit,
		logger:   logger,
		retries:  retries,
		backoff:  backoff,
		cacheTTL: cacheTTL,
	}
}

// withRetry runs op, retrying only errors the store guard makes safe to
// retry (serialization failures, timeouts). Conflicts and validation errors
// are definitive and returned as-is.
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < e.retries; attempt++ {
		if attempt > 0 {
			backoff := e.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		err = op()
		if err == nil || !domain.Retryable(err) {
			return err
		}
	}
	return err
}

// RequestReservation validates and prices a candidate against catalog data,
// then hands it to the store's atomic create. The reservation comes back
// PENDING or not at all; an overlap is a definitive domain.ErrConflict.
func (e *Engine) RequestReservation(ctx context.Context, requesterID, roomID uuid.UUID, checkIn, checkOut time.Time, guestCount int, notes string, members []domain.ReservationMember) (*domain.Reservation, error) {
	room, err := e.catalog.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	res, err := domain.NewReservation(requesterID, room, checkIn, checkOut, guestCount, notes)
	if err != nil {
		return nil, err
	}

	err = e.withRetry(ctx, func() error {
		return e.store.CreateIfAvailable(ctx, res, members)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			observability.ReservationConflicts.Inc()
		}
		return nil, err
	}
	res.Members = members

	observability.ReservationsCreated.Inc()
	e.invalidate(ctx, roomID)
	if e.audit != nil {
		e.audit.LogReservation(ctx, res)
	}
	e.logger.WithField("reservation_id", res.ID).WithField("room_id", roomID).Info("reservation requested")
	return &res, nil
}

// TransitionStatus resolves the actor's role, checks ownership for
// requesters, and delegates to the store, which re-validates the transition
// and re-checks availability for approvals inside the same transaction.
func (e *Engine) TransitionStatus(ctx context.Context, actorID, reservationID uuid.UUID, target domain.Status, notes string) (*domain.Reservation, error) {
	actor, current, err := e.resolveActor(ctx, actorID, reservationID)
	if err != nil {
		return nil, err
	}

	var updated *domain.Reservation
	err = e.withRetry(ctx, func() error {
		var opErr error
		updated, opErr = e.store.UpdateStatus(ctx, reservationID, target, actor, notes)
		return opErr
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			observability.ReservationConflicts.Inc()
		}
		return nil, err
	}

	observability.TransitionsTotal.WithLabelValues(string(target)).Inc()
	e.invalidate(ctx, updated.RoomID)
	if e.audit != nil {
		e.audit.LogTransition(ctx, *updated, actor, current.Status)
	}
	e.logger.WithField("reservation_id", reservationID).
		WithField("from", string(current.Status)).
		WithField("to", string(target)).
		Info("reservation transitioned")
	return updated, nil
}

// AddMembers attaches occupants while the reservation is still PENDING.
func (e *Engine) AddMembers(ctx context.Context, actorID, reservationID uuid.UUID, members []domain.ReservationMember) error {
	if _, _, err := e.resolveActor(ctx, actorID, reservationID); err != nil {
		return err
	}
	return e.withRetry(ctx, func() error {
		return e.store.AddMembers(ctx, reservationID, members)
	})
}

// PaymentResult is the payment collaborator's completion signal. Success
// drives APPROVED -> PAID on the requester's behalf; failure only records
// the advisory payment axis and leaves the lifecycle alone.
func (e *Engine) PaymentResult(ctx context.Context, reservationID uuid.UUID, succeeded bool, notes string) (*domain.Reservation, error) {
	res, err := e.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !succeeded {
		if err := e.store.SetPaymentStatus(ctx, reservationID, domain.PaymentFailed); err != nil {
			return nil, err
		}
		res.PaymentStatus = domain.PaymentFailed
		return res, nil
	}
	return e.TransitionStatus(ctx, res.RequesterID, reservationID, domain.StatusPaid, notes)
}

// CheckAvailability is the advisory read: true means the range had no
// active overlap at the time of the check. Only a create is binding.
func (e *Engine) CheckAvailability(ctx context.Context, roomID uuid.UUID, checkIn, checkOut time.Time) (bool, error) {
	checkIn = checkIn.UTC().Truncate(24 * time.Hour)
	checkOut = checkOut.UTC().Truncate(24 * time.Hour)
	if !checkIn.Before(checkOut) {
		return false, domain.ErrInvalidInput
	}

	inStr, outStr := checkIn.Format("2006-01-02"), checkOut.Format("2006-01-02")
	if e.cache != nil {
		if avail, hit, err := e.cache.GetAvailability(ctx, roomID.String(), inStr, outStr); err == nil && hit {
			return avail, nil
		}
	}

	existing, err := e.store.ListActiveByRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	available := domain.FirstConflict(existing, checkIn, checkOut) == nil

	if e.cache != nil {
		if err := e.cache.SetAvailability(ctx, roomID.String(), inStr, outStr, available, e.cacheTTL); err != nil {
			e.logger.WithError(err).Warn("availability cache set failed")
		}
	}
	return available, nil
}

// GetReservation returns a reservation to its requester or to an operator.
func (e *Engine) GetReservation(ctx context.Context, actorID, reservationID uuid.UUID) (*domain.Reservation, error) {
	_, res, err := e.resolveActor(ctx, actorID, reservationID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListByRequester lists a requester's own reservations; operators may list
// anyone's.
func (e *Engine) ListByRequester(ctx context.Context, actorID, requesterID uuid.UUID) ([]domain.Reservation, error) {
	if actorID != requesterID {
		op, err := e.ident.IsOperator(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if !op {
			return nil, domain.ErrForbidden
		}
	}
	return e.store.ListByRequester(ctx, requesterID)
}

// resolveActor loads the reservation and decides the caller's role.
// Requesters may only touch their own reservations.
func (e *Engine) resolveActor(ctx context.Context, actorID, reservationID uuid.UUID) (domain.Actor, *domain.Reservation, error) {
	res, err := e.store.GetReservation(ctx, reservationID)
	if err != nil {
		return domain.Actor{}, nil, err
	}

	op, err := e.ident.IsOperator(ctx, actorID)
	if err != nil {
		return domain.Actor{}, nil, err
	}
	if op {
		return domain.Actor{ID: actorID, Role: domain.RoleOperator}, res, nil
	}
	if res.RequesterID != actorID {
		return domain.Actor{}, nil, domain.ErrForbidden
	}
	return domain.Actor{ID: actorID, Role: domain.RoleRequester}, res, nil
}

func (e *Engine) invalidate(ctx context.Context, roomID uuid.UUID) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateRoom(ctx, roomID.String()); err != nil {
		e.logger.WithError(err).Warn("availability cache invalidation failed")
	}
}
