package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayhive/guesthouse-reservations/internal/domain"
	"github.com/stayhive/guesthouse-reservations/internal/observability"
)

const (
	SerializationFailureCode = "40001"
)

// Repository is the reservation store. Every conflict-sensitive write runs
// in a SERIALIZABLE transaction that re-checks room availability before
// writing, so the check and the insert commit or fail as one unit. That is
// what keeps two concurrent requests for overlapping dates from both
// succeeding, with no in-process lock and across any number of API
// instances.
type Repository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewRepository(pool *pgxpool.Pool, timeout time.Duration) *Repository {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Repository{pool: pool, timeout: timeout}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return translate(ctx, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return translate(ctx, err)
	}

	if err := fn(tx); err != nil {
		return translate(ctx, err)
	}

	return translate(ctx, tx.Commit(ctx))
}

// translate maps driver-level failures onto the domain taxonomy. A bounded
// deadline turning into ErrStorageTimeout is what lets the engine retry
// instead of hanging.
func translate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
		return domain.ErrSerializationFailure
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrStorageTimeout
	}
	return err
}

const activeFilter = `status NOT IN ('REJECTED', 'CANCELLED')`

// hasConflict is the in-transaction availability re-check. exclude skips the
// reservation being approved so it does not conflict with itself.
func hasConflict(ctx context.Context, tx pgx.Tx, roomID uuid.UUID, checkIn, checkOut time.Time, exclude uuid.UUID) (bool, error) {
	var found bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE room_id = $1 AND id != $2 AND `+activeFilter+`
			AND check_in < $4 AND $3 < check_out
		)
	`, roomID, exclude, checkIn, checkOut).Scan(&found)
	return found, err
}

// CreateIfAvailable inserts res with status PENDING iff no active
// reservation on the same room overlaps [CheckIn, CheckOut). On overlap
// nothing is written and domain.ErrConflict is returned. Members, the
// status-history row, and the outbox event commit atomically with the
// reservation.
func (r *Repository) CreateIfAvailable(ctx context.Context, res domain.Reservation, members []domain.ReservationMember) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.WithTx(ctx, func(tx pgx.Tx) error {
		conflict, err := hasConflict(ctx, tx, res.RoomID, res.CheckIn, res.CheckOut, res.ID)
		if err != nil {
			return err
		}
		if conflict {
			return domain.ErrConflict
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO reservations
				(id, requester_id, room_id, check_in, check_out, guest_count, total_amount, status, payment_status, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', 'PENDING', $8)
		`, res.ID, res.RequesterID, res.RoomID, res.CheckIn, res.CheckOut, res.GuestCount, res.TotalAmount, res.Notes)
		if err != nil {
			return err
		}

		if err := insertMembers(ctx, tx, res.ID, members); err != nil {
			return err
		}

		if err := insertHistory(ctx, tx, res.ID, "", domain.StatusPending, domain.Actor{ID: res.RequesterID, Role: domain.RoleRequester}, res.Notes); err != nil {
			return err
		}

		return insertReservationEvent(ctx, tx, res, "reservation.requested")
	})
}

func insertMembers(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID, members []domain.ReservationMember) error {
	if len(members) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range members {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		batch.Queue(`
			INSERT INTO reservation_members (id, reservation_id, full_name, document_ref)
			VALUES ($1, $2, $3, $4)
		`, m.ID, reservationID, m.FullName, m.DocumentRef)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func insertHistory(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID, from, to domain.Status, actor domain.Actor, notes string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reservation_status_history
			(id, reservation_id, from_status, to_status, actor_id, actor_role, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), reservationID, string(from), string(to), actor.ID, string(actor.Role), notes)
	return err
}

// UpdateStatus moves a reservation along the lifecycle table. The current
// row is locked, the transition is validated against the state machine, and
// for approval the room's other active reservations are re-checked for
// overlap in the same transaction (first-approved-wins). PAID also records
// payment completion on the independent payment axis.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, target domain.Status, actor domain.Actor, notes string) (*domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var updated domain.Reservation
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		res, err := lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := domain.CanTransition(res.Status, target, actor.Role); err != nil {
			return err
		}

		if target == domain.StatusApproved {
			conflict, err := hasConflict(ctx, tx, res.RoomID, res.CheckIn, res.CheckOut, res.ID)
			if err != nil {
				return err
			}
			if conflict {
				return domain.ErrConflict
			}
		}

		payment := res.PaymentStatus
		if target == domain.StatusPaid {
			payment = domain.PaymentCompleted
		}

		err = tx.QueryRow(ctx, `
			UPDATE reservations
			SET status = $2, payment_status = $3, notes = $4, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`, id, string(target), string(payment), notes).Scan(&res.UpdatedAt)
		if err != nil {
			return err
		}

		if err := insertHistory(ctx, tx, id, res.Status, target, actor, notes); err != nil {
			return err
		}

		res.Status = target
		res.PaymentStatus = payment
		res.Notes = notes
		updated = res

		return insertReservationEvent(ctx, tx, res, eventType(target))
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// AddMembers attaches occupants to a reservation that is still PENDING.
// Anything later in the lifecycle rejects the attempt with
// domain.ErrReservationNotPending rather than silently ignoring it.
func (r *Repository) AddMembers(ctx context.Context, id uuid.UUID, members []domain.ReservationMember) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.WithTx(ctx, func(tx pgx.Tx) error {
		res, err := lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		if res.Status != domain.StatusPending {
			return domain.ErrReservationNotPending
		}
		return insertMembers(ctx, tx, id, members)
	})
}

// SetPaymentStatus records what the payment collaborator reported. It is
// advisory only and never moves the lifecycle; a failed payment leaves the
// reservation APPROVED until someone cancels or the payment is retried.
func (r *Repository) SetPaymentStatus(ctx context.Context, id uuid.UUID, payment domain.PaymentStatus) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE reservations SET payment_status = $2, updated_at = now() WHERE id = $1
	`, id, string(payment))
	if err != nil {
		return translate(ctx, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func lockReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID) (domain.Reservation, error) {
	var res domain.Reservation
	var status, payment string
	err := tx.QueryRow(ctx, `
		SELECT id, requester_id, room_id, check_in, check_out, guest_count,
		       total_amount, status, payment_status, notes, created_at, updated_at
		FROM reservations WHERE id = $1 FOR UPDATE
	`, id).Scan(&res.ID, &res.RequesterID, &res.RoomID, &res.CheckIn, &res.CheckOut,
		&res.GuestCount, &res.TotalAmount, &status, &payment, &res.Notes,
		&res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return res, domain.ErrNotFound
	}
	if err != nil {
		return res, err
	}
	res.Status = domain.Status(status)
	res.PaymentStatus = domain.PaymentStatus(payment)
	return res, nil
}

const reservationColumns = `
	id, requester_id, room_id, check_in, check_out, guest_count,
	total_amount, status, payment_status, notes, created_at, updated_at`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var res domain.Reservation
	var status, payment string
	err := row.Scan(&res.ID, &res.RequesterID, &res.RoomID, &res.CheckIn, &res.CheckOut,
		&res.GuestCount, &res.TotalAmount, &status, &payment, &res.Notes,
		&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return res, err
	}
	res.Status = domain.Status(status)
	res.PaymentStatus = domain.PaymentStatus(payment)
	return res, nil
}

// GetReservation returns a reservation with its member manifest.
func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := scanReservation(r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, translate(ctx, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, reservation_id, full_name, document_ref
		FROM reservation_members WHERE reservation_id = $1
	`, id)
	if err != nil {
		return nil, translate(ctx, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.ReservationMember
		if err := rows.Scan(&m.ID, &m.ReservationID, &m.FullName, &m.DocumentRef); err != nil {
			return nil, err
		}
		res.Members = append(res.Members, m)
	}
	return &res, rows.Err()
}

// ListActiveByRoom returns the reservations that currently block dates on a
// room. This is the overlap checker's read.
func (r *Repository) ListActiveByRoom(ctx context.Context, roomID uuid.UUID) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE room_id = $1 AND `+activeFilter+`
		ORDER BY check_in
	`, roomID)
	if err != nil {
		return nil, translate(ctx, err)
	}
	defer rows.Close()
	return collect(rows)
}

// ListByRequester returns all of one requester's reservations, newest first.
func (r *Repository) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE requester_id = $1
		ORDER BY created_at DESC
	`, requesterID)
	if err != nil {
		return nil, translate(ctx, err)
	}
	defer rows.Close()
	return collect(rows)
}

// ListStalePending returns PENDING reservations created before cutoff,
// candidates for the sweeper's automatic cancellation.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = 'PENDING' AND created_at <= $1
	`, cutoff)
	if err != nil {
		return nil, translate(ctx, err)
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func eventType(s domain.Status) string {
	switch s {
	case domain.StatusApproved:
		return "reservation.approved"
	case domain.StatusRejected:
		return "reservation.rejected"
	case domain.StatusPaid:
		return "reservation.paid"
	case domain.StatusConfirmed:
		return "reservation.confirmed"
	case domain.StatusCancelled:
		return "reservation.cancelled"
	default:
		return "reservation.requested"
	}
}
