package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusPaid      Status = "PAID"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// PaymentStatus is an independent axis from Status. It records what the
// payment collaborator last reported and never gates a transition by itself.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

type RoomType string

const (
	RoomAirConditioned    RoomType = "AC"
	RoomNonAirConditioned RoomType = "NON_AC"
)

// Room is catalog data, immutable from this core's point of view.
type Room struct {
	ID             uuid.UUID
	GuestHouseID   uuid.UUID
	Type           RoomType
	PricePerPerson float64
	MaxOccupancy   int
}

type Reservation struct {
	ID            uuid.UUID
	RequesterID   uuid.UUID
	RoomID        uuid.UUID
	CheckIn       time.Time
	CheckOut      time.Time // exclusive
	GuestCount    int
	TotalAmount   float64
	Status        Status
	PaymentStatus PaymentStatus
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Members       []ReservationMember
}

// ReservationMember is an occupant manifest entry. DocumentRef is an opaque
// reference into the evidence store; the content never passes through here.
type ReservationMember struct {
	ID            uuid.UUID
	ReservationID uuid.UUID
	FullName      string
	DocumentRef   string
}

// Active reports whether the reservation blocks its room's dates.
// Rejected and cancelled reservations release the range.
func (r Reservation) Active() bool {
	return r.Status != StatusRejected && r.Status != StatusCancelled
}

// NewReservation validates the request and prices it. TotalAmount is fixed
// here and never recomputed by later transitions.
func NewReservation(requesterID uuid.UUID, room Room, checkIn, checkOut time.Time, guestCount int, notes string) (Reservation, error) {
	checkIn = checkIn.UTC().Truncate(24 * time.Hour)
	checkOut = checkOut.UTC().Truncate(24 * time.Hour)
	if !checkIn.Before(checkOut) {
		return Reservation{}, ErrInvalidInput
	}
	if guestCount < 1 || guestCount > room.MaxOccupancy {
		return Reservation{}, ErrInvalidInput
	}
	return Reservation{
		ID:            uuid.New(),
		RequesterID:   requesterID,
		RoomID:        room.ID,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		GuestCount:    guestCount,
		TotalAmount:   float64(Nights(checkIn, checkOut)) * float64(guestCount) * room.PricePerPerson,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Notes:         notes,
	}, nil
}
