package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayhive/guesthouse-reservations/internal/domain"
	"github.com/stayhive/guesthouse-reservations/internal/engine"
	httphandler "github.com/stayhive/guesthouse-reservations/internal/http"
	"github.com/stayhive/guesthouse-reservations/internal/idempotency"
	"github.com/stayhive/guesthouse-reservations/internal/observability"
)

type stubStore struct {
	createErr    error
	updateErr    error
	reservations map[uuid.UUID]*domain.Reservation
	active       []domain.Reservation
}

func (s *stubStore) CreateIfAvailable(ctx context.Context, res domain.Reservation, members []domain.ReservationMember) error {
	if s.createErr != nil {
		return s.createErr
	}
	stored := res
	stored.Members = members
	if s.reservations == nil {
		s.reservations = map[uuid.UUID]*domain.Reservation{}
	}
	s.reservations[res.ID] = &stored
	return nil
}

func (s *stubStore) UpdateStatus(ctx context.Context, id uuid.UUID, target domain.Status, actor domain.Actor, notes string) (*domain.Reservation, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	res, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := domain.CanTransition(res.Status, target, actor.Role); err != nil {
		return nil, err
	}
	res.Status = target
	return res, nil
}

func (s *stubStore) AddMembers(ctx context.Context, id uuid.UUID, members []domain.ReservationMember) error {
	res, ok := s.reservations[id]
	if !ok {
		return domain.ErrNotFound
	}
	if res.Status != domain.StatusPending {
		return domain.ErrReservationNotPending
	}
	res.Members = append(res.Members, members...)
	return nil
}

func (s *stubStore) SetPaymentStatus(ctx context.Context, id uuid.UUID, payment domain.PaymentStatus) error {
	res, ok := s.reservations[id]
	if !ok {
		return domain.ErrNotFound
	}
	res.PaymentStatus = payment
	return nil
}

func (s *stubStore) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	res, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return res, nil
}

func (s *stubStore) ListActiveByRoom(ctx context.Context, roomID uuid.UUID) ([]domain.Reservation, error) {
	return s.active, nil
}

func (s *stubStore) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, res := range s.reservations {
		if res.RequesterID == requesterID {
			out = append(out, *res)
		}
	}
	return out, nil
}

type stubCatalog struct {
	room domain.Room
}

func (c *stubCatalog) GetRoom(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	if id != c.room.ID {
		return domain.Room{}, domain.ErrNotFound
	}
	return c.room, nil
}

type stubIdentity struct {
	operator uuid.UUID
}

func (s *stubIdentity) IsOperator(ctx context.Context, id uuid.UUID) (bool, error) {
	return id == s.operator, nil
}

func newServer(store *stubStore, room domain.Room, operatorID uuid.UUID) *httptest.Server {
	eng := engine.New(store, &stubCatalog{room: room}, &stubIdentity{operator: operatorID},
		nil, nil, observability.NewLogger(), 1, time.Millisecond, time.Second)
	h := httphandler.NewHandlers(eng, idempotency.NewIdempotency(nil, time.Hour))
	return httptest.NewServer(httphandler.SetupRouter(h, observability.NewLogger(), nil))
}

func doJSON(t *testing.T, method, url string, actor uuid.UUID, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", actor.String())
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestCreateReservation(t *testing.T) {
	room := domain.Room{ID: uuid.New(), PricePerPerson: 600, MaxOccupancy: 2}
	srv := newServer(&stubStore{}, room, uuid.New())
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/reservations", uuid.New(), map[string]interface{}{
		"room_id":     room.ID,
		"check_in":    "2024-06-01",
		"check_out":   "2024-06-04",
		"guest_count": 2,
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body struct {
		ReservationID uuid.UUID `json:"reservation_id"`
		Status        string    `json:"status"`
		TotalAmount   float64   `json:"total_amount"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "PENDING", body.Status)
	assert.Equal(t, 3600.0, body.TotalAmount)
}

func TestCreateReservation_Conflict(t *testing.T) {
	room := domain.Room{ID: uuid.New(), PricePerPerson: 600, MaxOccupancy: 2}
	srv := newServer(&stubStore{createErr: domain.ErrConflict}, room, uuid.New())
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/reservations", uuid.New(), map[string]interface{}{
		"room_id":     room.ID,
		"check_in":    "2024-06-01",
		"check_out":   "2024-06-04",
		"guest_count": 1,
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateReservation_BadDates(t *testing.T) {
	room := domain.Room{ID: uuid.New(), PricePerPerson: 600, MaxOccupancy: 2}
	srv := newServer(&stubStore{}, room, uuid.New())
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/reservations", uuid.New(), map[string]interface{}{
		"room_id":     room.ID,
		"check_in":    "not-a-date",
		"check_out":   "2024-06-04",
		"guest_count": 1,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/reservations", uuid.New(), map[string]interface{}{
		"room_id":     room.ID,
		"check_in":    "2024-06-04",
		"check_out":   "2024-06-01",
		"guest_count": 1,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateReservation_RequiresActorAndIdempotencyKey(t *testing.T) {
	room := domain.Room{ID: uuid.New(), PricePerPerson: 600, MaxOccupancy: 2}
	srv := newServer(&stubStore{}, room, uuid.New())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/reservations", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Idempotency-Key", uuid.New().String())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/reservations", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Actor-ID", uuid.New().String())
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransitionStatus_InvalidTransition(t *testing.T) {
	room := domain.Room{ID: uuid.New(), PricePerPerson: 600, MaxOccupancy: 2}
	operatorID := uuid.New()
	requester := uuid.New()
	resID := uuid.New()
	store := &stubStore{reservations: map[uuid.UUID]*domain.Reservation{
		resID: {ID: resID, RequesterID: requester, RoomID: room.ID, Status: domain.StatusConfirmed},
	}}
	srv := newServer(store, room, operatorID)
	defer srv.Close()

	resp := doJSON(t, http.MethodPatch, srv.URL+"/v1/reservations/"+resID.String()+"/status", operatorID, map[string]interface{}{
		"target_status": "PENDING",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestTransitionStatus_ApproveAsOperator(t *testing.T) {
	room := domain.Room{ID: uuid.New(), PricePerPerson: 600, MaxOccupancy: 2}
	operatorID := uuid.New()
	requester := uuid.New()
	resID := uuid.New()
	store := &stubStore{reservations: map[uuid.UUID]*domain.Reservation{
		resID: {ID: resID, RequesterID: requester, RoomID: room.ID, Status: domain.StatusPending},
	}}
	srv := newServer(store, room, operatorID)
	defer srv.Close()

	resp := doJSON(t, http.MethodPatch, srv.URL+"/v1/reservations/"+resID.String()+"/status", operatorID, map[string]interface{}{
		"target_status": "APPROVED",
		"notes":         "room inspected",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "APPROVED", body.Status)
}

func TestTransitionStatus_StrangerForbidden(t *testing.T) {
	room := domain.Room{ID: uuid.New(), PricePerPerson: 600, MaxOccupancy: 2}
	resID := uuid.New()
	store := &stubStore{reservations: map[uuid.UUID]*domain.Reservation{
		resID: {ID: resID, RequesterID: uuid.New(), RoomID: room.ID, Status: domain.StatusPending},
	}}
	srv := newServer(store, room, uuid.New())
	defer srv.Close()

	resp := doJSON(t, http.MethodPatch, srv.URL+"/v1/reservations/"+resID.String()+"/status", uuid.New(), map[string]interface{}{
		"target_status": "CANCELLED",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGetAvailability(t *testing.T) {
	room := domain.Room{ID: uuid.New(), PricePerPerson: 600, MaxOccupancy: 2}
	store := &stubStore{active: []domain.Reservation{
		{RoomID: room.ID, CheckIn: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), CheckOut: time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC), Status: domain.StatusApproved},
	}}
	srv := newServer(store, room, uuid.New())
	defer srv.Close()

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/rooms/"+room.ID.String()+"/availability?check_in=2024-07-03&check_out=2024-07-06", uuid.New(), nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Available bool `json:"available"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Available)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/rooms/"+room.ID.String()+"/availability?check_in=2024-07-05&check_out=2024-07-08", uuid.New(), nil)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Available, "back-to-back must be available")
}

func TestPaymentCallback(t *testing.T) {
	room := domain.Room{ID: uuid.New(), PricePerPerson: 600, MaxOccupancy: 2}
	requester := uuid.New()
	resID := uuid.New()
	store := &stubStore{reservations: map[uuid.UUID]*domain.Reservation{
		resID: {ID: resID, RequesterID: requester, RoomID: room.ID, Status: domain.StatusApproved},
	}}
	srv := newServer(store, room, uuid.New())
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/payments/callback", requester, map[string]interface{}{
		"reservation_id": resID,
		"status":         "SUCCEEDED",
		"transaction_id": "tx-812",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "PAID", body.Status)
}
