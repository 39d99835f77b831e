package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stayhive/guesthouse-reservations/internal/domain"
	"github.com/stayhive/guesthouse-reservations/internal/engine"
	"github.com/stayhive/guesthouse-reservations/internal/idempotency"
)

const dateLayout = "2006-01-02"

type Handlers struct {
	engine *engine.Engine
	idemp  *idempotency.Idempotency
}

func NewHandlers(eng *engine.Engine, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{engine: eng, idemp: idemp}
}

// writeDomainError translates the error taxonomy into status codes the
// caller can act on: 409 means pick different dates or refresh state, 503
// means try the same call again shortly.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, "invalid input", http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, "dates unavailable", http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, "invalid status transition", http.StatusConflict)
	case errors.Is(err, domain.ErrReservationNotPending):
		http.Error(w, "reservation is not pending", http.StatusConflict)
	case domain.Retryable(err):
		http.Error(w, "temporarily unavailable, try again", http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) []byte {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

type memberPayload struct {
	FullName    string `json:"full_name"`
	DocumentRef string `json:"document_ref"`
}

func toMembers(in []memberPayload) []domain.ReservationMember {
	out := make([]domain.ReservationMember, len(in))
	for i, m := range in {
		out[i] = domain.ReservationMember{ID: uuid.New(), FullName: m.FullName, DocumentRef: m.DocumentRef}
	}
	return out
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		RoomID     uuid.UUID       `json:"room_id"`
		CheckIn    string          `json:"check_in"`
		CheckOut   string          `json:"check_out"`
		GuestCount int             `json:"guest_count"`
		Notes      string          `json:"notes"`
		Members    []memberPayload `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	checkIn, err := time.Parse(dateLayout, req.CheckIn)
	if err != nil {
		http.Error(w, "invalid check_in", http.StatusBadRequest)
		return
	}
	checkOut, err := time.Parse(dateLayout, req.CheckOut)
	if err != nil {
		http.Error(w, "invalid check_out", http.StatusBadRequest)
		return
	}

	res, err := h.engine.RequestReservation(r.Context(), actorID(r), req.RoomID, checkIn, checkOut, req.GuestCount, req.Notes, toMembers(req.Members))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"reservation_id": res.ID,
		"status":         res.Status,
		"total_amount":   res.TotalAmount,
	})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func reservationBody(res *domain.Reservation) map[string]interface{} {
	members := make([]map[string]interface{}, len(res.Members))
	for i, m := range res.Members {
		members[i] = map[string]interface{}{
			"id":           m.ID,
			"full_name":    m.FullName,
			"document_ref": m.DocumentRef,
		}
	}
	return map[string]interface{}{
		"reservation_id": res.ID,
		"requester_id":   res.RequesterID,
		"room_id":        res.RoomID,
		"check_in":       res.CheckIn.Format(dateLayout),
		"check_out":      res.CheckOut.Format(dateLayout),
		"guest_count":    res.GuestCount,
		"total_amount":   res.TotalAmount,
		"status":         res.Status,
		"payment_status": res.PaymentStatus,
		"notes":          res.Notes,
		"members":        members,
	}
}

func (h *Handlers) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		TargetStatus string `json:"target_status"`
		Notes        string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.engine.TransitionStatus(r.Context(), actorID(r), id, domain.Status(req.TargetStatus), req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationBody(res))
}

func (h *Handlers) AddMembers(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		Members []memberPayload `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.AddMembers(r.Context(), actorID(r), id, toMembers(req.Members)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	res, err := h.engine.GetReservation(r.Context(), actorID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationBody(res))
}

func (h *Handlers) ListReservations(w http.ResponseWriter, r *http.Request) {
	requester := actorID(r)
	if q := r.URL.Query().Get("requester_id"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			http.Error(w, "invalid requester_id", http.StatusBadRequest)
			return
		}
		requester = id
	}

	list, err := h.engine.ListByRequester(r.Context(), actorID(r), requester)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]interface{}, len(list))
	for i := range list {
		out[i] = reservationBody(&list[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": out})
}

func (h *Handlers) GetAvailability(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	checkIn, err := time.Parse(dateLayout, r.URL.Query().Get("check_in"))
	if err != nil {
		http.Error(w, "invalid check_in", http.StatusBadRequest)
		return
	}
	checkOut, err := time.Parse(dateLayout, r.URL.Query().Get("check_out"))
	if err != nil {
		http.Error(w, "invalid check_out", http.StatusBadRequest)
		return
	}

	available, err := h.engine.CheckAvailability(r.Context(), roomID, checkIn, checkOut)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":   roomID,
		"check_in":  checkIn.Format(dateLayout),
		"check_out": checkOut.Format(dateLayout),
		"available": available,
	})
}

func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReservationID uuid.UUID `json:"reservation_id"`
		Status        string    `json:"status"`
		TransactionID string    `json:"transaction_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.engine.PaymentResult(r.Context(), req.ReservationID, req.Status == "SUCCEEDED", "payment "+req.TransactionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reservation_id": res.ID,
		"status":         res.Status,
		"payment_status": res.PaymentStatus,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
