package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dinehall/tablebook/services/reservation-service/internal/model"
	"github.com/dinehall/tablebook/services/reservation-service/internal/reservations"
)

type ReservationHandler struct {
	svc    *reservations.Service
	logger *slog.Logger
}

func NewReservationHandler(svc *reservations.Service, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{svc: svc, logger: logger}
}

type reservationRequest struct {
	ReservationID   string `json:"reservation_id"`
	TableID         string `json:"table_id"`
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone"`
	PartySize       int    `json:"party_size"`
	StartTime       string `json:"start_time"`
	SpecialRequests string `json:"special_requests"`

	DurationMinutes    int `json:"duration_minutes"`
	GracePeriodMinutes int `json:"grace_period_minutes"`
	MaxSittingMinutes  int `json:"max_sitting_minutes"`
}

type reservationItem struct {
	ReservationID       string `json:"reservation_id"`
	TableID             string `json:"table_id"`
	CustomerName        string `json:"customer_name"`
	CustomerEmail       string `json:"customer_email,omitempty"`
	CustomerPhone       string `json:"customer_phone,omitempty"`
	PartySize           int    `json:"party_size"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	DurationMinutes     int    `json:"duration_minutes"`
	GracePeriodMinutes  int    `json:"grace_period_minutes"`
	MaxSittingMinutes   int    `json:"max_sitting_minutes"`
	SpecialRequests     string `json:"special_requests,omitempty"`
	Status              string `json:"status"`
	ActualArrivalTime   string `json:"actual_arrival_time,omitempty"`
	ActualDepartureTime string `json:"actual_departure_time,omitempty"`
	IsLateArrival       bool   `json:"is_late_arrival"`
	ArrivalNotes        string `json:"arrival_notes,omitempty"`
	CreatedAt           string `json:"created_at"`
}

func toItem(res model.Reservation) reservationItem {
	item := reservationItem{
		ReservationID:      res.ID,
		TableID:            res.TableID,
		CustomerName:       res.CustomerName,
		CustomerEmail:      res.CustomerEmail,
		CustomerPhone:      res.CustomerPhone,
		PartySize:          res.PartySize,
		StartTime:          res.StartTime.UTC().Format(time.RFC3339),
		EndTime:            res.EndTime.UTC().Format(time.RFC3339),
		DurationMinutes:    res.DurationMinutes,
		GracePeriodMinutes: res.GracePeriodMinutes,
		MaxSittingMinutes:  res.MaxSittingMinutes,
		SpecialRequests:    res.SpecialRequests,
		Status:             string(res.Status),
		IsLateArrival:      res.LateArrival,
		ArrivalNotes:       res.ArrivalNotes,
		CreatedAt:          res.CreatedAt.UTC().Format(time.RFC3339),
	}
	if res.ActualArrival != nil {
		item.ActualArrivalTime = res.ActualArrival.UTC().Format(time.RFC3339)
	}
	if res.ActualDeparture != nil {
		item.ActualDepartureTime = res.ActualDeparture.UTC().Format(time.RFC3339)
	}
	return item
}

func (req reservationRequest) toInput() (reservations.CreateInput, string, bool) {
	in := reservations.CreateInput{
		TableID:            req.TableID,
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		CustomerPhone:      req.CustomerPhone,
		PartySize:          req.PartySize,
		SpecialRequests:    req.SpecialRequests,
		DurationMinutes:    req.DurationMinutes,
		GracePeriodMinutes: req.GracePeriodMinutes,
		MaxSittingMinutes:  req.MaxSittingMinutes,
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		return in, "invalid start_time", false
	}
	in.StartTime = start
	return in, "", true
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	in, msg, ok := req.toInput()
	if !ok {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	res, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItem(res))
}

func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ReservationID = strings.TrimSpace(req.ReservationID)
	if req.ReservationID == "" {
		http.Error(w, "reservation_id required", http.StatusBadRequest)
		return
	}
	in, msg, ok := req.toInput()
	if !ok {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	res, err := h.svc.Update(r.Context(), req.ReservationID, in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(res))
}

type cancelRequest struct {
	ReservationID string `json:"reservation_id"`
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ReservationID = strings.TrimSpace(req.ReservationID)
	if req.ReservationID == "" {
		http.Error(w, "reservation_id required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Cancel(r.Context(), req.ReservationID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(res))
}

type arrivalRequest struct {
	ReservationID string `json:"reservation_id"`
	ActualTime    string `json:"actual_time"`
	Notes         string `json:"notes"`
}

type arrivalResponse struct {
	Reservation  reservationItem `json:"reservation"`
	IsOnTime     bool            `json:"is_on_time"`
	DelayMinutes int             `json:"delay_minutes"`
}

func (h *ReservationHandler) Arrival(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req arrivalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ReservationID = strings.TrimSpace(req.ReservationID)
	if req.ReservationID == "" {
		http.Error(w, "reservation_id required", http.StatusBadRequest)
		return
	}
	at, ok := parseOptionalTime(req.ActualTime)
	if !ok {
		http.Error(w, "invalid actual_time", http.StatusBadRequest)
		return
	}

	result, err := h.svc.MarkArrival(r.Context(), req.ReservationID, at, req.Notes)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, arrivalResponse{
		Reservation:  toItem(result.Reservation),
		IsOnTime:     result.OnTime,
		DelayMinutes: result.DelayMinutes,
	})
}

type departureRequest struct {
	ReservationID string `json:"reservation_id"`
	ActualTime    string `json:"actual_time"`
}

type departureResponse struct {
	Reservation           reservationItem `json:"reservation"`
	ActualDurationMinutes int             `json:"actual_duration_minutes"`
}

func (h *ReservationHandler) Departure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req departureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ReservationID = strings.TrimSpace(req.ReservationID)
	if req.ReservationID == "" {
		http.Error(w, "reservation_id required", http.StatusBadRequest)
		return
	}
	at, ok := parseOptionalTime(req.ActualTime)
	if !ok {
		http.Error(w, "invalid actual_time", http.StatusBadRequest)
		return
	}

	result, err := h.svc.MarkDeparture(r.Context(), req.ReservationID, at)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, departureResponse{
		Reservation:           toItem(result.Reservation),
		ActualDurationMinutes: result.ActualDurationMinutes,
	})
}

func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	day := strings.TrimSpace(r.URL.Query().Get("date"))
	if day == "" {
		http.Error(w, "date required", http.StatusBadRequest)
		return
	}

	list, err := h.svc.ListByDay(r.Context(), day)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	items := make([]reservationItem, 0, len(list))
	for _, res := range list {
		items = append(items, toItem(res))
	}
	writeJSON(w, http.StatusOK, items)
}

type availabilityResponse struct {
	TableID   string `json:"table_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
}

func (h *ReservationHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	tableID := strings.TrimSpace(q.Get("table_id"))
	if tableID == "" {
		http.Error(w, "table_id required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("start_time")))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	duration, err := strconv.Atoi(strings.TrimSpace(q.Get("duration_minutes")))
	if err != nil || duration <= 0 {
		http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
		return
	}
	excludeID := strings.TrimSpace(q.Get("exclude_reservation_id"))

	available, err := h.svc.IsAvailable(r.Context(), tableID, start, duration, excludeID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		TableID:   tableID,
		StartTime: start.UTC().Format(time.RFC3339),
		EndTime:   start.UTC().Add(time.Duration(duration) * time.Minute).Format(time.RFC3339),
		Available: available,
	})
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *ReservationHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	tableID := strings.TrimSpace(q.Get("table_id"))
	day := strings.TrimSpace(q.Get("date"))
	if tableID == "" || day == "" {
		http.Error(w, "table_id and date are required", http.StatusBadRequest)
		return
	}
	duration := 0
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 8*60 {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
		duration = n
	}

	slots, err := h.svc.FreeSlots(r.Context(), tableID, day, duration)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ReservationHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case reservations.IsValidation(err):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case reservations.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case reservations.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case reservations.IsState(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("reservation operation failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseOptionalTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
