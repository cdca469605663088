package reservations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dinehall/tablebook/services/reservation-service/internal/availability"
	"github.com/dinehall/tablebook/services/reservation-service/internal/model"
	"github.com/dinehall/tablebook/services/reservation-service/internal/outbox"
	"github.com/dinehall/tablebook/services/reservation-service/internal/policy"
	"github.com/dinehall/tablebook/services/reservation-service/internal/tables"
)

// slotStepMinutes is the granularity of free-slot listings.
const slotStepMinutes = 15

// Store persists reservations. Mutations receive the lifecycle event that
// belongs to them so transactional implementations can commit both
// atomically. A mutation either fully persists or persists nothing.
type Store interface {
	Create(ctx context.Context, res *model.Reservation, evt *outbox.Event) error
	Get(ctx context.Context, id string) (model.Reservation, error)
	Update(ctx context.Context, res model.Reservation, evt *outbox.Event) error
	// ListBlocking returns reservations in an occupying status (confirmed or
	// seated) on the table whose [start, end) window overlaps the given one,
	// excluding excludeID when non-empty.
	ListBlocking(ctx context.Context, tableID string, start, end time.Time, excludeID string) ([]model.Reservation, error)
	// ListByDay returns all reservations, regardless of status, whose start
	// falls in [dayStart, dayEnd).
	ListByDay(ctx context.Context, dayStart, dayEnd time.Time) ([]model.Reservation, error)
}

// Service owns the reservation state machine. Every operation validates
// before it mutates; rejected operations leave stored state untouched.
type Service struct {
	store   Store
	tables  tables.Registry
	policy  policy.Provider
	logger  *slog.Logger
	now     func() time.Time
	tableMu *keyedMutex
	resMu   *keyedMutex
}

func NewService(store Store, registry tables.Registry, provider policy.Provider, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		tables:  registry,
		policy:  provider,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		tableMu: newKeyedMutex(),
		resMu:   newKeyedMutex(),
	}
}

// CreateInput carries the booking request. Zero timing overrides mean the
// policy defaults apply.
type CreateInput struct {
	TableID         string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	PartySize       int
	StartTime       time.Time
	SpecialRequests string

	DurationMinutes    int
	GracePeriodMinutes int
	MaxSittingMinutes  int
}

func (in *CreateInput) normalize() {
	in.TableID = strings.TrimSpace(in.TableID)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	in.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	in.SpecialRequests = strings.TrimSpace(in.SpecialRequests)
}

// Create validates the booking window, party size and table availability,
// then persists a confirmed reservation. Requests for the same table are
// serialized so two concurrent creates cannot both pass the availability
// check; the storage layer's exclusion constraint covers other instances.
func (s *Service) Create(ctx context.Context, in CreateInput) (model.Reservation, error) {
	in.normalize()
	table, timing, err := s.validate(ctx, in)
	if err != nil {
		return model.Reservation{}, err
	}

	start := in.StartTime.UTC()
	end := start.Add(time.Duration(timing.duration) * time.Minute)

	unlock := s.tableMu.lock(table.ID)
	defer unlock()

	free, err := s.isAvailable(ctx, table.ID, start, end, "")
	if err != nil {
		return model.Reservation{}, err
	}
	if !free {
		return model.Reservation{}, &ConflictError{TableID: table.ID, Start: start, End: end}
	}

	now := s.now()
	res := model.Reservation{
		ID:                 uuid.NewString(),
		TableID:            table.ID,
		CustomerName:       in.CustomerName,
		CustomerEmail:      in.CustomerEmail,
		CustomerPhone:      in.CustomerPhone,
		PartySize:          in.PartySize,
		StartTime:          start,
		EndTime:            end,
		DurationMinutes:    timing.duration,
		GracePeriodMinutes: timing.grace,
		MaxSittingMinutes:  timing.maxSitting,
		SpecialRequests:    in.SpecialRequests,
		Status:             model.StatusConfirmed,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	evt, err := lifecycleEvent(res, "reservation.confirmed.v1", nil)
	if err != nil {
		return model.Reservation{}, err
	}
	if err := s.store.Create(ctx, &res, evt); err != nil {
		return model.Reservation{}, err
	}

	s.logger.Info("reservation confirmed",
		"reservation_id", res.ID,
		"table_id", res.TableID,
		"party_size", res.PartySize,
		"start_time", res.StartTime.Format(time.RFC3339),
	)
	return res, nil
}

// Update re-runs the create-time checks against all reservations except this
// one and replaces the booking details. Status never changes here; terminal
// reservations cannot be updated.
func (s *Service) Update(ctx context.Context, id string, in CreateInput) (model.Reservation, error) {
	in.normalize()

	unlockRes := s.resMu.lock(id)
	defer unlockRes()

	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if existing.Status.Terminal() {
		return model.Reservation{}, &StateError{ID: id, Current: existing.Status, Attempted: "be updated"}
	}

	table, timing, err := s.validate(ctx, in)
	if err != nil {
		return model.Reservation{}, err
	}

	start := in.StartTime.UTC()
	end := start.Add(time.Duration(timing.duration) * time.Minute)

	unlockTable := s.tableMu.lock(table.ID)
	defer unlockTable()

	free, err := s.isAvailable(ctx, table.ID, start, end, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if !free {
		return model.Reservation{}, &ConflictError{TableID: table.ID, Start: start, End: end}
	}

	updated := existing
	updated.TableID = table.ID
	updated.CustomerName = in.CustomerName
	updated.CustomerEmail = in.CustomerEmail
	updated.CustomerPhone = in.CustomerPhone
	updated.PartySize = in.PartySize
	updated.StartTime = start
	updated.EndTime = end
	updated.DurationMinutes = timing.duration
	updated.GracePeriodMinutes = timing.grace
	updated.MaxSittingMinutes = timing.maxSitting
	updated.SpecialRequests = in.SpecialRequests
	updated.UpdatedAt = s.now()

	evt, err := lifecycleEvent(updated, "reservation.updated.v1", nil)
	if err != nil {
		return model.Reservation{}, err
	}
	if err := s.store.Update(ctx, updated, evt); err != nil {
		return model.Reservation{}, err
	}

	s.logger.Info("reservation updated", "reservation_id", id, "table_id", updated.TableID)
	return updated, nil
}

// Cancel moves a confirmed or seated reservation to cancelled, immediately
// freeing its table slot for future availability checks.
func (s *Service) Cancel(ctx context.Context, id string) (model.Reservation, error) {
	unlock := s.resMu.lock(id)
	defer unlock()

	res, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if !res.Status.CanTransitionTo(model.StatusCancelled) {
		return model.Reservation{}, &StateError{ID: id, Current: res.Status, Attempted: "be cancelled"}
	}

	res.Status = model.StatusCancelled
	res.UpdatedAt = s.now()

	evt, err := lifecycleEvent(res, "reservation.cancelled.v1", nil)
	if err != nil {
		return model.Reservation{}, err
	}
	if err := s.store.Update(ctx, res, evt); err != nil {
		return model.Reservation{}, err
	}

	s.logger.Info("reservation cancelled", "reservation_id", id, "table_id", res.TableID)
	return res, nil
}

// ArrivalResult reports the seated reservation plus lateness relative to the
// scheduled start and grace period.
type ArrivalResult struct {
	Reservation  model.Reservation
	OnTime       bool
	DelayMinutes int
}

// MarkArrival records the party's actual arrival and seats the reservation.
// A zero actualTime means now. Valid only from confirmed.
func (s *Service) MarkArrival(ctx context.Context, id string, actualTime time.Time, notes string) (ArrivalResult, error) {
	unlock := s.resMu.lock(id)
	defer unlock()

	res, err := s.store.Get(ctx, id)
	if err != nil {
		return ArrivalResult{}, err
	}
	if res.Status != model.StatusConfirmed {
		return ArrivalResult{}, &StateError{ID: id, Current: res.Status, Attempted: "mark arrival"}
	}

	if actualTime.IsZero() {
		actualTime = s.now()
	}
	actualTime = actualTime.UTC()

	delay := int(actualTime.Sub(res.StartTime).Minutes())
	if delay < 0 {
		delay = 0
	}
	late := delay > res.GracePeriodMinutes

	res.Status = model.StatusSeated
	res.ActualArrival = &actualTime
	res.LateArrival = late
	res.ArrivalNotes = strings.TrimSpace(notes)
	res.UpdatedAt = s.now()

	evt, err := lifecycleEvent(res, "reservation.seated.v1", map[string]any{
		"actual_arrival_time": actualTime.Format(time.RFC3339),
		"delay_minutes":       delay,
		"is_late_arrival":     late,
	})
	if err != nil {
		return ArrivalResult{}, err
	}
	if err := s.store.Update(ctx, res, evt); err != nil {
		return ArrivalResult{}, err
	}

	s.logger.Info("reservation seated",
		"reservation_id", id,
		"delay_minutes", delay,
		"late_arrival", late,
	)
	return ArrivalResult{Reservation: res, OnTime: !late, DelayMinutes: delay}, nil
}

// DepartureResult reports the departed reservation and how long the party
// actually sat, measured from actual arrival (or the scheduled start when no
// arrival was recorded).
type DepartureResult struct {
	Reservation           model.Reservation
	ActualDurationMinutes int
}

// MarkDeparture records the party's departure. A zero actualTime means now.
// Valid only from seated.
func (s *Service) MarkDeparture(ctx context.Context, id string, actualTime time.Time) (DepartureResult, error) {
	unlock := s.resMu.lock(id)
	defer unlock()

	res, err := s.store.Get(ctx, id)
	if err != nil {
		return DepartureResult{}, err
	}
	if res.Status != model.StatusSeated {
		return DepartureResult{}, &StateError{ID: id, Current: res.Status, Attempted: "mark departure"}
	}

	if actualTime.IsZero() {
		actualTime = s.now()
	}
	actualTime = actualTime.UTC()

	seatedFrom := res.StartTime
	if res.ActualArrival != nil {
		seatedFrom = *res.ActualArrival
	}
	actualMinutes := int(actualTime.Sub(seatedFrom).Minutes())
	if actualMinutes < 0 {
		actualMinutes = 0
	}

	res.Status = model.StatusDeparted
	res.ActualDeparture = &actualTime
	res.UpdatedAt = s.now()

	evt, err := lifecycleEvent(res, "reservation.departed.v1", map[string]any{
		"actual_departure_time":   actualTime.Format(time.RFC3339),
		"actual_duration_minutes": actualMinutes,
	})
	if err != nil {
		return DepartureResult{}, err
	}
	if err := s.store.Update(ctx, res, evt); err != nil {
		return DepartureResult{}, err
	}

	s.logger.Info("reservation departed",
		"reservation_id", id,
		"actual_duration_minutes", actualMinutes,
	)
	return DepartureResult{Reservation: res, ActualDurationMinutes: actualMinutes}, nil
}

// Get returns a reservation by ID.
func (s *Service) Get(ctx context.Context, id string) (model.Reservation, error) {
	return s.store.Get(ctx, id)
}

// ListByDay returns every reservation, any status, on a restaurant-local
// calendar day ("2006-01-02").
func (s *Service) ListByDay(ctx context.Context, day string) ([]model.Reservation, error) {
	windows, err := s.policy.ServiceWindows(ctx)
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd, err := availability.DayBounds(day, windows.Location)
	if err != nil {
		return nil, &ValidationError{Field: "date", Reason: "must be formatted as 2006-01-02"}
	}
	return s.store.ListByDay(ctx, dayStart, dayEnd)
}

// IsAvailable reports whether the table is free for the half-open window
// starting at start. excludeID skips one reservation, so an update can check
// against everything except itself.
func (s *Service) IsAvailable(ctx context.Context, tableID string, start time.Time, durationMinutes int, excludeID string) (bool, error) {
	if durationMinutes <= 0 {
		return false, &ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}
	if _, err := s.tables.Get(ctx, tableID); err != nil {
		return false, mapTableErr(tableID, err)
	}
	start = start.UTC()
	return s.isAvailable(ctx, tableID, start, start.Add(time.Duration(durationMinutes)*time.Minute), excludeID)
}

// FreeSlots lists bookable start windows on a table for a restaurant-local
// day, one entry per free slot inside the lunch and dinner service windows.
func (s *Service) FreeSlots(ctx context.Context, tableID, day string, durationMinutes int) ([]availability.Interval, error) {
	if _, err := s.tables.Get(ctx, tableID); err != nil {
		return nil, mapTableErr(tableID, err)
	}
	windows, err := s.policy.ServiceWindows(ctx)
	if err != nil {
		return nil, err
	}
	defaults, err := s.policy.Defaults(ctx)
	if err != nil {
		return nil, err
	}
	if durationMinutes <= 0 {
		durationMinutes = defaults.DurationMinutes
	}

	loc := windows.Location
	if loc == nil {
		loc = time.UTC
	}
	dayStart, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return nil, &ValidationError{Field: "date", Reason: "must be formatted as 2006-01-02"}
	}

	duration := time.Duration(durationMinutes) * time.Minute
	now := s.now()

	var out []availability.Interval
	for _, window := range []policy.ClockRange{windows.Lunch, windows.Dinner} {
		winStart := dayStart.Add(time.Duration(window.Start) * time.Minute).UTC()
		winEnd := dayStart.Add(time.Duration(window.End) * time.Minute).UTC()

		blocking, err := s.store.ListBlocking(ctx, tableID, winStart, winEnd.Add(duration), "")
		if err != nil {
			return nil, err
		}
		busy := make([]availability.Interval, 0, len(blocking))
		for _, b := range blocking {
			busy = append(busy, availability.Interval{Start: b.StartTime, End: b.EndTime})
		}

		for _, slot := range availability.FreeSlots(winStart, winEnd, duration, slotStepMinutes*time.Minute, busy, now) {
			out = append(out, availability.Interval{Start: slot, End: slot.Add(duration)})
		}
	}
	return out, nil
}

type resolvedTiming struct {
	duration   int
	grace      int
	maxSitting int
}

func (s *Service) validate(ctx context.Context, in CreateInput) (model.Table, resolvedTiming, error) {
	var timing resolvedTiming

	if in.CustomerName == "" {
		return model.Table{}, timing, &ValidationError{Field: "customer_name", Reason: "is required"}
	}
	if in.TableID == "" {
		return model.Table{}, timing, &ValidationError{Field: "table_id", Reason: "is required"}
	}
	if in.PartySize < 1 {
		return model.Table{}, timing, &ValidationError{Field: "party_size", Reason: "must be at least 1"}
	}
	if in.StartTime.IsZero() {
		return model.Table{}, timing, &ValidationError{Field: "start_time", Reason: "is required"}
	}

	table, err := s.tables.Get(ctx, in.TableID)
	if err != nil {
		return model.Table{}, timing, mapTableErr(in.TableID, err)
	}

	windows, err := s.policy.ServiceWindows(ctx)
	if err != nil {
		return model.Table{}, timing, fmt.Errorf("fetch service windows: %w", err)
	}
	defaults, err := s.policy.Defaults(ctx)
	if err != nil {
		return model.Table{}, timing, fmt.Errorf("fetch policy defaults: %w", err)
	}

	// Window and horizon checks run before availability, always.
	if err := availability.ValidateWindow(in.StartTime, windows, defaults.AdvanceBookingDays, s.now()); err != nil {
		return model.Table{}, timing, &ValidationError{Field: "start_time", Reason: err.Error()}
	}

	if !table.FitsParty(in.PartySize) {
		return model.Table{}, timing, &ValidationError{
			Field:  "party_size",
			Reason: fmt.Sprintf("must be between %d and %d for table %s", table.MinPartySize, table.Capacity, table.ID),
		}
	}

	timing.duration = in.DurationMinutes
	if timing.duration == 0 {
		timing.duration = defaults.DurationMinutes
	}
	if timing.duration <= 0 {
		return model.Table{}, timing, &ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}

	timing.grace = in.GracePeriodMinutes
	if timing.grace == 0 {
		timing.grace = defaults.GracePeriodMinutes
	}
	if timing.grace < 0 {
		return model.Table{}, timing, &ValidationError{Field: "grace_period_minutes", Reason: "must not be negative"}
	}

	timing.maxSitting = in.MaxSittingMinutes
	if timing.maxSitting == 0 {
		timing.maxSitting = defaults.MaxSittingMinutes
	}
	if timing.maxSitting > 0 && timing.duration > timing.maxSitting {
		return model.Table{}, timing, &ValidationError{
			Field:  "duration_minutes",
			Reason: fmt.Sprintf("must not exceed max sitting of %d minutes", timing.maxSitting),
		}
	}

	return table, timing, nil
}

func (s *Service) isAvailable(ctx context.Context, tableID string, start, end time.Time, excludeID string) (bool, error) {
	blocking, err := s.store.ListBlocking(ctx, tableID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return len(blocking) == 0, nil
}

func mapTableErr(tableID string, err error) error {
	if errors.Is(err, tables.ErrNotFound) {
		return &NotFoundError{Kind: "table", ID: tableID}
	}
	return err
}

func lifecycleEvent(res model.Reservation, eventType string, extra map[string]any) (*outbox.Event, error) {
	payload := map[string]any{
		"reservation_id": res.ID,
		"table_id":       res.TableID,
		"party_size":     res.PartySize,
		"start_time":     res.StartTime.UTC().Format(time.RFC3339),
		"end_time":       res.EndTime.UTC().Format(time.RFC3339),
		"status":         string(res.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("build %s payload: %w", eventType, err)
	}
	return &outbox.Event{
		AggregateType: "reservation",
		AggregateID:   res.ID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}
