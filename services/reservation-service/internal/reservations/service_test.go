package reservations_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dinehall/tablebook/services/reservation-service/internal/model"
	"github.com/dinehall/tablebook/services/reservation-service/internal/policy"
	"github.com/dinehall/tablebook/services/reservation-service/internal/reservations"
	"github.com/dinehall/tablebook/services/reservation-service/internal/storage"
	"github.com/dinehall/tablebook/services/reservation-service/internal/tables"
)

func newTestService(t *testing.T) (*reservations.Service, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	registry := tables.NewStaticRegistry([]model.Table{
		{ID: "t1", Capacity: 4, MinPartySize: 1, Active: true},
		{ID: "t2", Capacity: 2, MinPartySize: 1, Active: true},
	})
	provider := policy.NewStaticProvider(policy.Windows{
		Lunch:    policy.ClockRange{Start: 11*60 + 30, End: 15 * 60},
		Dinner:   policy.ClockRange{Start: 18 * 60, End: 22 * 60},
		Location: time.UTC,
	}, policy.Defaults{
		DurationMinutes:    105,
		GracePeriodMinutes: 15,
		MaxSittingMinutes:  180,
		AdvanceBookingDays: 30,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return reservations.NewService(store, registry, provider, logger), store
}

// tomorrowAt returns tomorrow's date at the given UTC wall clock, safely
// inside the advance-booking horizon and never in the past.
func tomorrowAt(hour, min int) time.Time {
	d := time.Now().UTC().AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, time.UTC)
}

func booking(tableID string, start time.Time) reservations.CreateInput {
	return reservations.CreateInput{
		TableID:       tableID,
		CustomerName:  "Ada Diner",
		CustomerEmail: "ada@example.com",
		CustomerPhone: "+15550100",
		PartySize:     2,
		StartTime:     start,
	}
}

func TestCreateAppliesPolicyDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	start := tomorrowAt(19, 0)
	res, err := svc.Create(ctx, booking("t1", start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.ID == "" {
		t.Fatal("expected generated reservation id")
	}
	if res.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", res.Status)
	}
	if res.DurationMinutes != 105 || res.GracePeriodMinutes != 15 || res.MaxSittingMinutes != 180 {
		t.Fatalf("timing defaults not applied: %+v", res)
	}
	if want := start.Add(105 * time.Minute); !res.EndTime.Equal(want) {
		t.Fatalf("end time = %v, want %v", res.EndTime, want)
	}
}

func TestCreateRejectsOverlap(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, booking("t1", tomorrowAt(19, 0))); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// 20:30 starts before the 19:00 booking ends at 20:45.
	_, err := svc.Create(ctx, booking("t1", tomorrowAt(20, 30)))
	if !reservations.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}

	// A different table is unaffected.
	if _, err := svc.Create(ctx, booking("t2", tomorrowAt(20, 30))); err != nil {
		t.Fatalf("create on free table: %v", err)
	}
}

func TestCreateAllowsBackToBack(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, booking("t1", tomorrowAt(19, 0))); err != nil {
		t.Fatalf("first create: %v", err)
	}
	// 20:45 is exactly the previous booking's end; half-open windows touch
	// without overlapping.
	if _, err := svc.Create(ctx, booking("t1", tomorrowAt(20, 45))); err != nil {
		t.Fatalf("back-to-back create: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*reservations.CreateInput)
		check  func(error) bool
	}{
		{"missing name", func(in *reservations.CreateInput) { in.CustomerName = "" }, reservations.IsValidation},
		{"zero party", func(in *reservations.CreateInput) { in.PartySize = 0 }, reservations.IsValidation},
		{"party beyond capacity", func(in *reservations.CreateInput) { in.PartySize = 5 }, reservations.IsValidation},
		{"unknown table", func(in *reservations.CreateInput) { in.TableID = "t99" }, reservations.IsNotFound},
		{"outside service windows", func(in *reservations.CreateInput) { in.StartTime = tomorrowAt(16, 0) }, reservations.IsValidation},
		{"duration beyond max sitting", func(in *reservations.CreateInput) { in.DurationMinutes = 200 }, reservations.IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := booking("t1", tomorrowAt(19, 0))
			tc.mutate(&in)
			_, err := svc.Create(ctx, in)
			if !tc.check(err) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestCreateRejectsBeyondHorizon(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	far := time.Now().UTC().AddDate(0, 0, 45)
	in := booking("t1", time.Date(far.Year(), far.Month(), far.Day(), 19, 0, 0, 0, time.UTC))
	if _, err := svc.Create(ctx, in); !reservations.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}

	near := time.Now().UTC().AddDate(0, 0, 30)
	in = booking("t1", time.Date(near.Year(), near.Month(), near.Day(), 19, 0, 0, 0, time.UTC))
	if _, err := svc.Create(ctx, in); err != nil {
		t.Fatalf("create on last bookable day: %v", err)
	}
}

func TestUpdateReschedules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, booking("t1", tomorrowAt(19, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	in := booking("t1", tomorrowAt(18, 0))
	in.PartySize = 3
	updated, err := svc.Update(ctx, res.ID, in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.StartTime.Equal(tomorrowAt(18, 0)) || updated.PartySize != 3 {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Status != model.StatusConfirmed {
		t.Fatalf("status changed on update: %s", updated.Status)
	}
}

func TestUpdateIgnoresOwnSlot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, booking("t1", tomorrowAt(19, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Shifting within the reservation's own window must not self-conflict.
	if _, err := svc.Update(ctx, res.ID, booking("t1", tomorrowAt(19, 15))); err != nil {
		t.Fatalf("update into own window: %v", err)
	}
}

func TestUpdateRejectsConflictAndTerminal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, booking("t1", tomorrowAt(19, 0)))
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.Create(ctx, booking("t1", tomorrowAt(20, 45)))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	if _, err := svc.Update(ctx, second.ID, booking("t1", tomorrowAt(19, 30))); !reservations.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}

	if _, err := svc.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Update(ctx, first.ID, booking("t1", tomorrowAt(19, 0))); !reservations.IsState(err) {
		t.Fatalf("err = %v, want state error", err)
	}

	if _, err := svc.Update(ctx, "missing", booking("t1", tomorrowAt(19, 0))); !reservations.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestCancelFreesSlot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, booking("t1", tomorrowAt(19, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelled, err := svc.Cancel(ctx, res.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	// The slot is immediately bookable again.
	if _, err := svc.Create(ctx, booking("t1", tomorrowAt(19, 0))); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}

	if _, err := svc.Cancel(ctx, res.ID); !reservations.IsState(err) {
		t.Fatalf("double cancel err = %v, want state error", err)
	}
}

func TestMarkArrivalLate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	start := tomorrowAt(19, 0)
	res, err := svc.Create(ctx, booking("t1", start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// 20 minutes after start with a 15-minute grace period is late.
	got, err := svc.MarkArrival(ctx, res.ID, start.Add(20*time.Minute), "walked in without phone")
	if err != nil {
		t.Fatalf("mark arrival: %v", err)
	}
	if got.OnTime {
		t.Fatal("expected late arrival")
	}
	if got.DelayMinutes != 20 {
		t.Fatalf("delay = %d, want 20", got.DelayMinutes)
	}
	if got.Reservation.Status != model.StatusSeated || !got.Reservation.LateArrival {
		t.Fatalf("reservation = %+v", got.Reservation)
	}
	if got.Reservation.ActualArrival == nil || !got.Reservation.ActualArrival.Equal(start.Add(20*time.Minute)) {
		t.Fatalf("actual arrival = %v", got.Reservation.ActualArrival)
	}
	if got.Reservation.ArrivalNotes != "walked in without phone" {
		t.Fatalf("notes = %q", got.Reservation.ArrivalNotes)
	}
}

func TestMarkArrivalWithinGrace(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	start := tomorrowAt(19, 0)
	res, err := svc.Create(ctx, booking("t1", start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.MarkArrival(ctx, res.ID, start.Add(10*time.Minute), "")
	if err != nil {
		t.Fatalf("mark arrival: %v", err)
	}
	if !got.OnTime || got.DelayMinutes != 10 {
		t.Fatalf("result = %+v, want on time with delay 10", got)
	}
}

func TestMarkArrivalEarlyClampsDelay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	start := tomorrowAt(19, 0)
	res, err := svc.Create(ctx, booking("t1", start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.MarkArrival(ctx, res.ID, start.Add(-10*time.Minute), "")
	if err != nil {
		t.Fatalf("mark arrival: %v", err)
	}
	if !got.OnTime || got.DelayMinutes != 0 {
		t.Fatalf("result = %+v, want on time with delay 0", got)
	}
}

func TestMarkArrivalRequiresConfirmed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	start := tomorrowAt(19, 0)
	res, err := svc.Create(ctx, booking("t1", start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.MarkArrival(ctx, res.ID, start, ""); err != nil {
		t.Fatalf("mark arrival: %v", err)
	}

	// Already seated.
	if _, err := svc.MarkArrival(ctx, res.ID, start, ""); !reservations.IsState(err) {
		t.Fatalf("err = %v, want state error", err)
	}

	other, err := svc.Create(ctx, booking("t2", start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Cancel(ctx, other.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.MarkArrival(ctx, other.ID, start, ""); !reservations.IsState(err) {
		t.Fatalf("err after cancel = %v, want state error", err)
	}
}

func TestMarkDeparture(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	start := tomorrowAt(19, 0)
	res, err := svc.Create(ctx, booking("t1", start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Departure before seating is invalid.
	if _, err := svc.MarkDeparture(ctx, res.ID, start.Add(time.Hour)); !reservations.IsState(err) {
		t.Fatalf("err = %v, want state error", err)
	}

	if _, err := svc.MarkArrival(ctx, res.ID, start.Add(10*time.Minute), ""); err != nil {
		t.Fatalf("mark arrival: %v", err)
	}
	got, err := svc.MarkDeparture(ctx, res.ID, start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("mark departure: %v", err)
	}
	if got.Reservation.Status != model.StatusDeparted {
		t.Fatalf("status = %s, want departed", got.Reservation.Status)
	}
	// Seated at 19:10, departed at 21:00.
	if got.ActualDurationMinutes != 110 {
		t.Fatalf("actual duration = %d, want 110", got.ActualDurationMinutes)
	}
	if got.Reservation.ActualDeparture == nil {
		t.Fatal("actual departure not recorded")
	}

	if _, err := svc.MarkDeparture(ctx, res.ID, start.Add(3*time.Hour)); !reservations.IsState(err) {
		t.Fatalf("double departure err = %v, want state error", err)
	}
}

func TestDepartedTableFreesSlot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	start := tomorrowAt(19, 0)
	res, err := svc.Create(ctx, booking("t1", start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.MarkArrival(ctx, res.ID, start, ""); err != nil {
		t.Fatalf("mark arrival: %v", err)
	}
	if _, err := svc.MarkDeparture(ctx, res.ID, start.Add(time.Hour)); err != nil {
		t.Fatalf("mark departure: %v", err)
	}

	// Departed reservations no longer block the table.
	free, err := svc.IsAvailable(ctx, "t1", start, 105, "")
	if err != nil {
		t.Fatalf("is available: %v", err)
	}
	if !free {
		t.Fatal("expected slot to be free after departure")
	}
}

func TestIsAvailable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	start := tomorrowAt(19, 0)
	res, err := svc.Create(ctx, booking("t1", start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	free, err := svc.IsAvailable(ctx, "t1", start.Add(30*time.Minute), 60, "")
	if err != nil {
		t.Fatalf("is available: %v", err)
	}
	if free {
		t.Fatal("expected overlap to report unavailable")
	}

	// Excluding the blocking reservation itself reports the slot free.
	free, err = svc.IsAvailable(ctx, "t1", start.Add(30*time.Minute), 60, res.ID)
	if err != nil {
		t.Fatalf("is available with exclusion: %v", err)
	}
	if !free {
		t.Fatal("expected slot free when excluding own reservation")
	}

	if _, err := svc.IsAvailable(ctx, "t99", start, 60, ""); !reservations.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	if _, err := svc.IsAvailable(ctx, "t1", start, 0, ""); !reservations.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestFreeSlots(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	day := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	slots, err := svc.FreeSlots(ctx, "t1", day, 105)
	if err != nil {
		t.Fatalf("free slots: %v", err)
	}
	// Lunch 11:30-15:00 fits starts up to 13:15 (8 at 15-minute steps);
	// dinner 18:00-22:00 fits starts up to 20:15 (10).
	if len(slots) != 18 {
		t.Fatalf("slots = %d, want 18", len(slots))
	}

	if _, err := svc.Create(ctx, booking("t1", tomorrowAt(19, 0))); err != nil {
		t.Fatalf("create: %v", err)
	}
	slots, err = svc.FreeSlots(ctx, "t1", day, 105)
	if err != nil {
		t.Fatalf("free slots after booking: %v", err)
	}
	// Every dinner start now overlaps the 19:00-20:45 booking; lunch remains.
	if len(slots) != 8 {
		t.Fatalf("slots = %d, want 8", len(slots))
	}
	for _, slot := range slots {
		if slot.Start.UTC().Hour() >= 15 {
			t.Fatalf("unexpected dinner slot at %v", slot.Start)
		}
	}
}

func TestListByDay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, booking("t1", tomorrowAt(12, 0))); err != nil {
		t.Fatalf("create lunch: %v", err)
	}
	res, err := svc.Create(ctx, booking("t1", tomorrowAt(19, 0)))
	if err != nil {
		t.Fatalf("create dinner: %v", err)
	}
	if _, err := svc.Cancel(ctx, res.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	day := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	listed, err := svc.ListByDay(ctx, day)
	if err != nil {
		t.Fatalf("list by day: %v", err)
	}
	// Cancelled reservations stay in the day listing.
	if len(listed) != 2 {
		t.Fatalf("listed = %d, want 2", len(listed))
	}
	if !listed[0].StartTime.Before(listed[1].StartTime) {
		t.Fatal("expected chronological ordering")
	}

	if _, err := svc.ListByDay(ctx, "not-a-date"); !reservations.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, booking("t1", tomorrowAt(19, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != res.ID {
		t.Fatalf("got %s, want %s", got.ID, res.ID)
	}
	if _, err := svc.Get(ctx, "missing"); !reservations.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}
