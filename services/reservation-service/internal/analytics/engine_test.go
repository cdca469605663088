package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/dinehall/tablebook/services/reservation-service/internal/analytics"
	"github.com/dinehall/tablebook/services/reservation-service/internal/model"
	"github.com/dinehall/tablebook/services/reservation-service/internal/policy"
	"github.com/dinehall/tablebook/services/reservation-service/internal/reservations"
	"github.com/dinehall/tablebook/services/reservation-service/internal/storage"
	"github.com/dinehall/tablebook/services/reservation-service/internal/tables"
)

func newTestEngine(t *testing.T) (*analytics.Engine, *storage.MemoryStore) {
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
	return analytics.NewEngine(store, registry, provider), store
}

func seed(t *testing.T, store *storage.MemoryStore, res model.Reservation) {
	t.Helper()
	res.CreatedAt = res.StartTime
	res.UpdatedAt = res.StartTime
	if err := store.Create(context.Background(), &res, nil); err != nil {
		t.Fatalf("seed %s: %v", res.ID, err)
	}
}

func TestUtilizationEmptyDay(t *testing.T) {
	engine, _ := newTestEngine(t)

	rows, err := engine.Utilization(context.Background(), "2026-09-01")
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want one per active table", len(rows))
	}
	for _, row := range rows {
		if row.ReservationCount != 0 || row.TotalGuests != 0 || row.OccupancyPercentage != 0 {
			t.Fatalf("expected zero row, got %+v", row)
		}
	}
}

func TestUtilizationCountsAndOccupancy(t *testing.T) {
	engine, store := newTestEngine(t)
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	seed(t, store, model.Reservation{
		ID: "r1", TableID: "t1", CustomerName: "A", PartySize: 2,
		StartTime: day.Add(12 * time.Hour), EndTime: day.Add(12*time.Hour + 105*time.Minute),
		DurationMinutes: 105, Status: model.StatusDeparted,
	})
	seed(t, store, model.Reservation{
		ID: "r2", TableID: "t1", CustomerName: "B", PartySize: 4,
		StartTime: day.Add(19 * time.Hour), EndTime: day.Add(19*time.Hour + 105*time.Minute),
		DurationMinutes: 105, Status: model.StatusConfirmed,
	})
	// Cancelled bookings never count toward utilization.
	seed(t, store, model.Reservation{
		ID: "r3", TableID: "t2", CustomerName: "C", PartySize: 2,
		StartTime: day.Add(19 * time.Hour), EndTime: day.Add(19*time.Hour + 105*time.Minute),
		DurationMinutes: 105, Status: model.StatusCancelled,
	})
	// Different day, ignored.
	seed(t, store, model.Reservation{
		ID: "r4", TableID: "t1", CustomerName: "D", PartySize: 2,
		StartTime: day.AddDate(0, 0, 1).Add(19 * time.Hour), EndTime: day.AddDate(0, 0, 1).Add(19*time.Hour + 105*time.Minute),
		DurationMinutes: 105, Status: model.StatusConfirmed,
	})

	rows, err := engine.Utilization(context.Background(), "2026-09-01")
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	byTable := map[string]analytics.TableUtilization{}
	for _, row := range rows {
		byTable[row.TableID] = row
	}

	t1 := byTable["t1"]
	if t1.ReservationCount != 2 || t1.TotalGuests != 6 {
		t.Fatalf("t1 = %+v, want 2 reservations and 6 guests", t1)
	}
	// Two 105-minute bookings over a 1440-minute day.
	want := 2 * 105.0 / 1440 * 100
	if diff := t1.OccupancyPercentage - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("occupancy = %v, want %v", t1.OccupancyPercentage, want)
	}

	t2 := byTable["t2"]
	if t2.ReservationCount != 0 || t2.OccupancyPercentage != 0 {
		t.Fatalf("t2 = %+v, want zero row", t2)
	}
}

func TestUtilizationRejectsBadDate(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Utilization(context.Background(), "09/01/2026"); !reservations.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestDurationStats(t *testing.T) {
	engine, store := newTestEngine(t)
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	completed := func(id string, start time.Time, delayMin, diningMin int, late bool) model.Reservation {
		arrival := start.Add(time.Duration(delayMin) * time.Minute)
		departure := arrival.Add(time.Duration(diningMin) * time.Minute)
		return model.Reservation{
			ID: id, TableID: "t1", CustomerName: "X", PartySize: 2,
			StartTime: start, EndTime: start.Add(105 * time.Minute),
			DurationMinutes: 105, GracePeriodMinutes: 15,
			Status:        model.StatusDeparted,
			ActualArrival: &arrival, ActualDeparture: &departure,
			LateArrival: late,
		}
	}

	seed(t, store, completed("r1", day.Add(12*time.Hour), 10, 100, false))
	seed(t, store, completed("r2", day.Add(19*time.Hour), 20, 120, true))
	seed(t, store, completed("r3", day.AddDate(0, 0, 1).Add(19*time.Hour), 0, 80, false))
	// Still seated, excluded from completion stats.
	seed(t, store, model.Reservation{
		ID: "r5", TableID: "t2", CustomerName: "Y", PartySize: 2,
		StartTime: day.Add(19 * time.Hour), EndTime: day.Add(19*time.Hour + 105*time.Minute),
		DurationMinutes: 105, Status: model.StatusSeated,
	})

	stats, err := engine.Durations(context.Background(), "2026-09-01", "2026-09-02")
	if err != nil {
		t.Fatalf("durations: %v", err)
	}
	if stats.TotalCompleted != 3 {
		t.Fatalf("completed = %d, want 3", stats.TotalCompleted)
	}
	if want := (100.0 + 120 + 80) / 3; stats.AvgDiningMinutes != want {
		t.Fatalf("avg dining = %v, want %v", stats.AvgDiningMinutes, want)
	}
	if want := (10.0 + 20 + 0) / 3; stats.AvgDelayMinutes != want {
		t.Fatalf("avg delay = %v, want %v", stats.AvgDelayMinutes, want)
	}
	// Float division is not associative, so compare with a tolerance.
	want := 2.0 / 3 * 100
	if diff := stats.OnTimePercentage - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("on-time = %v, want %v", stats.OnTimePercentage, want)
	}
}

func TestDurationStatsEmptyRange(t *testing.T) {
	engine, _ := newTestEngine(t)

	stats, err := engine.Durations(context.Background(), "2026-09-01", "2026-09-07")
	if err != nil {
		t.Fatalf("durations: %v", err)
	}
	if stats.TotalCompleted != 0 || stats.AvgDiningMinutes != 0 || stats.AvgDelayMinutes != 0 || stats.OnTimePercentage != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestDurationStatsRangeOrder(t *testing.T) {
	engine, _ := newTestEngine(t)

	if _, err := engine.Durations(context.Background(), "2026-09-07", "2026-09-01"); !reservations.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
	if _, err := engine.Durations(context.Background(), "bad", "2026-09-01"); !reservations.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
}
