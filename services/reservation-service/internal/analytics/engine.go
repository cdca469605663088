package analytics

import (
	"context"
	"time"

	"github.com/dinehall/tablebook/services/reservation-service/internal/availability"
	"github.com/dinehall/tablebook/services/reservation-service/internal/model"
	"github.com/dinehall/tablebook/services/reservation-service/internal/policy"
	"github.com/dinehall/tablebook/services/reservation-service/internal/reservations"
	"github.com/dinehall/tablebook/services/reservation-service/internal/tables"
)

// Store is the read side the engine needs. Analytics reads may observe
// eventually-consistent snapshots; they never mutate.
type Store interface {
	// ListOccupiedByDay returns reservations that held a table on the day:
	// confirmed, seated and departed, but never cancelled.
	ListOccupiedByDay(ctx context.Context, dayStart, dayEnd time.Time) ([]model.Reservation, error)
	// ListCompleted returns departed reservations starting in [from, to).
	ListCompleted(ctx context.Context, from, to time.Time) ([]model.Reservation, error)
}

// Engine derives occupancy and timing statistics from stored reservations.
type Engine struct {
	store  Store
	tables tables.Registry
	policy policy.Provider
}

func NewEngine(store Store, registry tables.Registry, provider policy.Provider) *Engine {
	return &Engine{store: store, tables: registry, policy: provider}
}

// TableUtilization is one active table's bookings on a date. Occupancy is
// booked minutes as a share of the 24-hour day.
type TableUtilization struct {
	TableID             string
	ReservationCount    int
	TotalGuests         int
	OccupancyPercentage float64
}

// DurationStats aggregates completed reservations in a date range. All
// ratios over an empty set are 0, never NaN.
type DurationStats struct {
	AvgDiningMinutes float64
	AvgDelayMinutes  float64
	OnTimePercentage float64
	TotalCompleted   int
}

// Utilization reports one row per active table for a restaurant-local day
// ("2006-01-02"), including tables with zero reservations.
func (e *Engine) Utilization(ctx context.Context, day string) ([]TableUtilization, error) {
	windows, err := e.policy.ServiceWindows(ctx)
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd, err := availability.DayBounds(day, windows.Location)
	if err != nil {
		return nil, &reservations.ValidationError{Field: "date", Reason: "must be formatted as 2006-01-02"}
	}

	active, err := e.tables.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	occupied, err := e.store.ListOccupiedByDay(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return utilizationPerTable(active, occupied), nil
}

// Durations aggregates dining duration, arrival delay and punctuality over
// completed reservations between two restaurant-local days, inclusive.
func (e *Engine) Durations(ctx context.Context, fromDay, toDay string) (DurationStats, error) {
	windows, err := e.policy.ServiceWindows(ctx)
	if err != nil {
		return DurationStats{}, err
	}
	from, _, err := availability.DayBounds(fromDay, windows.Location)
	if err != nil {
		return DurationStats{}, &reservations.ValidationError{Field: "from", Reason: "must be formatted as 2006-01-02"}
	}
	_, to, err := availability.DayBounds(toDay, windows.Location)
	if err != nil {
		return DurationStats{}, &reservations.ValidationError{Field: "to", Reason: "must be formatted as 2006-01-02"}
	}
	if !to.After(from) {
		return DurationStats{}, &reservations.ValidationError{Field: "to", Reason: "must not precede from"}
	}

	completed, err := e.store.ListCompleted(ctx, from, to)
	if err != nil {
		return DurationStats{}, err
	}
	return durationStats(completed), nil
}

func utilizationPerTable(active []model.Table, occupied []model.Reservation) []TableUtilization {
	byTable := make(map[string]*TableUtilization, len(active))
	out := make([]TableUtilization, len(active))
	for i, t := range active {
		out[i] = TableUtilization{TableID: t.ID}
		byTable[t.ID] = &out[i]
	}

	for _, res := range occupied {
		row, ok := byTable[res.TableID]
		if !ok {
			// Reservation on a table that has since been deactivated.
			continue
		}
		row.ReservationCount++
		row.TotalGuests += res.PartySize
		row.OccupancyPercentage += float64(res.DurationMinutes) / (24 * 60) * 100
	}
	return out
}

func durationStats(completed []model.Reservation) DurationStats {
	var stats DurationStats
	var diningSum, delaySum float64
	var onTime int

	for _, res := range completed {
		if res.ActualArrival == nil || res.ActualDeparture == nil {
			continue
		}
		stats.TotalCompleted++
		diningSum += res.ActualDeparture.Sub(*res.ActualArrival).Minutes()

		delay := res.ActualArrival.Sub(res.StartTime).Minutes()
		if delay < 0 {
			delay = 0
		}
		delaySum += delay

		if !res.LateArrival {
			onTime++
		}
	}

	if stats.TotalCompleted == 0 {
		return stats
	}
	n := float64(stats.TotalCompleted)
	stats.AvgDiningMinutes = diningSum / n
	stats.AvgDelayMinutes = delaySum / n
	stats.OnTimePercentage = float64(onTime) / n * 100
	return stats
}
