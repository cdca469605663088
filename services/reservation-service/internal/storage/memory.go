package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dinehall/tablebook/services/reservation-service/internal/availability"
	"github.com/dinehall/tablebook/services/reservation-service/internal/model"
	"github.com/dinehall/tablebook/services/reservation-service/internal/outbox"
	"github.com/dinehall/tablebook/services/reservation-service/internal/reservations"
)

// MemoryStore keeps reservations in process memory. It backs local
// development runs without a database and the package test suites. Mutations
// re-check the overlap invariant, mirroring the Postgres exclusion
// constraint, so a double-booking can never be stored. Lifecycle events are
// discarded (there is no outbox to drain in this mode).
type MemoryStore struct {
	mu           sync.RWMutex
	reservations map[string]model.Reservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reservations: map[string]model.Reservation{}}
}

func (m *MemoryStore) Create(ctx context.Context, res *model.Reservation, _ *outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res.Status.Blocks() && m.conflictsLocked(*res) {
		return &reservations.ConflictError{TableID: res.TableID, Start: res.StartTime, End: res.EndTime}
	}
	m.reservations[res.ID] = *res
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.reservations[id]
	if !ok {
		return model.Reservation{}, &reservations.NotFoundError{Kind: "reservation", ID: id}
	}
	return res, nil
}

func (m *MemoryStore) Update(_ context.Context, res model.Reservation, _ *outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reservations[res.ID]; !ok {
		return &reservations.NotFoundError{Kind: "reservation", ID: res.ID}
	}
	if res.Status.Blocks() && m.conflictsLocked(res) {
		return &reservations.ConflictError{TableID: res.TableID, Start: res.StartTime, End: res.EndTime}
	}
	m.reservations[res.ID] = res
	return nil
}

func (m *MemoryStore) ListBlocking(_ context.Context, tableID string, start, end time.Time, excludeID string) ([]model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Reservation
	for _, res := range m.reservations {
		if res.TableID != tableID || !res.Status.Blocks() || res.ID == excludeID {
			continue
		}
		if availability.Overlaps(start, end, res.StartTime, res.EndTime) {
			out = append(out, res)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *MemoryStore) ListByDay(_ context.Context, dayStart, dayEnd time.Time) ([]model.Reservation, error) {
	return m.list(func(res model.Reservation) bool {
		return inRange(res.StartTime, dayStart, dayEnd)
	})
}

func (m *MemoryStore) ListOccupiedByDay(_ context.Context, dayStart, dayEnd time.Time) ([]model.Reservation, error) {
	return m.list(func(res model.Reservation) bool {
		return res.Status != model.StatusCancelled && inRange(res.StartTime, dayStart, dayEnd)
	})
}

func (m *MemoryStore) ListCompleted(_ context.Context, from, to time.Time) ([]model.Reservation, error) {
	return m.list(func(res model.Reservation) bool {
		return res.Status == model.StatusDeparted && inRange(res.StartTime, from, to)
	})
}

func (m *MemoryStore) list(keep func(model.Reservation) bool) ([]model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Reservation
	for _, res := range m.reservations {
		if keep(res) {
			out = append(out, res)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *MemoryStore) conflictsLocked(candidate model.Reservation) bool {
	for _, res := range m.reservations {
		if res.ID == candidate.ID || res.TableID != candidate.TableID || !res.Status.Blocks() {
			continue
		}
		if availability.Overlaps(candidate.StartTime, candidate.EndTime, res.StartTime, res.EndTime) {
			return true
		}
	}
	return false
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func sortByStart(rs []model.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].StartTime.Equal(rs[j].StartTime) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].StartTime.Before(rs[j].StartTime)
	})
}

var _ reservations.Store = (*MemoryStore)(nil)
