package tables

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dinehall/tablebook/services/reservation-service/internal/model"
)

// ErrNotFound is returned when no active table has the requested ID.
var ErrNotFound = errors.New("table not found")

// Registry supplies the active physical tables. The reservation core never
// mutates tables; they are owned by the admin side of the system.
type Registry interface {
	ListActive(ctx context.Context) ([]model.Table, error)
	Get(ctx context.Context, id string) (model.Table, error)
}

type staticRegistry struct {
	tables map[string]model.Table
	order  []string
}

// NewStaticRegistry builds an in-memory registry from a fixed table set.
func NewStaticRegistry(ts []model.Table) Registry {
	reg := &staticRegistry{tables: make(map[string]model.Table, len(ts))}
	for _, t := range ts {
		if _, ok := reg.tables[t.ID]; !ok {
			reg.order = append(reg.order, t.ID)
		}
		reg.tables[t.ID] = t
	}
	return reg
}

func (r *staticRegistry) ListActive(_ context.Context) ([]model.Table, error) {
	out := make([]model.Table, 0, len(r.order))
	for _, id := range r.order {
		if t := r.tables[id]; t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *staticRegistry) Get(_ context.Context, id string) (model.Table, error) {
	t, ok := r.tables[id]
	if !ok || !t.Active {
		return model.Table{}, ErrNotFound
	}
	return t, nil
}

// ParseStatic parses a "id:capacity:min_party,..." spec, e.g.
// "t1:4:1,t2:2:1,t3:8:4". Used when running without a database.
func ParseStatic(raw string) ([]model.Table, error) {
	var out []model.Table
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid table spec %q", part)
		}
		capacity, err := strconv.Atoi(fields[1])
		if err != nil || capacity < 1 {
			return nil, fmt.Errorf("invalid capacity in %q", part)
		}
		minParty, err := strconv.Atoi(fields[2])
		if err != nil || minParty < 1 || minParty > capacity {
			return nil, fmt.Errorf("invalid min party size in %q", part)
		}
		out = append(out, model.Table{
			ID:           fields[0],
			Capacity:     capacity,
			MinPartySize: minParty,
			Active:       true,
		})
	}
	if len(out) == 0 {
		return nil, errors.New("no tables configured")
	}
	return out, nil
}
