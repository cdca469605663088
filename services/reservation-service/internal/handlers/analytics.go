package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dinehall/tablebook/services/reservation-service/internal/analytics"
	"github.com/dinehall/tablebook/services/reservation-service/internal/reservations"
)

type AnalyticsHandler struct {
	engine *analytics.Engine
	logger *slog.Logger
}

func NewAnalyticsHandler(engine *analytics.Engine, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{engine: engine, logger: logger}
}

type utilizationItem struct {
	TableID             string  `json:"table_id"`
	ReservationCount    int     `json:"reservation_count"`
	TotalGuests         int     `json:"total_guests"`
	OccupancyPercentage float64 `json:"occupancy_percentage"`
}

func (h *AnalyticsHandler) Utilization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	day := strings.TrimSpace(r.URL.Query().Get("date"))
	if day == "" {
		http.Error(w, "date required", http.StatusBadRequest)
		return
	}

	rows, err := h.engine.Utilization(r.Context(), day)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]utilizationItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, utilizationItem{
			TableID:             row.TableID,
			ReservationCount:    row.ReservationCount,
			TotalGuests:         row.TotalGuests,
			OccupancyPercentage: row.OccupancyPercentage,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type durationStatsResponse struct {
	AvgDiningMinutes float64 `json:"avg_dining_minutes"`
	AvgDelayMinutes  float64 `json:"avg_delay_minutes"`
	OnTimePercentage float64 `json:"on_time_percentage"`
	TotalCompleted   int     `json:"total_completed"`
}

func (h *AnalyticsHandler) Durations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))
	if from == "" || to == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}

	stats, err := h.engine.Durations(r.Context(), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, durationStatsResponse{
		AvgDiningMinutes: stats.AvgDiningMinutes,
		AvgDelayMinutes:  stats.AvgDelayMinutes,
		OnTimePercentage: stats.OnTimePercentage,
		TotalCompleted:   stats.TotalCompleted,
	})
}

func (h *AnalyticsHandler) writeError(w http.ResponseWriter, err error) {
	if reservations.IsValidation(err) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	h.logger.Error("analytics query failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
