package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// AlertHandler serves the alert journal.
type AlertHandler struct {
	store  domain.AlertStore
	logger *slog.Logger
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(store domain.AlertStore, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{store: store, logger: logHandler(logger, "alerts")}
}

type alertJSON struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	Score     float64   `json:"score"`
	Price     string    `json:"price"`
	Liquidity string    `json:"liquidity"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListRecent returns the most recent alerts, newest first.
// GET /api/alerts?limit=N
func (h *AlertHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list alerts failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	out := make([]alertJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, alertJSON{
			ID:        rec.ID,
			Token:     rec.Token.String(),
			Score:     rec.Score,
			Price:     rec.Price.String(),
			Liquidity: rec.Liquidity.String(),
			Delivered: rec.Delivered,
			Error:     rec.Error,
			CreatedAt: rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
}
