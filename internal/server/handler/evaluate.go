package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
)

// maxEvaluateBody caps the request body; chat messages are short.
const maxEvaluateBody = 64 << 10

// TextHandler starts evaluations for the tokens found in text.
// *pipeline.Pipeline implements it.
type TextHandler interface {
	HandleText(ctx context.Context, text string) int
}

// EvaluateHandler accepts free text and schedules token evaluations.
type EvaluateHandler struct {
	pipeline TextHandler
	logger   *slog.Logger
}

// NewEvaluateHandler creates an EvaluateHandler.
func NewEvaluateHandler(pipeline TextHandler, logger *slog.Logger) *EvaluateHandler {
	return &EvaluateHandler{
		pipeline: pipeline,
		logger:   logHandler(logger, "evaluate"),
	}
}

type evaluateRequest struct {
	Text string `json:"text"`
}

// Evaluate reads the text from a JSON body ({"text": "..."}) or a plain-text
// body and responds with the number of evaluations scheduled. Evaluations
// run in the background; the response does not wait for them.
// POST /api/evaluate
func (h *EvaluateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEvaluateBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	if len(body) > maxEvaluateBody {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	text := string(body)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var req evaluateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		text = req.Text
	}
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	n := h.pipeline.HandleText(r.Context(), text)
	h.logger.InfoContext(r.Context(), "evaluation requested", slog.Int("tasks", n))
	if n == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no token identifiers found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"tasks":        n,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
