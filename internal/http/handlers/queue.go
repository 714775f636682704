package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// QueueHandler lists the jobs waiting to be processed.
type QueueHandler struct {
	queue  JobQueue
	logger *slog.Logger
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(queue JobQueue, logger *slog.Logger) *QueueHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueHandler{queue: queue, logger: logger}
}

// ServeHTTP writes the queue as a JSON array, head first.
func (h *QueueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.List()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read queue", slog.String("error", err.Error()))
		http.Error(w, MsgQueueUnavailable, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(jobs); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write queue response", slog.String("error", err.Error()))
	}
}
