// Package handlers provides the HTTP handlers for shiden.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/observability"
)

// Response bodies of the hardsub endpoint.
const (
	MsgPayloadAccepted  = "Payload accepted"
	MsgUnsupportedMedia = "Content-Type must be application/json"
	MsgPayloadTooLarge  = "Payload too large"
	MsgQueueUnavailable = "Queue unavailable"
	maxPayloadBytes     = 1 << 20
)

// JobQueue is the persisted queue accepted jobs are appended to.
type JobQueue interface {
	Push(job models.Job) error
	List() ([]models.Job, error)
}

// Trigger wakes the queue worker.
type Trigger interface {
	Trigger()
}

// HardsubHandler accepts hardsub jobs over HTTP.
type HardsubHandler struct {
	queue   JobQueue
	trigger Trigger
	logger  *slog.Logger
}

// NewHardsubHandler creates a new hardsub handler.
func NewHardsubHandler(queue JobQueue, trigger Trigger, logger *slog.Logger) *HardsubHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HardsubHandler{queue: queue, trigger: trigger, logger: logger}
}

// ServeHTTP validates the payload, persists the job and wakes the worker.
// The job is on disk before 202 is sent.
func (h *HardsubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r.Header.Get("Content-Type")) {
		http.Error(w, MsgUnsupportedMedia, http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, MsgPayloadTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, models.MsgMalformedJSON, http.StatusBadRequest)
		return
	}

	job, err := models.DecodeJob(body)
	if err != nil {
		msg := models.MsgMalformedJSON
		if e, ok := models.AsError(err); ok && e.Message != "" {
			msg = e.Message
		}
		h.logger.WarnContext(r.Context(), "payload rejected",
			slog.String("reason", msg),
			slog.String("error", err.Error()),
			slog.String("request_id", observability.RequestIDFromContext(r.Context())),
		)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	if err := h.queue.Push(job); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to queue job", slog.String("error", err.Error()))
		http.Error(w, MsgQueueUnavailable, http.StatusInternalServerError)
		return
	}

	fields := make([]any, 0, len(job.Fields()))
	for _, f := range job.Fields() {
		fields = append(fields, slog.String(f.Name, f.Value))
	}
	h.logger.InfoContext(r.Context(), "job queued", fields...)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, MsgPayloadAccepted)

	h.trigger.Trigger()
}

// isJSON reports whether a Content-Type header names application/json,
// ignoring parameters such as charset.
func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
