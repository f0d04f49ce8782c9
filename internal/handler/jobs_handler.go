package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"go-file-tree/internal/event"
	"go-file-tree/internal/model"
	"go-file-tree/internal/service"
	"go-file-tree/pkg/apierror"
)

const sseKeepAlive = 15 * time.Second

type JobsHandler struct {
	service   *service.JobService
	bus       event.Bus
	keepAlive time.Duration
}

func NewJobsHandler(service *service.JobService, bus event.Bus) *JobsHandler {
	return &JobsHandler{service: service, bus: bus, keepAlive: sseKeepAlive}
}

func (h *JobsHandler) CreateMoveJob(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.MoveBatchRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	job, err := h.service.CreateMoveJob(r.Context(), principal, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusAccepted, job, nil)
}

func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	jobID, err := jobIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	job, err := h.service.GetJob(r.Context(), principal, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, job, nil)
}

// Events streams the job's bus events as server-sent events. The stream
// opens with a snapshot of the job and ends after its terminal event. The
// bus may drop events for a slow reader, so every keep-alive also re-reads
// the job and ends the stream with a final snapshot once it is terminal.
func (h *JobsHandler) Events(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	jobID, err := jobIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apierror.New("STREAMING_UNSUPPORTED", "streaming is not supported", "", http.StatusInternalServerError))
		return
	}

	// Subscribe before the snapshot so no event falls between the two.
	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	job, err := h.service.GetJob(r.Context(), principal, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "job.snapshot", job); err != nil {
		return
	}
	flusher.Flush()
	if jobTerminal(job) {
		return
	}

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			current, err := h.service.GetJob(r.Context(), principal, jobID)
			if err == nil && jobTerminal(current) {
				_ = writeSSE(w, "job.snapshot", current)
				flusher.Flush()
				return
			}
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt, open := <-events:
			if !open {
				return
			}
			if evt.Subject != jobID || evt.ActorID != principal.ID {
				continue
			}

			if err := writeSSE(w, string(evt.Type), evt); err != nil {
				slog.Debug("job event stream closed", "job_id", jobID, "error", err)
				return
			}
			flusher.Flush()

			if evt.Terminal() {
				return
			}
		}
	}
}

func jobTerminal(job model.JobData) bool {
	return job.Status == model.JobStatusCompleted || job.Status == model.JobStatusPartial || job.Status == model.JobStatusFailed
}

func writeSSE(w http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

func jobIDParam(r *http.Request) (string, error) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		return "", apierror.InvalidArgument("job_id is required", "job_id")
	}
	return jobID, nil
}
