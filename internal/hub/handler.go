package hub

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPollWindow = 30 * time.Second
	maxPollWindow     = 60 * time.Second
)

type Handler struct {
	broker    *Broker
	evaluator *Evaluator
}

func NewHandler(broker *Broker, evaluator *Evaluator) *Handler {
	return &Handler{broker: broker, evaluator: evaluator}
}

// NewRouter wires the hub endpoints behind the given middleware chain.
func NewRouter(h *Handler, middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.Post("/topics/*", h.PublishHandler)
	r.Get("/topics/*", h.PollHandler)
	r.Get("/healthz", h.HealthHandler)
	return r
}

// PublishHandler accepts one message for a topic. Metrics topics are fed to
// the evaluator, everything else is enqueued as-is.
func (h *Handler) PublishHandler(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "*")
	if topic == "" {
		http.Error(w, "Topic is required", http.StatusNotFound)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if thingName, format, ok := parseMetricsTopic(topic); ok {
		h.evaluator.Evaluate(thingName, format, payload)
	} else {
		h.broker.Publish(topic, payload)
	}

	w.WriteHeader(http.StatusOK)
}

// PollHandler dequeues one message from a topic, long-polling up to the
// timeout query parameter (seconds). An empty poll returns 204.
func (h *Handler) PollHandler(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "*")
	if topic == "" {
		http.Error(w, "Topic is required", http.StatusNotFound)
		return
	}

	wait := defaultPollWindow
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 {
			http.Error(w, "Invalid timeout", http.StatusBadRequest)
			return
		}
		wait = time.Duration(secs) * time.Second
		if wait > maxPollWindow {
			wait = maxPollWindow
		}
	}

	payload, err := h.broker.Poll(r.Context(), topic, wait)
	if err != nil {
		// Client went away mid-poll.
		return
	}
	if payload == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		return
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// parseMetricsTopic matches things/{thing}/defender/metrics/{format}.
func parseMetricsTopic(topic string) (thingName, format string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "things" || parts[2] != "defender" || parts[3] != "metrics" {
		return "", "", false
	}
	if parts[1] == "" || parts[4] == "" {
		return "", "", false
	}
	return parts[1], parts[4], true
}
