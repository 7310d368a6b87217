// Package audit records the agent's callback events for offline review.
//
// The event dispatcher notifies the configured observers about every event
// it raises, before the host callback runs. Observers are best-effort: a
// failing observer is logged and skipped, never propagated into the
// reporting cycle.
package audit

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Event is one dispatched agent event.
type Event struct {
	Timestamp int64  `json:"ts"`
	Event     string `json:"event"`
	ThingName string `json:"thing_name"`
	Throttled bool   `json:"throttled,omitempty"`
}

// NewEvent stamps an audit event with the current time.
func NewEvent(event, thingName string, throttled bool) Event {
	return Event{
		Timestamp: time.Now().Unix(),
		Event:     event,
		ThingName: thingName,
		Throttled: throttled,
	}
}

// Observer consumes audit events.
type Observer interface {
	Notify(event Event)
}

// Subject fans audit events out to registered observers.
type Subject struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewSubject() *Subject {
	return &Subject{}
}

func (s *Subject) Register(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Subject) NotifyAll(event Event) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, o := range observers {
		o.Notify(event)
	}
}

// FileObserver appends events as JSON lines to a file.
type FileObserver struct {
	filePath string
}

func NewFileObserver(filePath string) *FileObserver {
	return &FileObserver{filePath: filePath}
}

func (o *FileObserver) Notify(event Event) {
	file, err := os.OpenFile(o.filePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		log.Error().Err(err).Msg("failed to open audit file")
		return
	}
	defer file.Close()

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal audit event")
		return
	}

	if _, err := fmt.Fprintln(file, string(data)); err != nil {
		log.Error().Err(err).Msg("failed to write audit event")
	}
}

// HTTPObserver posts events as JSON to a collector URL.
type HTTPObserver struct {
	url    string
	client *http.Client
}

func NewHTTPObserver(url string) *HTTPObserver {
	return &HTTPObserver{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (o *HTTPObserver) Notify(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal audit event")
		return
	}

	resp, err := o.client.Post(o.url, "application/json", bytes.NewReader(data))
	if err != nil {
		log.Error().Err(err).Msg("failed to send audit event")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Msg("audit collector returned non-OK status")
	}
}
