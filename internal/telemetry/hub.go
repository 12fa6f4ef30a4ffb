package telemetry

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rjboer/GoSpectrum/internal/logging"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

// DefaultHistoryLimit bounds the event history replayed to new subscribers.
const DefaultHistoryLimit = 200

const subscriberBuffer = 32

// Hub collects history and fans out events to subscribers. Frame events are
// not kept in history; only the latest frame is retained.
type Hub struct {
	mu           sync.RWMutex
	history      []Event
	historyLimit int
	latest       *Event
	subscribers  map[chan Event]struct{}
	dropped      atomic.Uint64
	logger       logging.Logger
}

// NewHub builds a hub with the provided history limit.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Hub{
		historyLimit: historyLimit,
		subscribers:  make(map[chan Event]struct{}),
		logger:       logging.OrDefault(logger).With(logging.F("subsystem", "telemetry")),
	}
}

// Report implements Reporter.
func (h *Hub) Report(ev Event) { h.Publish(ev) }

// Publish records ev and forwards it to every subscriber. A subscriber whose
// channel is full misses the event; Publish never blocks.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Type == EventFrame {
		h.latest = &ev
	} else {
		h.history = append(h.history, ev)
		if len(h.history) > h.historyLimit {
			h.history = h.history[len(h.history)-h.historyLimit:]
		}
	}
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			if h.dropped.Add(1)%100 == 1 {
				h.logger.Debug("subscriber too slow, dropping events", logging.F("dropped_total", h.dropped.Load()))
			}
		}
	}
}

// History returns a copy of stored non-frame events, oldest first.
func (h *Hub) History() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.history))
	copy(out, h.history)
	return out
}

// LatestFrame returns the most recently published frame event.
func (h *Hub) LatestFrame() (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return Event{}, false
	}
	return *h.latest, true
}

// Dropped counts events not delivered to slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Subscribe registers a listener for live updates. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	_, ch, cancel := h.subscribe()
	return ch, cancel
}

// subscribe also returns the backlog for a new client: history, then the
// latest frame. Taking it under the same lock as the registration means no
// event is both replayed and delivered, or neither.
func (h *Hub) subscribe() ([]Event, <-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	backlog := make([]Event, len(h.history), len(h.history)+1)
	copy(backlog, h.history)
	if h.latest != nil {
		backlog = append(backlog, *h.latest)
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return backlog, ch, cancel
}

// CloseSubscribers ends every live subscription. Streaming handlers see their
// channel close and return.
func (h *Hub) CloseSubscribers() {
	h.mu.Lock()
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.History())
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	backlog, ch, cancel := h.subscribe()
	defer cancel()

	// send existing history for immediate display
	for _, ev := range backlog {
		writeSSE(w, ev)
	}
	flusher.Flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + string(ev.Type) + "\n"))
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}

// writeJSON is shared by every JSON endpoint.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) { writeJSON(w, status, v) }

// WriteError writes a JSON error body.
func WriteError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// frameMessage is the packed binary form of a frame event used on /ws.
func frameMessage(ev Event, c spectrum.Compression) ([]byte, error) {
	return spectrum.PackWith(*ev.Frame, c)
}
