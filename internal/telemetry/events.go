// Package telemetry is the fan-out boundary: it carries processed frames,
// detections and connection status to live subscribers (SSE and websocket),
// Prometheus, MQTT and the log.
package telemetry

import (
	"time"

	"github.com/rjboer/GoSpectrum/internal/connectionmgr"
	"github.com/rjboer/GoSpectrum/internal/dsp"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

// EventType names what an Event carries.
type EventType string

const (
	EventFrame   EventType = "fftData"
	EventSignals EventType = "signals"
	EventConfig  EventType = "config"
	EventStatus  EventType = "status"
	EventError   EventType = "error"
)

// Signal sources.
const (
	SourceLive = "live"
	SourceScan = "scan"
	SourceDemo = "demo"
)

// Event is one published update. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType             `json:"type"`
	Time      time.Time             `json:"timestamp"`
	Frame     *spectrum.Frame       `json:"frame,omitempty"`
	Stats     *dsp.Stats            `json:"stats,omitempty"`
	Signals   []spectrum.Signal     `json:"signals,omitempty"`
	Source    string                `json:"source,omitempty"`
	Profile   string                `json:"profile,omitempty"`
	Config    *connectionmgr.Config `json:"config,omitempty"`
	Connected *bool                 `json:"connected,omitempty"`
	Message   string                `json:"message,omitempty"`
}

// FrameEvent wraps a processed frame and its statistics.
func FrameEvent(f spectrum.Frame, stats dsp.Stats) Event {
	return Event{Type: EventFrame, Time: time.Now(), Frame: &f, Stats: &stats}
}

// SignalsEvent wraps a detection result.
func SignalsEvent(source, profile string, signals []spectrum.Signal) Event {
	return Event{Type: EventSignals, Time: time.Now(), Source: source, Profile: profile, Signals: signals}
}

// ConfigEvent announces a new receiver config.
func ConfigEvent(cfg connectionmgr.Config) Event {
	return Event{Type: EventConfig, Time: time.Now(), Config: &cfg}
}

// StatusEvent announces a connection change.
func StatusEvent(connected bool, message string) Event {
	return Event{Type: EventStatus, Time: time.Now(), Connected: &connected, Message: message}
}

// ErrorEvent carries an error message.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Time: time.Now(), Message: err.Error()}
}

// Reporter receives published events. Implementations must not block the
// caller for long; the ingestion path calls Report inline.
type Reporter interface {
	Report(Event)
}

// MultiReporter fans out events to multiple destinations.
type MultiReporter []Reporter

// Report forwards the event to each configured reporter.
func (m MultiReporter) Report(ev Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ev)
		}
	}
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(ev Event) { f(ev) }
