// Package connectionmgr keeps one websocket connection to an OpenWebRX
// receiver alive: it dials, sends the handshake, routes text and binary
// messages, decodes waterfall payloads into spectrum frames and reconnects on
// failure.
package connectionmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/rjboer/GoSpectrum/internal/logging"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

// Timeouts used when no option overrides them.
const (
	DefaultConnectTimeout = 20 * time.Second
	DefaultURL            = "ws://localhost:8073/ws/"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateStreaming
	StateReconnectScheduled
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateReconnectScheduled:
		return "reconnect_scheduled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler receives connection events. All methods are called from the
// goroutine running Run, one at a time, in arrival order. A frame passed to
// OnFrame belongs to the handler.
type Handler interface {
	OnConnect()
	OnDisconnect()
	OnConfig(Config)
	OnFrame(spectrum.Frame)
	OnError(error)
}

// HandlerFuncs adapts optional functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Connect    func()
	Disconnect func()
	ConfigFunc func(Config)
	Frame      func(spectrum.Frame)
	Error      func(error)
}

func (h HandlerFuncs) OnConnect() {
	if h.Connect != nil {
		h.Connect()
	}
}

func (h HandlerFuncs) OnDisconnect() {
	if h.Disconnect != nil {
		h.Disconnect()
	}
}

func (h HandlerFuncs) OnConfig(c Config) {
	if h.ConfigFunc != nil {
		h.ConfigFunc(c)
	}
}

func (h HandlerFuncs) OnFrame(f spectrum.Frame) {
	if h.Frame != nil {
		h.Frame(f)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// Observer is notified of counters worth exporting. It must not block.
type Observer interface {
	StateChanged(State)
	ConfigReceived()
	FrameDecoded(enc spectrum.Encoding, bins int)
	FrameDropped(reason string)
	ReconnectScheduled(attempt int)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State)                  {}
func (nopObserver) ConfigReceived()                     {}
func (nopObserver) FrameDecoded(spectrum.Encoding, int) {}
func (nopObserver) FrameDropped(string)                 {}
func (nopObserver) ReconnectScheduled(int)              {}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger; nil keeps the process default.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l.With(logging.F("subsystem", "connectionmgr"))
		}
	}
}

// WithHandshakeDelay sets the pause between handshake messages.
func WithHandshakeDelay(d time.Duration) Option {
	return func(m *Manager) { m.handshakeDelay = d }
}

// WithConnectTimeout bounds the dial and each handshake write.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) { m.connectTimeout = d }
}

// WithReadTimeout drops a streaming session that is silent for d. Zero waits
// forever.
func WithReadTimeout(d time.Duration) Option {
	return func(m *Manager) { m.readTimeout = d }
}

// WithReconnectPolicy replaces the default fixed 5 s, unlimited policy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) {
		if d != nil {
			m.dialer = d
		}
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// Manager owns the receiver connection. Create it with New, then either call
// Run from a goroutine you own or use Start and Close.
type Manager struct {
	url      string
	handler  Handler
	dialer   *websocket.Dialer
	log      logging.Logger
	observer Observer

	handshakeDelay time.Duration
	connectTimeout time.Duration
	readTimeout    time.Duration
	policy         ReconnectPolicy

	state    atomic.Int32
	attempts atomic.Int64
	running  atomic.Bool

	cfgMu sync.RWMutex
	cfg   Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runErr error

	now func() time.Time
}

// New creates a manager for the receiver at url. A nil handler discards all
// events.
func New(url string, handler Handler, opts ...Option) *Manager {
	if url == "" {
		url = DefaultURL
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}
	m := &Manager{
		url:            url,
		handler:        handler,
		dialer:         websocket.DefaultDialer,
		log:            logging.Default().With(logging.F("subsystem", "connectionmgr")),
		observer:       nopObserver{},
		handshakeDelay: DefaultHandshakeDelay,
		connectTimeout: DefaultConnectTimeout,
		policy:         DefaultReconnectPolicy(),
		cfg:            Config{FFTCompression: "none"},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// URL returns the receiver address.
func (m *Manager) URL() string { return m.url }

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// IsConnected reports whether the handshake has completed on a live socket.
func (m *Manager) IsConnected() bool { return m.State() == StateStreaming }

// Attempts returns the number of failed connection attempts since the last
// successful session.
func (m *Manager) Attempts() int { return int(m.attempts.Load()) }

// Config returns the most recent receiver config.
func (m *Manager) Config() Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

func (m *Manager) setState(s State) {
	if State(m.state.Swap(int32(s))) != s {
		m.observer.StateChanged(s)
	}
}

// Run connects and keeps reconnecting until ctx is done or the reconnect
// policy gives up. At most one reconnect wait is pending at any time; it is
// owned by this loop. Run returns ctx.Err() on cancellation and wraps
// ErrReconnectExhausted when the policy stops.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)
	defer m.setState(StateDisconnected)

	b := m.policy.backOff()
	b.Reset()
	for {
		m.setState(StateConnecting)
		streamed, err := m.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if streamed {
			b.Reset()
			m.attempts.Store(0)
		}
		if err != nil {
			m.log.Warn("connection failed", logging.Err(err))
			m.handler.OnError(err)
		}

		attempt := int(m.attempts.Add(1))
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			m.log.Error("giving up on receiver", logging.F("attempts", attempt-1))
			return fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempt-1)
		}
		m.setState(StateReconnectScheduled)
		m.observer.ReconnectScheduled(attempt)
		m.log.Info("reconnect scheduled", logging.F("delay", delay.String()), logging.F("attempt", attempt))
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		m.log.Info("attempting to reconnect", logging.F("url", m.url))
	}
}

// session runs one connection from dial to close. streamed reports whether
// the handshake completed.
func (m *Manager) session(ctx context.Context) (streamed bool, err error) {
	m.log.Info("connecting to receiver", logging.F("url", m.url))
	dialCtx := ctx
	if m.connectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
	}
	conn, _, err := m.dialer.DialContext(dialCtx, m.url, nil)
	if err != nil {
		return false, &ConnectionError{Op: "dial", Err: err}
	}
	defer conn.Close()

	// Unblock reads and handshake writes when ctx ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	m.setState(StateHandshaking)
	if err := m.sendHandshake(ctx, conn); err != nil {
		return false, err
	}

	m.setState(StateStreaming)
	m.log.Info("connected to receiver, waiting for FFT data")
	m.handler.OnConnect()
	defer func() {
		m.log.Info("disconnected from receiver")
		m.handler.OnDisconnect()
	}()

	for {
		if m.readTimeout > 0 {
			_ = conn.SetReadDeadline(m.now().Add(m.readTimeout))
		}
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, &ConnectionError{Op: "read", Err: err}
		}
		switch mt {
		case websocket.TextMessage:
			m.handleText(string(msg))
		case websocket.BinaryMessage:
			m.handleBinary(msg)
		}
	}
}

func (m *Manager) handleText(msg string) {
	kind, cfg, err := parseText(msg)
	switch {
	case err != nil:
		m.log.Debug("ignoring text message", logging.Err(err))
	case kind == textGreeting:
		m.log.Info("server handshake", logging.F("greeting", msg))
	case kind == textConfig:
		m.cfgMu.Lock()
		m.cfg = cfg
		m.cfgMu.Unlock()
		m.observer.ConfigReceived()
		m.log.Info("receiver config received",
			logging.F("center_mhz", cfg.CenterFreqHz/1e6),
			logging.F("sample_rate_mhz", cfg.SampleRateHz/1e6),
			logging.F("fft_size", cfg.FFTSize),
			logging.F("compression", cfg.FFTCompression))
		m.handler.OnConfig(cfg)
	}
}

func (m *Manager) handleBinary(msg []byte) {
	tag, payload, ok := splitBinary(msg)
	if !ok || tag != msgTypeFFT {
		return
	}
	values, enc, err := spectrum.Decode(payload)
	if err != nil {
		m.observer.FrameDropped("undecodable")
		m.log.Debug("dropping FFT payload", logging.F("bytes", len(payload)), logging.Err(err))
		return
	}
	m.observer.FrameDecoded(enc, len(values))
	m.log.Debug("FFT payload decoded", logging.F("bins", len(values)), logging.F("encoding", enc.String()))

	cfg := m.Config()
	m.handler.OnFrame(spectrum.NewFrame(m.now().UnixMilli(), cfg.CenterFreqHz, cfg.SampleRateHz, values))
}

// Start runs the lifecycle loop in the background. Calling Start on a
// started manager does nothing.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	go func() {
		defer close(done)
		err := m.Run(ctx)
		m.mu.Lock()
		m.runErr = err
		m.mu.Unlock()
	}()
}

// Close stops a loop started with Start, cancelling any pending reconnect,
// and waits for it to exit. It returns ErrReconnectExhausted if the loop had
// already given up, and nil otherwise.
func (m *Manager) Close() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel, m.done = nil, nil
	if errors.Is(m.runErr, ErrReconnectExhausted) {
		return m.runErr
	}
	return nil
}

// Done is closed when a loop started with Start exits. It is nil before
// Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}
