package connectionmgr

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjboer/GoSpectrum/internal/logging"
)

// DefaultHandshakeDelay separates consecutive handshake messages.
const DefaultHandshakeDelay = 100 * time.Millisecond

// Handshake messages, in send order. The receiver has no acknowledgment
// protocol; each step only relies on the delay before the next.
var handshake = []string{
	"SERVER DE CLIENT client=hackrf-nodejs type=receiver",
	`{"type":"connectionproperties","params":{"output_rate":12000,"hd_output_rate":48000}}`,
	`{"type":"dspcontrol","action":"start"}`,
	`{"type":"dspcontrol","params":{"low_cut":-4000,"high_cut":4000,"offset_freq":0,"mod":"nfm","squelch_level":-150,"secondary_mod":false}}`,
}

var handshakeSteps = []string{"client hello", "connection properties", "dsp start", "demodulator setup"}

// HandshakeMessages returns a copy of the handshake sequence.
func HandshakeMessages() []string {
	return append([]string(nil), handshake...)
}

// sendHandshake writes every handshake message, waiting delay between sends.
// A cancelled context or failed write aborts the whole sequence.
func (m *Manager) sendHandshake(ctx context.Context, conn *websocket.Conn) error {
	for i, msg := range handshake {
		if i > 0 && !sleep(ctx, m.handshakeDelay) {
			return ctx.Err()
		}
		if m.connectTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(m.connectTimeout))
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return &ConnectionError{Op: "handshake " + handshakeSteps[i], Err: err}
		}
		m.log.Info("handshake step sent", logging.F("step", i+1), logging.F("message", handshakeSteps[i]))
	}
	return nil
}

// sleep waits for d or until ctx is done. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
