package telemetry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjboer/GoSpectrum/internal/logging"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWS streams events over a websocket. Frame events are sent as packed
// binary frames, compressed per the "compression" query parameter; every other
// event is a JSON text message.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	var comp spectrum.Compression
	if err := comp.UnmarshalText([]byte(r.URL.Query().Get("compression"))); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Err(err))
		return
	}

	backlog, ch, cancel := h.subscribe()
	log := h.logger.With(logging.F("remote", r.RemoteAddr))
	log.Info("live client connected", logging.F("compression", comp.String()))

	go writePump(conn, backlog, ch, comp, log)

	// The read side only services control frames and detects the close.
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("live client read error", logging.Err(err))
			}
			break
		}
	}
	cancel()
	log.Info("live client disconnected")
}

// writePump owns all writes to conn: the backlog first, then live events. It
// exits when the subscription channel is closed or a write fails.
func writePump(conn *websocket.Conn, backlog []Event, ch <-chan Event, comp spectrum.Compression, log logging.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for _, ev := range backlog {
		if err := writeEvent(conn, ev, comp); err != nil {
			log.Debug("live client write failed", logging.Err(err))
			return
		}
	}
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
				return
			}
			if err := writeEvent(conn, ev, comp); err != nil {
				log.Debug("live client write failed", logging.Err(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev Event, comp spectrum.Compression) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if ev.Type == EventFrame && ev.Frame != nil {
		msg, err := frameMessage(ev, comp)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.BinaryMessage, msg)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
