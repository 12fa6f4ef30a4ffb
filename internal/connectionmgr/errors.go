package connectionmgr

import (
	"errors"
	"fmt"
)

var (
	// ErrReconnectExhausted is returned by Run when a finite reconnect
	// policy runs out of attempts.
	ErrReconnectExhausted = errors.New("connectionmgr: reconnect attempts exhausted")
	// ErrAlreadyRunning is returned by Run when the lifecycle loop is active.
	ErrAlreadyRunning = errors.New("connectionmgr: already running")
)

// ConnectionError is a socket level failure: dial, handshake write or read.
// It always leads to a reconnect.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connectionmgr: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError describes an inbound message that could not be used. The
// message is dropped and the connection stays open.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "connectionmgr: protocol: " + e.Reason
}
