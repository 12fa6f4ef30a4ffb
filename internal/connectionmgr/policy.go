package connectionmgr

import (
	"time"

	"github.com/cenkalti/backoff"
)

// DefaultReconnectDelay is the fixed wait between connection attempts.
const DefaultReconnectDelay = 5 * time.Second

// ReconnectPolicy is a fixed delay with an optional attempt cap. MaxAttempts
// counts reconnects after the first failure; 0 retries forever.
type ReconnectPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy waits 5 s between attempts, without limit.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Delay: DefaultReconnectDelay}
}

func (p ReconnectPolicy) backOff() backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts))
	}
	return b
}
