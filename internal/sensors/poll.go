package sensors

import (
	"context"
	"time"
)

const (
	DefaultPollInterval = 5 * time.Millisecond
	DefaultReadyTimeout = 1000 * time.Millisecond
)

// Opts controls the status polls of a driver. A nil *Opts selects the
// defaults.
type Opts struct {
	PollInterval time.Duration
	ReadyTimeout time.Duration
}

// Resolve returns a copy with zero fields replaced by defaults.
func (o *Opts) Resolve() Opts {
	var r Opts
	if o != nil {
		r = *o
	}
	if r.PollInterval <= 0 {
		r.PollInterval = DefaultPollInterval
	}
	if r.ReadyTimeout <= 0 {
		r.ReadyTimeout = DefaultReadyTimeout
	}
	return r
}

// WaitUntil calls ready every interval until it reports true, it fails, ctx
// is done, or timeout elapses. The last check happens at the deadline, so a
// timeout is reported no later than timeout plus one check.
func WaitUntil(ctx context.Context, interval, timeout time.Duration, ready func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := ready()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
