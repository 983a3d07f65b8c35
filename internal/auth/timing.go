package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelayMs    int
	RandomDelayMs  int
	DelayOnSuccess bool
}

// TimingDelay pads authentication failures to a common duration so that
// an unknown identifier and a wrong password are indistinguishable by time.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// cryptoRandIntn returns a secure random number in [0, max)
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}

	return int(binary.BigEndian.Uint64(b[:]) % uint64(max)), nil
}

func (td *TimingDelay) target() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if n, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
		delay += time.Duration(n) * time.Millisecond
	}
	return delay
}

// Wait sleeps for base + random delay unless success is true and
// DelayOnSuccess is off.
func (td *TimingDelay) Wait(success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	time.Sleep(td.target())
}

// WaitFrom sleeps until at least the target delay has elapsed since start.
// It returns early if ctx is done.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}

	remaining := td.target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
