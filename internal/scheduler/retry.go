package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rendis/worldscript/pkg/schema"
)

// retryPolicy bounds retries of queue store writes.
type retryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

var defaultRetry = retryPolicy{Attempts: 4, Base: 25 * time.Millisecond, Max: time.Second}

// isRetryable classifies whether a queue store error is worth retrying.
// Typed script errors are final; SQLite contention is transient.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *schema.ScriptError
	if errors.As(err, &se) {
		return se.Code == schema.ErrCodeStore && isContention(se.Error())
	}
	return isContention(err.Error())
}

func isContention(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range []string{"database is locked", "database is busy", "sqlite_busy", "sqlite_locked", "i/o timeout"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// backoff returns the exponential delay before retry attempt (0-based),
// capped at Max.
func (p retryPolicy) backoff(attempt int) time.Duration {
	delay := p.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	return delay
}

// do runs fn until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx is done. It returns the last error.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < max(p.Attempts, 1); attempt++ {
		if err = fn(); err == nil || !isRetryable(err) {
			return err
		}
		if attempt == p.Attempts-1 {
			break
		}
		select {
		case <-time.After(p.backoff(attempt)):
		case <-ctx.Done():
			return err
		}
	}
	return err
}
