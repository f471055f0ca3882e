// Package retry waits out transient database failures. It is used while
// connecting, never around statement execution: a failed INSERT is not
// safe to repeat.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- share of each delay

	// MaxSameKind escalates to a permanent failure after this many
	// consecutive errors of the same kind. Zero disables escalation.
	MaxSameKind int

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig returns sensible defaults for database operations
// 3 retries with 100ms initial delay, capped at 5s, doubling each time, with 10% jitter
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
		MaxSameKind:  5,
	}
}

// Error kinds reported by Classify.
const (
	KindNone       = "none"
	KindConnection = "connection"
	KindTimeout    = "timeout"
	KindDNS        = "dns"
	KindPermanent  = "permanent"
)

// retryableSQLStates are server errors that say nothing about the
// statement itself: the server is starting, shutting down, out of
// connections, or the transaction lost a serialization race.
var retryableSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P03": true, // cannot_connect_now
}

// transientMessages map lower-cased error text to a kind for errors that
// never reached the server and so carry no SQLSTATE.
var transientMessages = []struct {
	fragment string
	kind     string
}{
	{"connection refused", KindConnection},
	{"connection reset", KindConnection},
	{"broken pipe", KindConnection},
	{"network is unreachable", KindConnection},
	{"the database system is starting up", KindConnection},
	{"too many connections", KindConnection},
	{"no such host", KindDNS},
	{"temporary failure", KindDNS},
	{"timeout", KindTimeout},
	{"timed out", KindTimeout},
}

// Classify reports the kind of err and whether waiting could help.
// PostgreSQL errors are judged only by SQLSTATE: class 08 and
// retryableSQLStates are transient, anything else the server said is
// permanent whatever its message.
func Classify(err error) (kind string, retryable bool) {
	if err == nil {
		return KindNone, false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") || retryableSQLStates[pgErr.Code] {
			return "sqlstate_" + pgErr.Code, true
		}
		return KindPermanent, false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout, true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m.fragment) {
			return m.kind, true
		}
	}
	return KindPermanent, false
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	_, ok := Classify(err)
	return ok
}

// backoff yields successive jittered delays.
type backoff struct {
	next   time.Duration
	max    time.Duration
	factor float64
	jitter float64
}

func (b *backoff) wait() time.Duration {
	d := b.next
	b.next = time.Duration(float64(b.next) * b.factor)
	if b.next > b.max {
		b.next = b.max
	}
	return applyJitter(d, b.jitter)
}

// applyJitter spreads delay by +/- jitterFactor.
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// DoIfRetryable runs fn until it succeeds, returns a permanent error, or
// the retries run out. After MaxSameKind consecutive failures of one kind
// the error is returned wrapped as permanent. Cancelling ctx stops the
// wait and returns ctx.Err().
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	b := &backoff{next: cfg.InitialDelay, max: cfg.MaxDelay, factor: cfg.Multiplier, jitter: cfg.JitterFactor}
	var (
		lastKind string
		sameKind int
		err      error
	)

	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		kind, retryable := Classify(err)
		if !retryable {
			return err
		}

		if kind == lastKind {
			sameKind++
		} else {
			lastKind, sameKind = kind, 1
		}
		if cfg.MaxSameKind > 0 && sameKind >= cfg.MaxSameKind {
			return fmt.Errorf("repeated error (%d times, type=%s): %w", sameKind, kind, err)
		}

		if attempt >= cfg.MaxRetries {
			return err
		}

		wait := b.wait()
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
