// Package ratelimit bounds per-device request throughput.
//
// A deployment runs exactly one policy, selected through Config:
//
//	sliding  at most MaxRequests in any trailing Window
//	fixed    at most MaxRequests per aligned bucket of length Window
//
// Admit never fails. Callers translate a false decision into a 429.
package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/slog"
)

type Policy string

const (
	PolicySliding Policy = "sliding"
	PolicyFixed   Policy = "fixed"
)

var ErrInvalidConfig = errors.New("invalid rate limit config")

// ParsePolicy accepts a policy name case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySliding, PolicyFixed:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, s)
	}
}

type Config struct {
	Policy      Policy
	Window      time.Duration
	MaxRequests int
}

// DefaultConfig is 100 requests per trailing minute.
func DefaultConfig() Config {
	return Config{
		Policy:      PolicySliding,
		Window:      time.Minute,
		MaxRequests: 100,
	}
}

func (c Config) Validate() error {
	if _, err := ParsePolicy(string(c.Policy)); err != nil {
		return err
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0", ErrInvalidConfig)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be > 0", ErrInvalidConfig)
	}
	return nil
}

// Limiter decides whether one more request from identity may proceed.
type Limiter interface {
	Admit(identity string) bool
}

// Sweeper is implemented by limiters that hold per-device state which can be
// released once it no longer affects any decision.
type Sweeper interface {
	Sweep() int
}

// RetryAdvisor is implemented by limiters that can tell a rejected caller
// how long until capacity returns.
type RetryAdvisor interface {
	RetryAfter(identity string) time.Duration
}

// Counter is a keyed counter whose keys expire after ttl. The fixed policy
// stores its buckets in one.
type Counter interface {
	IncrementWithTTL(key string, ttl time.Duration) (int64, error)
}

type options struct {
	now     func() time.Time
	counter Counter
}

type Option func(*options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCounter sets the bucket store for the fixed policy. Without it the
// fixed policy keeps counters in process memory.
func WithCounter(c Counter) Option {
	return func(o *options) { o.counter = c }
}

// New builds the limiter for cfg.Policy.
func New(cfg Config, log *slog.Logger, opts ...Option) (Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	log = log.With("component", "rate_limiter", "policy", string(cfg.Policy))

	switch cfg.Policy {
	case PolicyFixed:
		counter := o.counter
		if counter == nil {
			counter = NewLocalCounter(cfg.Window)
		}
		return newFixedBucket(cfg, counter, o.now, log), nil
	default:
		return newSlidingWindow(cfg, o.now), nil
	}
}
