package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config tunes the retries of idempotent MES and NATS calls and the breaker
// kept per operation.
type Config struct {
	Retry   RetryPolicy   `yaml:"retry"`
	Breaker BreakerPolicy `yaml:"breaker"`
}

// RetryPolicy is an exponential backoff. Attempts counts the first call.
type RetryPolicy struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	Factor     float64       `yaml:"factor"`
}

// BreakerPolicy opens an operation once FailureRatio of at least MinRequests
// calls failed, and lets HalfOpenCalls through again after OpenTimeout.
type BreakerPolicy struct {
	Enabled       bool          `yaml:"enabled"`
	MinRequests   uint32        `yaml:"min_requests"`
	FailureRatio  float64       `yaml:"failure_ratio"`
	OpenTimeout   time.Duration `yaml:"open_timeout"`
	HalfOpenCalls uint32        `yaml:"half_open_calls"`
}

func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			Attempts:   3,
			Backoff:    250 * time.Millisecond,
			MaxBackoff: 2 * time.Second,
			Factor:     2,
		},
		Breaker: BreakerPolicy{
			Enabled:       true,
			MinRequests:   5,
			FailureRatio:  0.5,
			OpenTimeout:   20 * time.Second,
			HalfOpenCalls: 2,
		},
	}
}

// withDefaults fills unset tuning values. Breaker.Enabled is left as given.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	r, b := &c.Retry, &c.Breaker

	if r.Attempts <= 0 {
		r.Attempts = def.Retry.Attempts
	}
	if r.Backoff <= 0 {
		r.Backoff = def.Retry.Backoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = def.Retry.MaxBackoff
	}
	r.MaxBackoff = max(r.MaxBackoff, r.Backoff)
	if r.Factor < 1 {
		r.Factor = def.Retry.Factor
	}

	if b.MinRequests == 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.Breaker.OpenTimeout
	}
	if b.HalfOpenCalls == 0 {
		b.HalfOpenCalls = def.Breaker.HalfOpenCalls
	}
	return c
}

// delay is the wait after the given failed attempt, starting at 1.
func (p RetryPolicy) delay(attempt int) time.Duration {
	wait := float64(p.Backoff)
	for i := 1; i < attempt; i++ {
		wait *= p.Factor
		if wait >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return min(time.Duration(wait), p.MaxBackoff)
}

func (p BreakerPolicy) tripped(counts gobreaker.Counts) bool {
	if counts.Requests < p.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= p.FailureRatio
}
