package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
)

// Class is the verdict of a Classifier on a failed call.
type Class struct {
	// Transient failures are attempted again when the call is idempotent.
	Transient bool
	// Trips counts the failure against the breaker of the operation.
	Trips bool
}

type Classifier func(err error) Class

// Call describes one guarded operation. Only idempotent calls are retried:
// a point or a reading must never reach the MES twice.
type Call struct {
	Operation  string
	Idempotent bool
	Classify   Classifier
}

// Observer is told about breaker transitions and scheduled retries.
type Observer interface {
	BreakerState(operation, state string)
	RetryScheduled(operation string)
}

type Executor struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config, logger *slog.Logger, observer Observer) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Executor{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		observer: observer,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Do runs fn under the breaker of the operation. A call refused by an open
// breaker fails with domain.ErrTransport, so the item is quarantined and
// picked up by the retry pass.
func (e *Executor) Do(ctx context.Context, call Call, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: %s has no callback", call.Operation)
	}
	call.Operation = strings.TrimSpace(call.Operation)
	if call.Operation == "" {
		call.Operation = "unknown"
	}
	if call.Classify == nil {
		call.Classify = permanent
	}

	if !e.cfg.Breaker.Enabled {
		return e.attempt(ctx, call, fn)
	}
	_, err := e.breaker(call).Execute(func() (struct{}, error) {
		return struct{}{}, e.attempt(ctx, call, fn)
	})
	if IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTransport, call.Operation, err)
	}
	return err
}

func (e *Executor) attempt(ctx context.Context, call Call, fn func(context.Context) error) error {
	limit := 1
	if call.Idempotent {
		limit = e.cfg.Retry.Attempts
	}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil || n >= limit || !call.Classify(err).Transient {
			return err
		}

		wait := e.cfg.Retry.delay(n)
		e.logger.Warn("retry_scheduled",
			"operation", call.Operation,
			"attempt", n,
			"max_attempts", limit,
			"wait", wait.String(),
			"error", err,
		)
		e.observer.RetryScheduled(call.Operation)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (e *Executor) breaker(call Call) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[call.Operation]; ok {
		return cb
	}
	policy := e.cfg.Breaker
	classify := call.Classify
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        call.Operation,
		MaxRequests: policy.HalfOpenCalls,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: policy.tripped,
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).Trips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("breaker_state_changed", "operation", name, "from", from.String(), "to", to.String())
			e.observer.BreakerState(name, to.String())
		},
	})
	e.breakers[call.Operation] = cb
	e.observer.BreakerState(call.Operation, gobreaker.StateClosed.String())
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func permanent(error) Class {
	return Class{Transient: false, Trips: true}
}

type nopObserver struct{}

func (nopObserver) BreakerState(string, string) {}
func (nopObserver) RetryScheduled(string)       {}
