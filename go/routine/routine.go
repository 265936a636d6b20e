// Package routine implements a supervised, ticker-driven background
// goroutine with backoff on error — the shape every periodic job in this
// module (currently the delegation sweeper) is built on.
package routine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PermanentError is a permanent error that makes a routine call its onPermanentError callback and exit immediately.
type PermanentError struct{ Err error }

// Error immplements the error interface.
func (e *PermanentError) Error() string { return fmt.Sprintf("permanent error: %v", e.Err) }

// Is is used used by errors.Is() to match correctly.
func (e *PermanentError) Is(err error) bool {
	_, ok := err.(*PermanentError)
	return ok
}

// NewPermanentError instantiates and returns a new permanent error.
func NewPermanentError(message string, args ...any) *PermanentError {
	return &PermanentError{Err: fmt.Errorf(message, args...)}
}

// FN is a routine function.
type FN func(context.Context) error

// Routine is a wrapper around some function that needs to run on a ticker,
// in its own goroutine, supervised for errors.
type Routine struct {
	log *slog.Logger

	name             string
	fn               FN
	onPermanentError func(error)
	exited           chan struct{}
	closeOnce        sync.Once
	cancel           context.CancelFunc

	ticker               *time.Ticker
	constantBackOff      *backoff.ConstantBackOff
	maxConsecutiveErrors int
	errorCounter         prometheus.Counter
}

// New instantiates and return a new Routine.
func New(name string, fn FN, onPermanentError func(error)) *Routine {
	return &Routine{
		log:              slog.Default(),
		name:             name,
		fn:               fn,
		onPermanentError: onPermanentError,
		exited:           make(chan struct{}),
	}
}

func (r *Routine) WithLogger(logger *slog.Logger) *Routine {
	r.log = logger
	return r
}

// WithMaxConsecutiveErrors sets a max consecutive error threshold which, if exceeded, kills the routine.
func (r *Routine) WithMaxConsecutiveErrors(maxConsecutiveErrors int) *Routine {
	r.maxConsecutiveErrors = maxConsecutiveErrors
	return r
}

// WithTickerS sets the interval, in seconds, at which fn is invoked.
func (r *Routine) WithTickerS(seconds int) *Routine {
	if r.ticker != nil {
		panic("WithTickerS called twice")
	}
	r.ticker = time.NewTicker(time.Duration(seconds) * time.Second)
	return r
}

// WithErrorCounter sets a routine to measure number of errors.
func (r *Routine) WithErrorCounter(name string) *Routine {
	r.errorCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: name,
			Help: "Errors returned from routine",
		},
	)
	return r
}

// WithConstantBackOff adds a constant backoff everytime a non permanent error is encountered.
func (r *Routine) WithConstantBackOff(seconds int) *Routine {
	r.constantBackOff = backoff.NewConstantBackOff(time.Duration(seconds) * time.Second)
	return r
}

// Start the routine. Non-blocking call.
func (r *Routine) Start(ctx context.Context) *Routine {
	if r.ticker == nil {
		panic("routine requires WithTickerS before Start")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.log = r.log.With("routine", r.name)
	r.log.InfoContext(ctx, "started routine")
	consecutiveErrors := 0

	go func() {
		defer func() {
			close(r.exited)
			r.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				r.log.InfoContext(ctx, "context done", "error", ctx.Err())
				return
			case <-r.ticker.C:
			}

			if err := r.execute(ctx); err != nil {
				consecutiveErrors++
				if errors.Is(err, &PermanentError{}) {
					r.log.ErrorContext(ctx, "exiting due to permanent error", "error", err)
					r.onPermanentError(err)
					return
				}
				if r.maxConsecutiveErrors != 0 && consecutiveErrors >= r.maxConsecutiveErrors {
					permErr := NewPermanentError("exceeded max consecutive errors (%d): %w", r.maxConsecutiveErrors, err)
					r.log.ErrorContext(ctx, "exiting due to permanent error", "error", permErr)
					r.onPermanentError(permErr)
					return
				}
				r.log.ErrorContext(ctx, "executing fn", "error", err)
				if r.constantBackOff != nil {
					time.Sleep(r.constantBackOff.NextBackOff())
				}
				continue
			}
			consecutiveErrors = 0
		}
	}()
	return r
}

// Close closes this routine. It is a blocking call guaranteeing that the routine has exited its loop by the time it returns.
func (r *Routine) Close() {
	r.closeOnce.Do(func() {
		r.log.Info("closing")
		r.cancel()
		<-r.exited
		r.log.Info("closed")
		r.ticker.Stop()
	})
}

func (r *Routine) execute(ctx context.Context) error {
	err := r.fn(ctx)
	if r.errorCounter != nil && err != nil {
		r.errorCounter.Inc()
	}
	return err
}
