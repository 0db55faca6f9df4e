// Package poll implements the submit-once, check-until-terminal loop shared by the
// Athena and CloudWatch Logs Insights runners.
package poll

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrTimeout is returned when no terminal state was observed before the deadline.
var ErrTimeout = errors.New("poll: deadline exceeded before terminal state")

// State is the normalized lifecycle of an asynchronous job.
type State string

const (
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Config bounds a poll loop.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultInterval is used by both query runners.
const DefaultInterval = 2 * time.Second

// CheckFunc fetches the current status. done must be true once a terminal state is seen.
type CheckFunc[T any] func(ctx context.Context) (status T, done bool, err error)

// Until calls check immediately and then every cfg.Interval until it reports done,
// returns an error, or cfg.Timeout elapses. A terminal status on the first call returns
// without sleeping. On deadline the last observed status is returned with ErrTimeout.
func Until[T any](ctx context.Context, cfg Config, check CheckFunc[T]) (T, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	var last T
	var checkErr error
	err := wait.PollUntilContextTimeout(ctx, cfg.Interval, cfg.Timeout, true, func(ctx context.Context) (bool, error) {
		status, done, err := check(ctx)
		if err != nil {
			checkErr = err
			return false, err
		}
		last = status
		return done, nil
	})

	switch {
	case err == nil:
		return last, nil
	case ctx.Err() != nil:
		return last, ctx.Err()
	case checkErr != nil && !isContextErr(checkErr):
		return last, checkErr
	case checkErr != nil, wait.Interrupted(err):
		// The poll deadline fired, possibly while a status call was in flight.
		return last, ErrTimeout
	}
	return last, err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
