package scanner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RetryFloor is the minimum wait before retrying a failed external-chain
// RPC call; RetryCeiling caps how far exponential backoff can grow it,
// per spec.md §5: "External-chain RPC calls use a 10-second retry with
// exponential backoff, unbounded in total duration (the system is
// liveness-first: it blocks rather than corrupts state)."
const (
	RetryFloor   = 10 * time.Second
	RetryCeiling = 5 * time.Minute
)

// RPCRetrier wraps calls to an ExternalChain's RPC-backed methods with
// unbounded exponential backoff on failure, plus a steady-state rate
// limit so a burst of queued work doesn't immediately resaturate a node
// that just recovered.
type RPCRetrier struct {
	limiter *rate.Limiter
}

// NewRPCRetrier returns a retrier allowing rps steady-state calls per
// second once the chain is healthy.
func NewRPCRetrier(rps float64) *RPCRetrier {
	return &RPCRetrier{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Do calls fn, retrying with exponential backoff starting at RetryFloor
// and capped at RetryCeiling, until it succeeds or ctx is cancelled.
func (r *RPCRetrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := RetryFloor
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := fn(ctx); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > RetryCeiling {
			delay = RetryCeiling
		}
	}
}
