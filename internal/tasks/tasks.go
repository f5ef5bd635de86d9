// Package tasks implements the process-wide concurrency model from
// spec.md §5: a handful of long-lived goroutines (substrate-scan,
// per-set tributary-scan, per-network processor<->coordinator handler,
// P2P ingress, heartbeat), each independently restartable, none of which
// may panic without taking the whole process down — a panicking task
// indicates state the process can no longer reason about, so a full
// restart (and recovery from durable state) is safer than trying to
// isolate and continue.
package tasks

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tos-network/custody/internal/xlog"
)

// Func is a single long-lived task body; it should run until ctx is
// cancelled and then return nil.
type Func func(ctx context.Context) error

// Group supervises a set of named tasks, any one of which exiting on
// panic brings the whole group (and, since Go logs the panic via
// xlog.Crit, the process) down. Built on errgroup.Group rather than a bare
// sync.WaitGroup: errgroup's WithContext already gives us "first task to
// return an error cancels every sibling," which is exactly the all-or-
// nothing restart policy this package documents, instead of
// reimplementing that cancellation fan-out by hand.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
	log    *xlog.Logger
}

// NewGroup returns a Group bound to parent; cancelling parent stops every
// task in the group.
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	eg, ctx := errgroup.WithContext(ctx)
	return &Group{ctx: ctx, cancel: cancel, eg: eg, log: xlog.Root()}
}

// Go starts fn under name, in its own goroutine. A panic in fn is logged
// via Crit (which itself exits the process, matching internal/config's
// ExitOnPanic hook) rather than silently terminating only this goroutine.
func (g *Group) Go(name string, fn Func) {
	g.eg.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				g.log.Crit("task panicked", "task", name, "panic", r)
				err = fmt.Errorf("task %s panicked: %v", name, r)
			}
		}()
		if ferr := fn(g.ctx); ferr != nil && g.ctx.Err() == nil {
			g.log.Error("task exited with error", "task", name, "err", ferr)
			return ferr
		}
		return nil
	})
}

// Stop cancels every task and waits for them to return.
func (g *Group) Stop() {
	g.cancel()
	_ = g.eg.Wait()
}

// Context returns the group's cancellation context, for tasks started
// outside Go that still need to observe shutdown.
func (g *Group) Context() context.Context { return g.ctx }
