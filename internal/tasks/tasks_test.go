package tasks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGroupErrorCancelsSiblingTasks(t *testing.T) {
	g := NewGroup(context.Background())

	stopped := make(chan struct{})
	g.Go("long-runner", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	})

	g.Go("failer", func(ctx context.Context) error {
		return errors.New("boom")
	})

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("expected the failing task's error to cancel the long-runner's context")
	}

	g.Stop()
}

func TestGroupStopCancelsContext(t *testing.T) {
	g := NewGroup(context.Background())
	g.Stop()
	select {
	case <-g.Context().Done():
	default:
		t.Fatalf("expected Context() to be cancelled after Stop")
	}
}
