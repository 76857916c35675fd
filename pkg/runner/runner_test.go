package runner

import (
	"context"
	"testing"
	"time"
)

type recordingDrainer struct {
	drained chan struct{}
	block   time.Duration
}

func (d *recordingDrainer) Drain() error {
	if d.block > 0 {
		time.Sleep(d.block)
	}
	close(d.drained)
	return nil
}

func TestLifecycleRunsHooksAndDrains(t *testing.T) {
	d := &recordingDrainer{drained: make(chan struct{})}
	started := false
	stopped := false

	lr := NewLifecycleRunner(d, Hooks{
		OnStart: func() { started = true },
		OnStop:  func() { stopped = true },
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lr.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for lr.State() != StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("runner never reached running state")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run never returned")
	}

	select {
	case <-d.drained:
	default:
		t.Fatalf("drainer not invoked")
	}
	if !started || !stopped {
		t.Fatalf("hooks not invoked: started=%v stopped=%v", started, stopped)
	}
	if lr.State() != StateStopped {
		t.Fatalf("expected stopped state, got %v", lr.State())
	}
}

func TestLifecycleDrainTimeout(t *testing.T) {
	d := &recordingDrainer{drained: make(chan struct{}), block: 500 * time.Millisecond}
	lr := NewLifecycleRunner(d, Hooks{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := lr.Run(ctx)
	if err == nil || err.Error() != "drain timeout" {
		t.Fatalf("expected drain timeout, got %v", err)
	}
}

func TestLifecycleRunTwiceRejected(t *testing.T) {
	lr := NewLifecycleRunner(nil, Hooks{}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := lr.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := lr.Run(ctx); err == nil {
		t.Fatalf("second run must fail")
	}
}
