package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testDispatcher(cfg Config) (*Dispatcher, context.CancelFunc) {
	d := New(cfg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	return d, cancel
}

func TestCallRunsOnDispatcher(t *testing.T) {
	d, cancel := testDispatcher(Config{TickEvery: time.Millisecond})
	defer cancel()

	got, err := Call(context.Background(), d, time.Second, func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestPostRejectWhenFull(t *testing.T) {
	d := New(Config{QueueSize: 2}, zerolog.Nop())
	// Not running: the queue only fills.
	if err := d.Post(func() {}, false); err != nil {
		t.Fatalf("post 1: %v", err)
	}
	if err := d.Post(func() {}, false); err != nil {
		t.Fatalf("post 2: %v", err)
	}
	if err := d.Post(func() {}, false); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("post 3 err = %v, want ErrQueueFull", err)
	}
	if got := d.Len(); got != 2 {
		t.Fatalf("queue len = %d, want 2", got)
	}
}

func TestPostDropOldestWhenFull(t *testing.T) {
	d := New(Config{QueueSize: 2}, zerolog.Nop())
	var ran [3]atomic.Bool
	for i := 0; i < 3; i++ {
		i := i
		if err := d.Post(func() { ran[i].Store(true) }, true); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	if got := d.Len(); got != 2 {
		t.Fatalf("queue len = %d, want 2", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx) // stopped run drains the remaining queue

	if ran[0].Load() {
		t.Fatalf("oldest action ran, should have been dropped")
	}
	if !ran[1].Load() || !ran[2].Load() {
		t.Fatalf("surviving actions did not run")
	}
}

func TestCallFailsFastOnSaturatedQueue(t *testing.T) {
	d := New(Config{QueueSize: 1}, zerolog.Nop())
	_ = d.Post(func() {}, false)

	start := time.Now()
	_, err := Call(context.Background(), d, 5*time.Second, func() (struct{}, error) {
		return struct{}{}, nil
	})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("saturated Call blocked instead of failing fast")
	}
}

func TestCallTimeout(t *testing.T) {
	d := New(Config{}, zerolog.Nop())
	// Never started: the posted closure will not execute.
	_, err := Call(context.Background(), d, 20*time.Millisecond, func() (int, error) {
		return 0, nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestCallCancellation(t *testing.T) {
	d := New(Config{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Call(ctx, d, time.Minute, func() (int, error) { return 0, nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestOnTickHookRuns(t *testing.T) {
	d, cancel := testDispatcher(Config{TickEvery: time.Millisecond})
	defer cancel()

	var ticks atomic.Int64
	d.OnTick(func(time.Time) { ticks.Add(1) })

	deadline := time.Now().Add(time.Second)
	for ticks.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ticks.Load() == 0 {
		t.Fatalf("tick hook never ran")
	}
}

func TestStoppedPostReturnsErrStopped(t *testing.T) {
	d := New(Config{TickEvery: time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)
	if err := d.Post(func() {}, true); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}
