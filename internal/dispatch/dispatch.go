// Package dispatch funnels platform-API work onto one designated
// goroutine. The underlying OS notification APIs are only safe to call
// from a single thread, so every backend call is posted here as a
// closure and drained by Run, once per tick, within a time budget.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"localnotify/internal/metrics"
)

var (
	ErrQueueFull = errors.New("dispatch: queue full")
	ErrStopped   = errors.New("dispatch: stopped")
)

type Action func()

type Config struct {
	// QueueSize bounds the number of pending actions.
	QueueSize int
	// TickEvery is the drain cadence.
	TickEvery time.Duration
	// TickBudget caps how long a single drain may run.
	TickBudget time.Duration
	// MaxPerTick caps how many actions a single drain may execute.
	MaxPerTick int
}

func (c *Config) normalize() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.TickEvery <= 0 {
		c.TickEvery = 10 * time.Millisecond
	}
	if c.TickBudget <= 0 {
		c.TickBudget = 2 * time.Millisecond
	}
	if c.MaxPerTick <= 0 {
		c.MaxPerTick = 32
	}
}

type Dispatcher struct {
	mu      sync.Mutex
	queue   []Action
	stopped bool

	cfg Config
	log zerolog.Logger
	mc  *metrics.Collector

	// dropLog throttles drop-oldest warnings so a saturated queue
	// cannot flood the log.
	dropLog *rate.Limiter

	hooksMu sync.Mutex
	hooks   []func(now time.Time)

	runDone chan struct{}
}

func New(cfg Config, log zerolog.Logger) *Dispatcher {
	cfg.normalize()
	return &Dispatcher{
		queue:   make([]Action, 0, cfg.QueueSize),
		cfg:     cfg,
		log:     log,
		mc:      metrics.Default(),
		dropLog: rate.NewLimiter(rate.Every(time.Second), 3),
		runDone: make(chan struct{}),
	}
}

// OnTick registers fn to run on the dispatcher goroutine once per tick,
// after the queue drain. Used for breaker cooldown checks and pool
// metric folds.
func (d *Dispatcher) OnTick(fn func(now time.Time)) {
	d.hooksMu.Lock()
	d.hooks = append(d.hooks, fn)
	d.hooksMu.Unlock()
}

// Post enqueues an action. When the queue is at capacity, dropOldest
// selects between evicting the oldest queued action (lossy, logged) and
// rejecting the new one with ErrQueueFull.
func (d *Dispatcher) Post(a Action, dropOldest bool) error {
	if a == nil {
		return nil
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	dropped := false
	if len(d.queue) >= d.cfg.QueueSize {
		if !dropOldest {
			d.mu.Unlock()
			return ErrQueueFull
		}
		d.queue = d.queue[1:]
		dropped = true
	}
	d.queue = append(d.queue, a)
	depth := len(d.queue)
	d.mu.Unlock()
	d.mc.DispatchDepth.Set(float64(depth))
	if dropped {
		d.mc.DispatchDropped.Inc()
		if d.dropLog.Allow() {
			d.log.Warn().Int("queue", d.cfg.QueueSize).Msg("dispatch queue full, dropped oldest action")
		}
	}
	return nil
}

// Run owns the designated goroutine. It drains the queue once per tick
// until ctx is cancelled, then marks the dispatcher stopped and drains
// whatever is left so pending futures resolve.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.runDone)
	t := time.NewTicker(d.cfg.TickEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.stopped = true
			rest := d.queue
			d.queue = nil
			d.mu.Unlock()
			for _, a := range rest {
				a()
			}
			d.mc.DispatchDepth.Set(0)
			return
		case now := <-t.C:
			d.drain(now)
			d.hooksMu.Lock()
			hooks := append([]func(time.Time){}, d.hooks...)
			d.hooksMu.Unlock()
			for _, h := range hooks {
				h(now)
			}
		}
	}
}

// Done is closed when Run has returned.
func (d *Dispatcher) Done() <-chan struct{} { return d.runDone }

func (d *Dispatcher) drain(start time.Time) {
	for n := 0; n < d.cfg.MaxPerTick; n++ {
		if time.Since(start) > d.cfg.TickBudget {
			return
		}
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			d.mc.DispatchDepth.Set(0)
			return
		}
		a := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		depth := len(d.queue)
		d.mu.Unlock()
		d.mc.DispatchDepth.Set(float64(depth))
		a()
	}
}

// Len reports the number of queued actions.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
