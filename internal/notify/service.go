// Package notify implements the local-notification scheduling engine: a
// thread-safe schedule index with bounded FIFO eviction, a group
// registry, durable snapshot persistence, and a circuit breaker, all in
// front of a single platform backend driven through the dispatcher
// goroutine.
package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"localnotify/internal/breaker"
	"localnotify/internal/dispatch"
	"localnotify/internal/eventbus"
	"localnotify/internal/kit"
	"localnotify/internal/metrics"
	"localnotify/internal/pool"
	"localnotify/internal/store"
)

const (
	defaultMaxTracked = 100

	descriptorPoolSize = 20
	eventPoolSize      = 10

	// returnGroup tags the come-back notifications so they can be
	// batch-cancelled like any other group.
	returnGroup = "localnotify.return.group"
	// urgentSuffix marks the short-delay variant scheduled when the
	// process comes back after a long absence.
	urgentSuffix = ".urgent"
	urgentDelay  = 10 * time.Second
)

// ErrBreakerOpen rejects risky schedule attempts while the circuit
// breaker is open. The platform adapter is not invoked.
var ErrBreakerOpen = errors.New("notify: circuit open, schedule rejected")

type Config struct {
	MaxTracked int

	SnapshotPath string
	// LegacyPath names the old flat key-value database, consulted once
	// when no snapshot exists.
	LegacyPath    string
	FlushDebounce time.Duration
	// ShutdownFlushBudget bounds the final synchronous flush on Stop.
	ShutdownFlushBudget time.Duration

	AwaitTimeout time.Duration

	BreakerTrip     int
	BreakerCooldown time.Duration

	Dispatch dispatch.Config

	// Return seeds the policy when the snapshot carries none.
	Return kit.ReturnPolicy
}

func (c *Config) normalize() {
	if c.MaxTracked <= 0 {
		c.MaxTracked = defaultMaxTracked
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = "notifications.snapshot.json"
	}
	if c.AwaitTimeout <= 0 {
		c.AwaitTimeout = dispatch.DefaultAwaitTimeout
	}
	if c.ShutdownFlushBudget <= 0 {
		c.ShutdownFlushBudget = 2 * time.Second
	}
}

// Service is the engine. Construct one per process with New, inject it
// into callers, Start it once, Stop it on shutdown.
type Service struct {
	cfg Config
	log zerolog.Logger
	bus eventbus.Bus
	mc  *metrics.Collector

	adapter kit.Adapter
	disp    *dispatch.Dispatcher
	brk     *breaker.Breaker

	idx    *scheduleIndex
	groups *groupRegistry
	st     *store.Store

	descPool  *pool.Pool[kit.Descriptor]
	eventPool *pool.Pool[eventbus.Event]

	policy *returnPolicyState

	// await holds the async call timeout in nanoseconds; tunable at
	// runtime through Apply.
	await atomic.Int64

	runCancel context.CancelFunc
}

// New wires the engine and restores persisted state. The returned
// service is not running until Start.
func New(cfg Config, adapter kit.Adapter, bus eventbus.Bus, log zerolog.Logger) (*Service, error) {
	cfg.normalize()

	st, snap, err := store.Open(cfg.SnapshotPath, cfg.LegacyPath, cfg.FlushDebounce, log)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		mc:      metrics.Default(),
		adapter: adapter,
		disp:    dispatch.New(cfg.Dispatch, log),
		brk:     breaker.New(cfg.BreakerTrip, cfg.BreakerCooldown),
		idx:     newScheduleIndex(cfg.MaxTracked),
		groups:  newGroupRegistry(),
		st:      st,
		descPool: pool.New("descriptor", descriptorPoolSize,
			func() *kit.Descriptor { return &kit.Descriptor{Badge: -1} },
			func(d *kit.Descriptor) { d.Reset() }),
		eventPool: pool.New("event", eventPoolSize,
			func() *eventbus.Event { return &eventbus.Event{} },
			func(e *eventbus.Event) { *e = eventbus.Event{} }),
	}

	// Restore the tracked set in its persisted insertion order, and
	// push the backend's id allocator past the restored ids so a fresh
	// schedule cannot collide with an entry still keyed by the old pid.
	var maxPID kit.PlatformID
	for _, e := range snap.Entries {
		s.idx.insert(e.Identifier, e.PlatformID)
		if e.PlatformID > maxPID {
			maxPID = e.PlatformID
		}
	}
	if maxPID > 0 {
		adapter.SeedNextID(maxPID)
	}

	policy := snap.Return
	if !policy.Enabled && policy.Title == "" {
		policy = cfg.Return
	}
	policy.Normalize()
	s.policy = newReturnPolicyState(policy, time.Unix(snap.LastForeground, 0))

	s.await.Store(int64(cfg.AwaitTimeout))

	st.SetSource(s.snapshot)
	st.SetBreaker(s.brk)
	return s, nil
}

// Apply updates the runtime-tunable configuration: the async await
// timeout and the return-notification policy. Structural settings
// (paths, backend choice, queue sizing, breaker thresholds) are fixed at
// construction and need a restart.
func (s *Service) Apply(cfg Config) {
	cfg.normalize()
	s.await.Store(int64(cfg.AwaitTimeout))
	s.Configure(cfg.Return)
}

func (s *Service) awaitTimeout() time.Duration {
	return time.Duration(s.await.Load())
}

// Start launches the dispatcher goroutine and the platform backend.
func (s *Service) Start(ctx context.Context) error {
	if err := s.adapter.Start(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	s.disp.OnTick(s.brk.Tick)
	s.disp.OnTick(func(time.Time) {
		s.descPool.Fold()
		s.eventPool.Fold()
	})
	go s.disp.Run(runCtx)
	s.log.Info().Str("backend", s.adapter.Name()).Int("maxTracked", s.cfg.MaxTracked).Msg("notification engine started")
	return nil
}

// Stop halts the dispatcher, stops the backend, and performs the final
// best-effort snapshot flush within the configured budget.
func (s *Service) Stop(ctx context.Context) error {
	if s.runCancel != nil {
		s.runCancel()
		select {
		case <-s.disp.Done():
		case <-ctx.Done():
		}
	}
	adapterErr := s.adapter.Stop(ctx)
	flushErr := s.st.Close(s.cfg.ShutdownFlushBudget)
	if flushErr != nil {
		s.log.Error().Err(flushErr).Msg("shutdown flush failed")
	}
	if adapterErr != nil {
		return adapterErr
	}
	return flushErr
}

// Events exposes the engine's event bus.
func (s *Service) Events() eventbus.Bus { return s.bus }

// snapshot builds the persisted state from the live index. It runs on
// the store's flush path and only holds locks long enough to copy.
func (s *Service) snapshot() store.Snapshot {
	pairs := s.idx.entries()
	entries := make([]store.Entry, len(pairs))
	for i, p := range pairs {
		entries[i] = store.Entry{Identifier: p.identifier, PlatformID: p.platformID}
	}
	policy, last := s.policy.get()
	return store.Snapshot{
		Entries:        entries,
		Return:         policy,
		LastForeground: last.Unix(),
	}
}

// publish sends a bus event built from a pooled record.
func (s *Service) publish(kind eventbus.Kind, identifier, title, body string, err error) {
	e := s.eventPool.Acquire()
	e.Kind = kind
	e.Time = time.Now()
	e.Identifier = identifier
	e.Title = title
	e.Body = body
	e.Err = err
	s.bus.Publish(*e)
	s.eventPool.Release(e)
}
