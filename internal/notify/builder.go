package notify

import (
	"context"
	"time"

	"localnotify/internal/kit"
)

// Builder assembles a descriptor fluently, backed by the descriptor
// pool. Schedule consumes the builder; the descriptor returns to the
// pool whether or not the call succeeds.
type Builder struct {
	s *Service
	d *kit.Descriptor
}

// Build starts a fluent schedule call:
//
//	id, err := svc.Build().
//	    Title("Backup done").
//	    Body("12 files uploaded").
//	    In(2 * time.Minute).
//	    Schedule(ctx)
func (s *Service) Build() *Builder {
	return &Builder{s: s, d: s.descPool.Acquire()}
}

func (b *Builder) Identifier(id string) *Builder { b.d.Identifier = id; return b }
func (b *Builder) Title(t string) *Builder { b.d.Title = t; return b }
func (b *Builder) Body(body string) *Builder { b.d.Body = body; return b }
func (b *Builder) Subtitle(st string) *Builder { b.d.Subtitle = st; return b }
func (b *Builder) In(delay time.Duration) *Builder { b.d.FireDelay = delay; return b }
func (b *Builder) Group(g string) *Builder { b.d.Group = g; return b }
func (b *Builder) Sound(name string) *Builder { b.d.Sound = name; return b }
func (b *Builder) Badge(n int) *Builder { b.d.Badge = n; return b }
func (b *Builder) Daily() *Builder { b.d.Repeat = kit.RepeatDaily; return b }
func (b *Builder) Weekly() *Builder { b.d.Repeat = kit.RepeatWeekly; return b }
func (b *Builder) Every(iv time.Duration) *Builder {
	b.d.Repeat = kit.RepeatCustom
	b.d.RepeatEvery = iv
	return b
}

// Schedule submits the descriptor and releases it back to the pool.
func (b *Builder) Schedule(ctx context.Context) (kit.PlatformID, error) {
	id, err := b.s.ScheduleAsync(ctx, b.d)
	b.s.descPool.Release(b.d)
	b.d = nil
	return id, err
}
