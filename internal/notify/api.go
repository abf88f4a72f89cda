package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"localnotify/internal/dispatch"
	"localnotify/internal/eventbus"
	"localnotify/internal/kit"
)

// ScheduleAsync validates d, posts the platform call to the dispatcher
// goroutine, and blocks until it completes, times out, or ctx is
// cancelled. On success the identifier (generated when absent) is
// tracked in the index and, if d.Group is set, the group registry.
//
// Failure taxonomy: validation and capacity problems are rejected
// locally and never touch the circuit breaker; an open breaker rejects
// with ErrBreakerOpen before the adapter is invoked; platform failures
// are recorded by the breaker and surfaced on the event bus.
func (s *Service) ScheduleAsync(ctx context.Context, d *kit.Descriptor) (kit.PlatformID, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	if d.Identifier == "" {
		d.Identifier = uuid.NewString()
	}
	if !s.brk.Allow(time.Now()) {
		return 0, ErrBreakerOpen
	}
	// The closure can outlive this call when the await times out, so it
	// captures a private copy; the caller's descriptor may be pooled and
	// reset the moment we return.
	dd := *d
	return dispatch.Call(ctx, s.disp, s.awaitTimeout(), func() (kit.PlatformID, error) {
		return s.scheduleOnDispatcher(&dd)
	})
}

// Schedule is the synchronous convenience wrapper: true when the
// notification was accepted.
func (s *Service) Schedule(d *kit.Descriptor) bool {
	_, err := s.ScheduleAsync(context.Background(), d)
	return err == nil
}

// ScheduleAllAsync schedules a batch in one dispatcher turn. It stops at
// the first failure and reports the ids accepted so far.
func (s *Service) ScheduleAllAsync(ctx context.Context, ds []*kit.Descriptor) ([]kit.PlatformID, error) {
	for _, d := range ds {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if d.Identifier == "" {
			d.Identifier = uuid.NewString()
		}
	}
	if !s.brk.Allow(time.Now()) {
		return nil, ErrBreakerOpen
	}
	batch := make([]kit.Descriptor, len(ds))
	for i, d := range ds {
		batch[i] = *d
	}
	return dispatch.Call(ctx, s.disp, s.awaitTimeout(), func() ([]kit.PlatformID, error) {
		ids := make([]kit.PlatformID, 0, len(batch))
		for i := range batch {
			id, err := s.scheduleOnDispatcher(&batch[i])
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	})
}

// scheduleOnDispatcher performs the platform call and all bookkeeping.
// It must only run on the dispatcher goroutine.
func (s *Service) scheduleOnDispatcher(d *kit.Descriptor) (kit.PlatformID, error) {
	// Same identifier means replace: drop the old notification first so
	// a platform failure cannot leave both alive.
	if old, ok := s.idx.get(d.Identifier); ok {
		s.adapter.Cancel(d.Identifier, old)
		s.idx.remove(d.Identifier)
		s.groups.removeFromAll(d.Identifier)
		s.st.MarkDirty()
	}

	pid, err := s.adapter.Schedule(d)
	if err != nil {
		var capErr *kit.CapacityError
		if errors.As(err, &capErr) {
			// Local rejection, no state change, breaker untouched.
			return 0, err
		}
		s.brk.RecordError(time.Now())
		s.mc.Errors.Inc()
		s.publish(eventbus.KindError, d.Identifier, d.Title, d.Body, err)
		return 0, err
	}

	s.brk.RecordSuccess()
	if evicted := s.idx.insert(d.Identifier, pid); evicted != "" {
		s.groups.removeFromAll(evicted)
		s.mc.Evicted.Inc()
		s.log.Debug().Str("identifier", evicted).Msg("evicted oldest tracked notification")
	}
	if d.Group != "" {
		s.groups.add(d.Group, d.Identifier)
	}
	s.st.MarkDirty()
	s.mc.Scheduled.Inc()
	return pid, nil
}

// CancelAsync removes one notification by identifier. Unknown
// identifiers are a no-op.
func (s *Service) CancelAsync(ctx context.Context, identifier string) error {
	_, err := dispatch.Call(ctx, s.disp, s.awaitTimeout(), func() (struct{}, error) {
		s.cancelOnDispatcher(identifier)
		return struct{}{}, nil
	})
	return err
}

func (s *Service) cancelOnDispatcher(identifier string) {
	pid, ok := s.idx.remove(identifier)
	if !ok {
		return
	}
	s.groups.removeFromAll(identifier)
	s.adapter.Cancel(identifier, pid)
	s.st.MarkDirty()
	s.mc.Cancelled.Inc()
}

// CancelGroup cancels every notification that was a member of group at
// the time of the call. The member list is snapshotted under the
// registry's own lock, which is released before any platform call.
func (s *Service) CancelGroup(ctx context.Context, group string) error {
	members := s.groups.members(group)
	if len(members) == 0 {
		return nil
	}
	_, err := dispatch.Call(ctx, s.disp, s.awaitTimeout(), func() (struct{}, error) {
		for _, id := range members {
			s.cancelOnDispatcher(id)
		}
		return struct{}{}, nil
	})
	return err
}

// CancelAllScheduled drops every pending notification and clears the
// tracking state.
func (s *Service) CancelAllScheduled(ctx context.Context) error {
	_, err := dispatch.Call(ctx, s.disp, s.awaitTimeout(), func() (struct{}, error) {
		s.adapter.CancelAllScheduled()
		s.idx.clear()
		s.groups.clear()
		s.st.MarkDirty()
		return struct{}{}, nil
	})
	return err
}

// CancelAllDisplayed clears already-delivered notifications from the
// platform's displayed set. Tracking state is untouched.
func (s *Service) CancelAllDisplayed(ctx context.Context) error {
	_, err := dispatch.Call(ctx, s.disp, s.awaitTimeout(), func() (struct{}, error) {
		s.adapter.CancelAllDisplayed()
		return struct{}{}, nil
	})
	return err
}

// Count reports how many notifications the index tracks.
func (s *Service) Count() int { return s.idx.count() }

// Contains reports whether identifier is tracked.
func (s *Service) Contains(identifier string) bool { return s.idx.contains(identifier) }

// GroupCount reports the member count of group.
func (s *Service) GroupCount(group string) int { return s.groups.memberCount(group) }

// MembersOf returns a snapshot of the group's identifiers.
func (s *Service) MembersOf(group string) []string { return s.groups.members(group) }

// Identifiers returns all tracked identifiers, oldest first.
func (s *Service) Identifiers() []string {
	pairs := s.idx.entries()
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.identifier
	}
	return out
}

// StatusOf queries the platform state of one identifier.
func (s *Service) StatusOf(ctx context.Context, identifier string) (kit.Status, error) {
	pid, ok := s.idx.get(identifier)
	if !ok {
		return kit.StatusUnknown, nil
	}
	return dispatch.Call(ctx, s.disp, s.awaitTimeout(), func() (kit.Status, error) {
		return s.adapter.Status(pid), nil
	})
}

// HasPermission queries the backend's current permission state.
func (s *Service) HasPermission(ctx context.Context) (bool, error) {
	return dispatch.Call(ctx, s.disp, s.awaitTimeout(), func() (bool, error) {
		return s.adapter.HasPermission(), nil
	})
}

// RequestPermissionAsync runs the platform authorization flow on the
// dispatcher and reports the user's answer. The outcome is also
// published as a PermissionGranted or PermissionDenied event.
func (s *Service) RequestPermissionAsync(ctx context.Context) (bool, error) {
	return dispatch.Call(ctx, s.disp, s.awaitTimeout(), func() (bool, error) {
		var granted bool
		s.adapter.RequestPermission(func(ok bool) { granted = ok })
		kind := eventbus.KindPermissionGranted
		if !granted {
			kind = eventbus.KindPermissionDenied
		}
		s.publish(kind, "", "", "", nil)
		return granted, nil
	})
}

// RegisterChannel forwards a channel definition to backends that need
// one (the high-capacity backend). Backends without channels reject the
// call.
func (s *Service) RegisterChannel(ch kit.Channel) error {
	type registrar interface{ RegisterChannel(kit.Channel) error }
	r, ok := s.adapter.(registrar)
	if !ok {
		return errors.New("notify: backend has no notification channels")
	}
	return r.RegisterChannel(ch)
}
