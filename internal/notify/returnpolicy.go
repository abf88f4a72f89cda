package notify

import (
	"sync"
	"time"

	"localnotify/internal/kit"
)

// returnPolicyState guards the come-back notification config and the
// last-foreground timestamp.
type returnPolicyState struct {
	mu             sync.Mutex
	policy         kit.ReturnPolicy
	lastForeground time.Time
}

func newReturnPolicyState(p kit.ReturnPolicy, last time.Time) *returnPolicyState {
	if last.Unix() <= 0 {
		last = time.Time{}
	}
	return &returnPolicyState{policy: p, lastForeground: last}
}

func (r *returnPolicyState) get() (kit.ReturnPolicy, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policy, r.lastForeground
}

func (r *returnPolicyState) set(p kit.ReturnPolicy) {
	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()
}

// markForeground records now and returns the previous timestamp.
func (r *returnPolicyState) markForeground(now time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.lastForeground
	r.lastForeground = now
	return prev
}

// Configure replaces the return-notification policy. This is the only
// mutation path; the transition handlers just read it.
func (s *Service) Configure(p kit.ReturnPolicy) {
	p.Normalize()
	s.policy.set(p)
	s.st.MarkDirty()
	s.log.Debug().Bool("enabled", p.Enabled).Int("hours", p.HoursBefore).Msg("return policy configured")
}

// ReturnPolicy reports the current policy.
func (s *Service) ReturnPolicy() kit.ReturnPolicy {
	p, _ := s.policy.get()
	return p
}

// HoursSinceLastForeground reports elapsed inactivity. Zero when the
// process has never been foregrounded.
func (s *Service) HoursSinceLastForeground() float64 {
	_, last := s.policy.get()
	if last.IsZero() {
		return 0
	}
	return time.Since(last).Hours()
}

// EnterBackground cancels any previously scheduled return notification
// and, when the policy is enabled, schedules a fresh one
// HoursBefore from now, tagged with its own group.
func (s *Service) EnterBackground() {
	p, _ := s.policy.get()
	s.disp.Fire(func() {
		s.cancelOnDispatcher(p.Identifier)
		s.cancelOnDispatcher(p.Identifier + urgentSuffix)
		if !p.Enabled {
			return
		}
		d := s.returnDescriptor(p, p.Identifier, time.Duration(p.HoursBefore)*time.Hour)
		if _, err := s.scheduleOnDispatcher(d); err != nil {
			s.log.Warn().Err(err).Msg("return notification not scheduled")
		}
		s.descPool.Release(d)
	})
}

// EnterForeground cancels pending return notifications (urgent variant
// included) and records the new foreground timestamp. When the process
// comes back after the configured threshold has already elapsed (e.g. a
// restart after a long absence), a short-delay urgent variant is
// scheduled immediately instead of waiting for the next backgrounding.
func (s *Service) EnterForeground() {
	now := time.Now()
	p, _ := s.policy.get()
	prev := s.policy.markForeground(now)
	s.st.MarkDirty()

	overdue := p.Enabled && !prev.IsZero() &&
		now.Sub(prev) >= time.Duration(p.HoursBefore)*time.Hour

	s.disp.Fire(func() {
		s.cancelOnDispatcher(p.Identifier)
		s.cancelOnDispatcher(p.Identifier + urgentSuffix)
		if !overdue {
			return
		}
		d := s.returnDescriptor(p, p.Identifier+urgentSuffix, urgentDelay)
		if _, err := s.scheduleOnDispatcher(d); err != nil {
			s.log.Warn().Err(err).Msg("urgent return notification not scheduled")
		}
		s.descPool.Release(d)
	})
}

func (s *Service) returnDescriptor(p kit.ReturnPolicy, identifier string, delay time.Duration) *kit.Descriptor {
	d := s.descPool.Acquire()
	d.Identifier = identifier
	d.Title = p.Title
	d.Body = p.Body
	d.FireDelay = delay
	d.Repeat = p.Repeat
	d.RepeatEvery = p.RepeatEvery
	d.Group = returnGroup
	return d
}
