package notify

import "sync"

// groupRegistry is a secondary index from group key to member
// identifiers. It is a pure lookup relation, never an owner: removing an
// identifier from the schedule index must also remove it here. Groups
// with no members are pruned eagerly so sustained churn cannot leak
// empty sets.
type groupRegistry struct {
	mu     sync.Mutex
	groups map[string]map[string]struct{}
}

func newGroupRegistry() *groupRegistry {
	return &groupRegistry{groups: map[string]map[string]struct{}{}}
}

func (g *groupRegistry) add(group, identifier string) {
	if group == "" || identifier == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.groups[group]
	if !ok {
		set = map[string]struct{}{}
		g.groups[group] = set
	}
	set[identifier] = struct{}{}
}

func (g *groupRegistry) removeFromAll(identifier string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, set := range g.groups {
		if _, ok := set[identifier]; !ok {
			continue
		}
		delete(set, identifier)
		if len(set) == 0 {
			delete(g.groups, key)
		}
	}
}

// members returns a snapshot of the group's identifiers. Callers issue
// per-identifier cancels against the snapshot after this lock is
// released, never while it is held.
func (g *groupRegistry) members(group string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.groups[group]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (g *groupRegistry) memberCount(group string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.groups[group])
}

func (g *groupRegistry) clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups = map[string]map[string]struct{}{}
}
