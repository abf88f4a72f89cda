package notify

import (
	"testing"

	"localnotify/internal/kit"
)

func TestIndexInsertionOrderEviction(t *testing.T) {
	x := newScheduleIndex(2)
	if ev := x.insert("x", 1); ev != "" {
		t.Fatalf("unexpected eviction %q", ev)
	}
	if ev := x.insert("y", 2); ev != "" {
		t.Fatalf("unexpected eviction %q", ev)
	}
	if ev := x.insert("z", 3); ev != "x" {
		t.Fatalf("evicted %q, want x", ev)
	}
	if x.contains("x") {
		t.Fatalf("x still tracked after eviction")
	}
	if !x.contains("y") || !x.contains("z") {
		t.Fatalf("younger entries lost")
	}
	if got := x.count(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
}

func TestIndexBoundHoldsUnderChurn(t *testing.T) {
	const max = 5
	x := newScheduleIndex(max)
	for i := 0; i < 100; i++ {
		x.insert(string(rune('a'+i%26))+string(rune('0'+i%10)), 1)
		if got := x.count(); got > max {
			t.Fatalf("count = %d exceeds bound %d", got, max)
		}
	}
}

func TestIndexUpdateRefreshesOrder(t *testing.T) {
	x := newScheduleIndex(2)
	x.insert("a", 1)
	x.insert("b", 2)
	// Re-inserting "a" makes it the newest entry, so "b" is now oldest.
	x.insert("a", 3)
	if pid, _ := x.get("a"); pid != 3 {
		t.Fatalf("update kept old platform id %d", pid)
	}
	if ev := x.insert("c", 4); ev != "b" {
		t.Fatalf("evicted %q, want b", ev)
	}
}

func TestIndexRemove(t *testing.T) {
	x := newScheduleIndex(10)
	x.insert("a", 42)
	pid, ok := x.remove("a")
	if !ok || pid != 42 {
		t.Fatalf("remove = (%d,%v), want (42,true)", pid, ok)
	}
	if _, ok := x.remove("a"); ok {
		t.Fatalf("second remove succeeded")
	}
	if got := x.count(); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
}

func TestIndexEntriesOldestFirst(t *testing.T) {
	x := newScheduleIndex(10)
	for i, id := range []string{"one", "two", "three"} {
		x.insert(id, kit.PlatformID(i+1))
	}
	got := x.entries()
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("entries = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].identifier != want[i] {
			t.Fatalf("entries[%d] = %q, want %q", i, got[i].identifier, want[i])
		}
	}
}
