package tracker

import (
	"reflect"
	"testing"
)

func TestNewOrdersByLastAccessedAscending(t *testing.T) {
	tr := New([]InitialEntry{
		{Key: "k1", Size: 10, LastAccessed: 1},
		{Key: "k3", Size: 10, LastAccessed: 3},
		{Key: "k2", Size: 20, LastAccessed: 2},
		{Key: "k4", Size: 10, LastAccessed: 4},
	}, 1<<62)

	want := []string{"k1", "k2", "k3", "k4"}
	if got := tr.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	if got := tr.TotalSize(); got != 50 {
		t.Fatalf("TotalSize() = %d, want 50", got)
	}
}

// TestLRUScenarioS1 replays spec scenario S1 end to end.
func TestLRUScenarioS1(t *testing.T) {
	tr := New([]InitialEntry{
		{Key: "k1", Size: 10, LastAccessed: 1},
		{Key: "k3", Size: 10, LastAccessed: 3},
		{Key: "k2", Size: 20, LastAccessed: 2},
		{Key: "k4", Size: 10, LastAccessed: 4},
	}, 1<<62)

	if evicted := tr.Insert("k5", 50); len(evicted) != 0 {
		t.Fatalf("insert k5: unexpected evictions %v", evicted)
	}
	assertOrder(t, tr, "k1", "k2", "k3", "k4", "k5")
	assertTotal(t, tr, 100)

	if evicted := tr.Insert("k4", 30); len(evicted) != 0 {
		t.Fatalf("insert k4=30: unexpected evictions %v", evicted)
	}
	assertOrder(t, tr, "k1", "k2", "k3", "k5", "k4")
	assertTotal(t, tr, 120)

	tr.Promote("k3")
	assertOrder(t, tr, "k1", "k2", "k5", "k4", "k3")

	tr.SetSizeLimit(90)
	tr.Promote("k5")
	assertOrder(t, tr, "k1", "k2", "k4", "k3", "k5")

	evicted := tr.Insert("k6", 10)
	want := []string{"k1", "k2", "k4"}
	if !reflect.DeepEqual(evicted, want) {
		t.Fatalf("insert k6 evicted = %v, want %v", evicted, want)
	}
	assertOrder(t, tr, "k3", "k5", "k6")
	assertTotal(t, tr, 70)
}

func TestPromoteUnknownKeyIsNoop(t *testing.T) {
	tr := New([]InitialEntry{{Key: "a", Size: 1, LastAccessed: 1}}, 1<<62)
	tr.Promote("does-not-exist")
	assertOrder(t, tr, "a")
	assertTotal(t, tr, 1)
}

func TestInsertEvictsUntilUnderLimit(t *testing.T) {
	tr := New(nil, 25)
	tr.Insert("a", 10)
	tr.Insert("b", 10)
	evicted := tr.Insert("c", 10)
	want := []string{"a"}
	if !reflect.DeepEqual(evicted, want) {
		t.Fatalf("evicted = %v, want %v", evicted, want)
	}
	assertOrder(t, tr, "b", "c")
	assertTotal(t, tr, 20)
}

func TestInsertSingleEntryLargerThanLimitIsKept(t *testing.T) {
	tr := New(nil, 5)
	evicted := tr.Insert("big", 100)
	if len(evicted) != 0 {
		t.Fatalf("expected no self-eviction, got %v", evicted)
	}
	assertOrder(t, tr, "big")
	assertTotal(t, tr, 100)
}

func assertOrder(t *testing.T, tr *Tracker, want ...string) {
	t.Helper()
	if got := tr.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
}

func assertTotal(t *testing.T, tr *Tracker, want int64) {
	t.Helper()
	if got := tr.TotalSize(); got != want {
		t.Fatalf("TotalSize() = %d, want %d", got, want)
	}
}
