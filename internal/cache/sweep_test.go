package cache

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestSweepBoundary(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	window := 7 * 24 * time.Hour
	windowMs := window.Milliseconds()

	records := map[string]Record{
		"expired.js": {Fingerprint: "f", RemoteLocation: "u", LastSeen: now.UnixMilli() - windowMs - 1},
		"edge.js":    {Fingerprint: "f", RemoteLocation: "u", LastSeen: now.UnixMilli() - windowMs},
		"fresh.js":   {Fingerprint: "f", RemoteLocation: "u", LastSeen: now.UnixMilli() - windowMs + 1},
		"now.js":     {Fingerprint: "f", RemoteLocation: "u", LastSeen: now.UnixMilli()},
	}

	kept, removed := Sweep(records, now, window)
	if !reflect.DeepEqual(removed, []string{"expired.js"}) {
		t.Fatalf("removed = %v", removed)
	}
	for _, id := range []string{"edge.js", "fresh.js", "now.js"} {
		if _, ok := kept[id]; !ok {
			t.Fatalf("expected %s to be retained", id)
		}
	}
	if len(records) != 4 {
		t.Fatalf("input map was modified")
	}
}

func TestSweepIsDeterministic(t *testing.T) {
	now := time.UnixMilli(10_000)
	records := map[string]Record{
		"b": {Fingerprint: "f", RemoteLocation: "u", LastSeen: 1},
		"a": {Fingerprint: "f", RemoteLocation: "u", LastSeen: 2},
		"c": {Fingerprint: "f", RemoteLocation: "u", LastSeen: 9_999},
	}
	k1, r1 := Sweep(records, now, time.Second)
	k2, r2 := Sweep(records, now, time.Second)
	if !reflect.DeepEqual(k1, k2) || !reflect.DeepEqual(r1, r2) {
		t.Fatalf("sweep not deterministic")
	}
	if !reflect.DeepEqual(r1, []string{"a", "b"}) {
		t.Fatalf("removed = %v", r1)
	}
}

func TestStoreSweep(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), DefaultFile), map[string]Record{
		"old": {Fingerprint: "f", RemoteLocation: "u", LastSeen: 0},
		"new": {Fingerprint: "f", RemoteLocation: "u", LastSeen: 5_000},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	removed := store.Sweep(time.UnixMilli(6_000), 2*time.Second)
	if !reflect.DeepEqual(removed, []string{"old"}) {
		t.Fatalf("removed = %v", removed)
	}
	if store.Len() != 1 {
		t.Fatalf("len = %d", store.Len())
	}
}
