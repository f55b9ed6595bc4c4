package collab

import (
	"testing"
	"time"

	"github.com/collab-docs/backend/internal/models"
)

func TestAwarenessApplyRejectsStaleClock(t *testing.T) {
	table := newAwarenessTable()

	if !table.Apply(models.Presence{PeerID: "a", Clock: 2, Name: "second"}, true) {
		t.Fatal("expected first apply at clock 2 to succeed")
	}
	if table.Apply(models.Presence{PeerID: "a", Clock: 1, Name: "stale"}, true) {
		t.Fatal("expected apply at clock 1 to be rejected as stale")
	}
	if table.Apply(models.Presence{PeerID: "a", Clock: 2, Name: "tie"}, true) {
		t.Fatal("expected apply at an equal clock to be rejected")
	}

	snap := table.Snapshot()
	if len(snap) != 1 || snap[0].Name != "second" {
		t.Fatalf("snapshot = %+v, want single entry named %q", snap, "second")
	}
}

func TestAwarenessGCStaleSparesAttached(t *testing.T) {
	table := newAwarenessTable()
	table.Apply(models.Presence{PeerID: "live", Clock: 1}, true)
	table.Apply(models.Presence{PeerID: "dead", Clock: 1}, false)
	table.entries["dead"].lastSeen = time.Now().Add(-time.Hour)

	removed := table.GCStale(time.Minute)
	if len(removed) != 1 || removed[0] != "dead" {
		t.Fatalf("GCStale removed %v, want [dead]", removed)
	}
	if _, ok := table.entries["live"]; !ok {
		t.Fatal("attached entry should survive GC regardless of age")
	}
}

func TestAwarenessMarkDetachedThenGC(t *testing.T) {
	table := newAwarenessTable()
	table.Apply(models.Presence{PeerID: "a", Clock: 1}, true)

	table.MarkDetached("a")
	if removed := table.GCStale(time.Minute); len(removed) != 0 {
		t.Fatalf("freshly detached entry should not be GC'd yet, got %v", removed)
	}

	table.entries["a"].lastSeen = time.Now().Add(-time.Hour)
	removed := table.GCStale(time.Minute)
	if len(removed) != 1 || removed[0] != "a" {
		t.Fatalf("GCStale removed %v, want [a]", removed)
	}
}

func TestAwarenessDiffRoundTrip(t *testing.T) {
	p := models.Presence{PeerID: "peer-1", Name: "Ada", Color: "#fff", Clock: 7}
	diff, err := encodeAwarenessDiff(p)
	if err != nil {
		t.Fatalf("encodeAwarenessDiff: %v", err)
	}
	got, err := decodeAwarenessDiff(diff)
	if err != nil {
		t.Fatalf("decodeAwarenessDiff: %v", err)
	}
	if got != p {
		t.Fatalf("round trip = %+v, want %+v", got, p)
	}
}
