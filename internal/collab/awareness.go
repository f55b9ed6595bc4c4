package collab

import (
	"encoding/json"
	"time"

	"github.com/collab-docs/backend/internal/models"
)

// awarenessEntry is one peer's presence state plus the bookkeeping needed
// to garbage-collect it.
type awarenessEntry struct {
	presence models.Presence
	lastSeen time.Time
	attached bool // true while a local peer connection backs this entry
}

// awarenessTable is the live document's roster, owned exclusively by the
// room's actor goroutine — there is no separate mutex because it is only
// ever touched from the room loop.
type awarenessTable struct {
	entries map[string]*awarenessEntry
}

func newAwarenessTable() *awarenessTable {
	return &awarenessTable{entries: make(map[string]*awarenessEntry)}
}

// Apply merges an incoming presence update, keyed by peer id, enforcing a
// "higher clock wins" rule. Returns true if the update was applied (i.e.
// wasn't stale).
func (t *awarenessTable) Apply(p models.Presence, attached bool) bool {
	existing, ok := t.entries[p.PeerID]
	if ok && p.Clock <= existing.presence.Clock {
		return false
	}
	t.entries[p.PeerID] = &awarenessEntry{presence: p, lastSeen: time.Now(), attached: attached}
	return true
}

// Remove deletes a peer's awareness entry outright (on disconnect).
func (t *awarenessTable) Remove(peerID string) {
	delete(t.entries, peerID)
}

// MarkDetached flags a peer's entry as no longer locally attached, without
// deleting it, so GCStale can reclaim it after the heartbeat timeout. The
// room calls it when a local client detaches, just before
// broadcastAwarenessRemoval removes the entry outright.
func (t *awarenessTable) MarkDetached(peerID string) {
	if e, ok := t.entries[peerID]; ok {
		e.attached = false
	}
}

// GCStale removes entries with no local attachment whose last update is
// older than timeout — this is what reclaims presence left behind by a
// crashed peer connection or a dead remote hub instance.
func (t *awarenessTable) GCStale(timeout time.Duration) []string {
	var removed []string
	now := time.Now()
	for id, e := range t.entries {
		if !e.attached && now.Sub(e.lastSeen) > timeout {
			delete(t.entries, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Snapshot returns every current presence entry, for seeding a newly
// attached peer.
func (t *awarenessTable) Snapshot() []models.Presence {
	out := make([]models.Presence, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.presence)
	}
	return out
}

// encodeAwarenessDiff and decodeAwarenessDiff define the AWARENESS frame
// payload: a single JSON-encoded presence update, sufficient for the
// small roster sizes a per-document awareness table holds.
func encodeAwarenessDiff(p models.Presence) ([]byte, error) {
	return json.Marshal(p)
}

func decodeAwarenessDiff(payload []byte) (models.Presence, error) {
	var p models.Presence
	err := json.Unmarshal(payload, &p)
	return p, err
}
