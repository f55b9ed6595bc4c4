package crdt

import "testing"

func TestInsertAndText(t *testing.T) {
	r := New("a")
	var left NodeID
	for _, ch := range "Hello" {
		op := r.LocalInsert(left, ch)
		left = op.ID
	}
	if got := r.Text(); got != "Hello" {
		t.Fatalf("Text() = %q, want %q", got, "Hello")
	}
}

func TestDeleteTombstones(t *testing.T) {
	r := New("a")
	var ids []NodeID
	left := Zero
	for _, ch := range "Hello" {
		op := r.LocalInsert(left, ch)
		left = op.ID
		ids = append(ids, op.ID)
	}
	r.LocalDelete(ids[0])
	if got := r.Text(); got != "ello" {
		t.Fatalf("Text() after delete = %q, want %q", got, "ello")
	}
}

// TestConvergence is the central testable property of the replica: two
// replicas applying concurrent inserts at the same position, in opposite
// arrival order, converge to the same text.
func TestConvergence(t *testing.T) {
	base := New("base")
	var left NodeID
	for _, ch := range "AC" {
		op := base.LocalInsert(left, ch)
		left = op.ID
	}
	baseOps := base.AllOps()
	// Both replicas start from the same base "AC", then each inserts a
	// 'B' between 'A' and 'C' concurrently — different sites, same After.
	afterA := baseOps[0].ID

	replicaX := New("x")
	replicaX.ApplyBatch(baseOps)
	opX := replicaX.LocalInsert(afterA, 'B')

	replicaY := New("y")
	replicaY.ApplyBatch(baseOps)
	opY := replicaY.LocalInsert(afterA, 'B')

	// Deliver in opposite order to each replica.
	replicaX.Apply(opY)
	replicaY.Apply(opX)

	tx, ty := replicaX.Text(), replicaY.Text()
	if tx != ty {
		t.Fatalf("replicas diverged: x=%q y=%q", tx, ty)
	}
	// Each site independently created its own 'B' character, so both
	// survive the merge: base "AC" plus two concurrently-inserted 'B's.
	if len(tx) != 4 {
		t.Fatalf("expected 4 characters after convergence, got %q", tx)
	}
}

func TestIdempotentApply(t *testing.T) {
	r := New("a")
	op := r.LocalInsert(Zero, 'x')
	other := New("b")
	if !other.Apply(op) {
		t.Fatal("first Apply should succeed")
	}
	if other.Apply(op) {
		t.Fatal("second Apply of the same op should be a no-op")
	}
	if other.Text() != "x" {
		t.Fatalf("Text() = %q, want %q", other.Text(), "x")
	}
}

func TestOutOfOrderDeleteBeforeInsert(t *testing.T) {
	r := New("a")
	other := New("b")

	insertOp := r.LocalInsert(Zero, 'z')
	deleteOp := r.LocalDelete(insertOp.ID)

	// Deliver the delete before the insert to a fresh replica.
	other.Apply(deleteOp)
	other.Apply(insertOp)

	if got := other.Text(); got != "" {
		t.Fatalf("Text() = %q, want empty (delete should still apply)", got)
	}
}

func TestStateVectorAndOpsSince(t *testing.T) {
	r := New("a")
	r.LocalInsert(Zero, 'h')
	r.LocalInsert(Zero, 'i')

	sv := r.StateVector()
	if sv["a"] != 2 {
		t.Fatalf("state vector seq = %d, want 2", sv["a"])
	}

	partial := map[string]uint64{"a": 1}
	missing := r.OpsSince(partial)
	if len(missing) != 1 {
		t.Fatalf("OpsSince(partial) returned %d ops, want 1", len(missing))
	}

	full := r.OpsSince(map[string]uint64{})
	if len(full) != 2 {
		t.Fatalf("OpsSince(empty) returned %d ops, want 2", len(full))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := New("a")
	var left NodeID
	for _, ch := range "snapshot" {
		op := r.LocalInsert(left, ch)
		left = op.ID
	}
	snap := r.Snapshot()

	restored := New("a")
	if err := restored.LoadSnapshot(snap); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if restored.Text() != r.Text() {
		t.Fatalf("restored text = %q, want %q", restored.Text(), r.Text())
	}
}

func TestDecodeOpsRejectsTruncated(t *testing.T) {
	r := New("a")
	r.LocalInsert(Zero, 'x')
	data := r.Snapshot()

	if _, err := DecodeOps(data[:len(data)-1]); err == nil {
		t.Fatal("DecodeOps should reject truncated input")
	}
	if _, err := DecodeOps(append(data, 0xFF)); err == nil {
		t.Fatal("DecodeOps should reject trailing garbage")
	}
}

func TestEncodeDecodeStateVector(t *testing.T) {
	sv := map[string]uint64{"a": 3, "b": 7}
	data := EncodeStateVector(sv)
	got, err := DecodeStateVector(data)
	if err != nil {
		t.Fatalf("DecodeStateVector: %v", err)
	}
	if len(got) != 2 || got["a"] != 3 || got["b"] != 7 {
		t.Fatalf("DecodeStateVector round-trip = %v, want %v", got, sv)
	}
}
