package collab

import "testing"

func TestTokenBucketAllowsUpToCapacity(t *testing.T) {
	b := newTokenBucket(3)
	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("expected token %d to be allowed", i)
		}
	}
	if b.Allow() {
		t.Fatal("expected 4th immediate call to be throttled")
	}
}
