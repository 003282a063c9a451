package hash_test

import (
	"testing"

	"dinodb/pkg/hash"
)

// TestHashMergeShrinksDirectory drives enough inserts to grow the directory
// past its initial depth, then removes everything and checks that the
// directory collapses back down and every value is gone.
func TestHashMergeShrinksDirectory(t *testing.T) {
	index := setupHash(t)
	defer index.Close()

	table := index.GetTable()
	n := int64(4000)
	for i := int64(0); i < n; i++ {
		if !table.Insert(i, i*2) {
			t.Fatalf("failed to insert key %d", i)
		}
	}
	grownDepth := table.GetGlobalDepth()
	if grownDepth == 0 {
		t.Fatal("expected directory to grow past depth 0 after 4000 inserts")
	}

	for i := int64(0); i < n; i++ {
		if !table.Remove(i, i*2) {
			t.Fatalf("failed to remove key %d", i)
		}
	}
	for i := int64(0); i < n; i++ {
		if values := table.Lookup(i); len(values) != 0 {
			t.Fatalf("key %d still present after removal: %v", i, values)
		}
	}

	finalDepth := table.GetGlobalDepth()
	if finalDepth >= grownDepth {
		t.Fatalf("expected directory to shrink from depth %d, got %d", grownDepth, finalDepth)
	}
	table.VerifyIntegrity()
}

// TestHashDuplicatePairRejected checks that inserting the exact same
// (key, value) pair twice is rejected the second time, while a second value
// under the same key is allowed.
func TestHashDuplicatePairRejected(t *testing.T) {
	index := setupHash(t)
	defer index.Close()

	table := index.GetTable()
	if !table.Insert(42, 100) {
		t.Fatal("first insert of (42, 100) should succeed")
	}
	if table.Insert(42, 100) {
		t.Fatal("duplicate (42, 100) pair should be rejected")
	}
	if !table.Insert(42, 200) {
		t.Fatal("second value under key 42 should be allowed")
	}

	values := table.Lookup(42)
	if len(values) != 2 {
		t.Fatalf("expected 2 values under key 42, got %v", values)
	}
}

// TestHashDuplicatePairRejectedWhenBucketFull checks that a duplicate
// (key, value) pair is rejected as a no-op even when it routes to a bucket
// that is already full, instead of triggering a split to make room for a
// pair that was already there.
func TestHashDuplicatePairRejectedWhenBucketFull(t *testing.T) {
	index := setupHash(t)
	defer index.Close()
	table := index.GetTable()

	target := hash.Hasher(0, hash.MAX_DEPTH)
	var keys []int64
	for k := int64(1); len(keys) < int(hash.BUCKET_CAPACITY) && k < 2_000_000; k++ {
		if hash.Hasher(k, hash.MAX_DEPTH) == target {
			keys = append(keys, k)
		}
	}
	if len(keys) < int(hash.BUCKET_CAPACITY) {
		t.Fatalf("only found %d colliding keys, need %d to fill a bucket", len(keys), hash.BUCKET_CAPACITY)
	}

	for _, k := range keys {
		if !table.Insert(k, k) {
			t.Fatalf("failed to insert key %d while filling the bucket", k)
		}
	}
	depthBefore := table.GetGlobalDepth()

	dup := keys[0]
	if table.Insert(dup, dup) {
		t.Fatalf("duplicate pair (%d, %d) should be rejected, not split into room", dup, dup)
	}
	if table.GetGlobalDepth() != depthBefore {
		t.Fatalf("rejecting a duplicate pair should not grow the directory: depth went from %d to %d", depthBefore, table.GetGlobalDepth())
	}
	if values := table.Lookup(dup); len(values) != 1 {
		t.Fatalf("expected exactly 1 value under key %d, got %v", dup, values)
	}
}

// TestHashSplitExhaustsAtMaxDepth confirms that once a key's local depth
// reaches MAX_DEPTH, repeated splitting gives up rather than looping forever.
func TestHashSplitExhaustsAtMaxDepth(t *testing.T) {
	index := setupHash(t)
	defer index.Close()
	table := index.GetTable()

	// Keys that agree on the fingerprint's low MAX_DEPTH bits collide into
	// the same directory slot no matter how deep the directory grows, since
	// Hasher(key, depth) for depth <= MAX_DEPTH just masks a prefix of those
	// same bits.
	target := hash.Hasher(0, hash.MAX_DEPTH)
	var keys []int64
	for k := int64(1); len(keys) < int(hash.BUCKET_CAPACITY)*3 && k < 2_000_000; k++ {
		if hash.Hasher(k, hash.MAX_DEPTH) == target {
			keys = append(keys, k)
		}
	}
	if len(keys) < int(hash.BUCKET_CAPACITY)*2 {
		t.Fatalf("only found %d colliding keys, need more to force exhaustion", len(keys))
	}

	inserted := 0
	for _, k := range keys {
		if table.Insert(k, k) {
			inserted++
		} else {
			break
		}
	}
	if inserted == 0 {
		t.Fatal("expected at least one successful insert before exhaustion")
	}
	if inserted >= len(keys) {
		t.Fatal("expected insertion to eventually fail once MAX_DEPTH is exhausted")
	}
	if table.GetGlobalDepth() > hash.MAX_DEPTH {
		t.Fatalf("global depth %d exceeded MAX_DEPTH %d", table.GetGlobalDepth(), hash.MAX_DEPTH)
	}
	for _, k := range keys[:inserted] {
		if values := table.Lookup(k); len(values) != 1 {
			t.Fatalf("expected key %d to still be findable after exhaustion, got %v", k, values)
		}
	}
}
