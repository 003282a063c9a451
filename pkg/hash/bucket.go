package hash

import (
	"fmt"
	"io"

	"dinodb/pkg/entry"
	"dinodb/pkg/pager"

	"github.com/bits-and-blooms/bitset"
)

// HashBucket is page-local associative storage for an extendible hash index.
// It tracks, per slot, whether the slot has ever held a pair (occupied) and
// whether it currently holds a live one (readable); the two bitmaps let a
// deleted slot be reused by a later insert without compacting the page.
// A bucket does not know its own local depth - that is owned entirely by the
// directory slot(s) that route to it.
type HashBucket struct {
	occupied *bitset.BitSet
	readable *bitset.BitSet
	page     *pager.Page
}

// newHashBucket constructs a new, empty HashBucket on a fresh page from the
// given pager. The new page must be put by the caller of this method.
func newHashBucket(pager *pager.Pager) (*HashBucket, error) {
	newPage, err := pager.GetNewPage()
	if err != nil {
		return nil, err
	}
	bucket := &HashBucket{
		occupied: bitset.New(uint(BUCKET_CAPACITY)),
		readable: bitset.New(uint(BUCKET_CAPACITY)),
		page:     newPage,
	}
	bucket.writeBitmaps()
	return bucket, nil
}

// pageToBucket reinterprets an already-fetched page as a HashBucket.
func pageToBucket(page *pager.Page) *HashBucket {
	occupied := &bitset.BitSet{}
	_ = occupied.UnmarshalBinary(page.GetData()[OCCUPIED_OFFSET : OCCUPIED_OFFSET+BITMAP_SIZE])
	readable := &bitset.BitSet{}
	_ = readable.UnmarshalBinary(page.GetData()[READABLE_OFFSET : READABLE_OFFSET+BITMAP_SIZE])
	return &HashBucket{occupied: occupied, readable: readable, page: page}
}

// GetPage returns the page backing this bucket.
func (bucket *HashBucket) GetPage() *pager.Page {
	return bucket.page
}

// Lookup returns every value stored under a readable slot whose key compares
// equal to key under eq. The scan stops at the first never-occupied slot:
// occupied is only ever set, never cleared (Reset aside), so occupied slots
// always form a prefix of the array and nothing readable can follow a gap.
func (bucket *HashBucket) Lookup(key int64, eq KeyComparator) []int64 {
	var values []int64
	for i := uint(0); i < uint(BUCKET_CAPACITY); i++ {
		if !bucket.occupied.Test(i) {
			break
		}
		if !bucket.readable.Test(i) {
			continue
		}
		e := bucket.getEntry(int64(i))
		if eq(e.Key, key) {
			values = append(values, e.Value)
		}
	}
	return values
}

// Find returns the first live entry in the bucket with the given key, for
// callers that only want one match (e.g. the top-level Index.Find surface).
// Unlike Lookup it compares keys with == rather than a KeyComparator.
func (bucket *HashBucket) Find(key int64) (entry.Entry, bool) {
	for i := int64(0); i < BUCKET_CAPACITY; i++ {
		if !bucket.occupied.Test(uint(i)) {
			break
		}
		if !bucket.readable.Test(uint(i)) {
			continue
		}
		if e := bucket.getEntry(i); e.Key == key {
			return e, true
		}
	}
	return entry.Entry{}, false
}

// Contains reports whether the exact (key, value) pair is already present in
// a readable slot, letting a caller reject a duplicate before deciding
// whether a full bucket needs to be split.
func (bucket *HashBucket) Contains(key int64, value int64, eq KeyComparator) bool {
	for i := int64(0); i < BUCKET_CAPACITY; i++ {
		if !bucket.occupied.Test(uint(i)) {
			break
		}
		if !bucket.readable.Test(uint(i)) {
			continue
		}
		e := bucket.getEntry(i)
		if eq(e.Key, key) && e.Value == value {
			return true
		}
	}
	return false
}

// Insert writes (key, value) into the first non-readable slot (preferring a
// reused tombstone over a never-used slot further back), allowing duplicate
// keys but rejecting an exact (key, value) duplicate. Returns false if the
// pair already exists or the bucket is full.
func (bucket *HashBucket) Insert(key int64, value int64, eq KeyComparator) bool {
	for i := int64(0); i < BUCKET_CAPACITY; i++ {
		if !bucket.occupied.Test(uint(i)) {
			break
		}
		if !bucket.readable.Test(uint(i)) {
			continue
		}
		e := bucket.getEntry(i)
		if eq(e.Key, key) && e.Value == value {
			return false
		}
	}
	for i := uint(0); i < uint(BUCKET_CAPACITY); i++ {
		if bucket.readable.Test(i) {
			continue
		}
		// A never-occupied slot is guaranteed free and, by the prefix
		// invariant, no tombstone can exist beyond it - take it immediately
		// instead of scanning the rest of the bucket.
		bucket.modifyEntry(int64(i), entry.New(key, value))
		bucket.occupied.Set(i)
		bucket.readable.Set(i)
		bucket.writeBitmaps()
		return true
	}
	return false
}

// Remove clears the readable bit of the first slot whose (key, value) pair
// matches under eq, leaving a tombstone behind for later reuse. Returns false
// if no such pair is present.
func (bucket *HashBucket) Remove(key int64, value int64, eq KeyComparator) bool {
	for i := uint(0); i < uint(BUCKET_CAPACITY); i++ {
		if !bucket.occupied.Test(i) {
			break
		}
		if !bucket.readable.Test(i) {
			continue
		}
		e := bucket.getEntry(int64(i))
		if eq(e.Key, key) && e.Value == value {
			bucket.readable.Clear(i)
			bucket.writeBitmaps()
			return true
		}
	}
	return false
}

// IsFull reports whether every slot in the bucket is readable.
func (bucket *HashBucket) IsFull() bool {
	return bucket.readable.All()
}

// IsEmpty reports whether no slot in the bucket is readable.
func (bucket *HashBucket) IsEmpty() bool {
	return bucket.readable.None()
}

// NumReadable returns the number of currently-live slots.
func (bucket *HashBucket) NumReadable() int64 {
	return int64(bucket.readable.Count())
}

// ArrayCopy returns a snapshot of every currently-readable (key, value) pair.
func (bucket *HashBucket) ArrayCopy() []entry.Entry {
	ret := make([]entry.Entry, 0, bucket.readable.Count())
	for i := uint(0); i < uint(BUCKET_CAPACITY); i++ {
		if bucket.readable.Test(i) {
			ret = append(ret, bucket.getEntry(int64(i)))
		}
	}
	return ret
}

// Select is an alias of ArrayCopy, kept for parity with the Select method
// of the database's index surface.
func (bucket *HashBucket) Select() ([]entry.Entry, error) {
	return bucket.ArrayCopy(), nil
}

// Reset clears every occupied and readable bit, discarding the bucket's
// contents without reclaiming the page itself.
func (bucket *HashBucket) Reset() {
	bucket.occupied.ClearAll()
	bucket.readable.ClearAll()
	bucket.writeBitmaps()
}

// Print writes a string representation of this bucket and its entries to w.
func (bucket *HashBucket) Print(w io.Writer) {
	io.WriteString(w, fmt.Sprintf("bucket (%d/%d readable)\n", bucket.NumReadable(), BUCKET_CAPACITY))
	io.WriteString(w, "entries:")
	for _, e := range bucket.ArrayCopy() {
		e.Print(w)
	}
	io.WriteString(w, "\n")
}

// [CONCURRENCY] Grab a write lock on the bucket's page.
func (bucket *HashBucket) WLock() {
	bucket.page.WLock()
}

// [CONCURRENCY] Release a write lock on the bucket's page.
func (bucket *HashBucket) WUnlock() {
	bucket.page.WUnlock()
}

// [CONCURRENCY] Grab a read lock on the bucket's page.
func (bucket *HashBucket) RLock() {
	bucket.page.RLock()
}

// [CONCURRENCY] Release a read lock on the bucket's page.
func (bucket *HashBucket) RUnlock() {
	bucket.page.RUnlock()
}

/////////////////////////////////////////////////////////////////////////////
///////////////////// HashBucket Helper Functions ///////////////////////////
/////////////////////////////////////////////////////////////////////////////

// entryPos gets the byte-position of the entry with the given index.
func entryPos(index int64) int64 {
	return ENTRIES_OFFSET + index*ENTRYSIZE
}

// modifyEntry writes the given entry into the bucket's page at the given index.
func (bucket *HashBucket) modifyEntry(index int64, e entry.Entry) {
	newdata := e.Marshal()
	offsetPos := entryPos(index)
	bucket.page.Update(newdata, offsetPos, ENTRYSIZE)
}

// getEntry returns the entry at the given index, regardless of its readable bit.
func (bucket *HashBucket) getEntry(index int64) entry.Entry {
	startPos := entryPos(index)
	return entry.UnmarshalEntry(bucket.page.GetData()[startPos : startPos+ENTRYSIZE])
}

// writeBitmaps serializes the occupied/readable bitsets back into the page.
func (bucket *HashBucket) writeBitmaps() {
	if occData, err := bucket.occupied.MarshalBinary(); err == nil {
		bucket.page.Update(occData, OCCUPIED_OFFSET, int64(len(occData)))
	}
	if readData, err := bucket.readable.MarshalBinary(); err == nil {
		bucket.page.Update(readData, READABLE_OFFSET, int64(len(readData)))
	}
}
