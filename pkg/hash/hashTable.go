package hash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"dinodb/pkg/entry"
	"dinodb/pkg/pager"

	"golang.org/x/sync/errgroup"
)

// A HashTable is the table controller for an extendible hash index: the
// top-level object that owns the table-wide latch, routes keys through the
// directory page, and orchestrates bucket splitting/merging. It holds only
// the directory's page number, never its data - every access goes through
// the pager so the index keeps working when only part of it is resident.
type HashTable struct {
	pager       *pager.Pager  // The pager associated with the Hash Table.
	hashFn      HashFunc      // Fingerprints a key to 32 bits.
	cmp         KeyComparator // Decides key equality.
	directoryPN int64         // Page number of the directory page, or pager.NoPage before lazy init.

	rwlock     sync.RWMutex // Lock on the Hash Table (the table latch T).
	dirInitMtx sync.Mutex   // Guards lazy directory/bucket creation; orthogonal to T.
}

// NewHashTable returns a HashTable whose directory has not yet been
// allocated; it is created lazily by the first operation that needs it. A
// nil hashFn or cmp falls back to DefaultHashFunc/DefaultComparator.
func NewHashTable(p *pager.Pager, hashFn HashFunc, cmp KeyComparator) *HashTable {
	if hashFn == nil {
		hashFn = DefaultHashFunc
	}
	if cmp == nil {
		cmp = DefaultComparator
	}
	return &HashTable{pager: p, hashFn: hashFn, cmp: cmp, directoryPN: pager.NoPage}
}

// Get pager.
func (table *HashTable) GetPager() *pager.Pager {
	return table.pager
}

// GetGlobalDepth returns the directory's current global depth.
func (table *HashTable) GetGlobalDepth() int64 {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return 0
	}
	defer table.pager.PutPage(dir.page)
	return dir.GlobalDepth()
}

// Get depth. Kept as an alias of GetGlobalDepth for existing callers.
func (table *HashTable) GetDepth() int64 {
	return table.GetGlobalDepth()
}

// GetBucket fetches and pins the bucket that directory slot index currently
// routes to, without acquiring the table latch. Meant for tooling and tests
// that already know a directory index (e.g. via Hasher).
func (table *HashTable) GetBucket(index int64) (*HashBucket, error) {
	dir, err := table.fetchDirectory()
	if err != nil {
		return nil, err
	}
	defer table.pager.PutPage(dir.page)
	if index < 0 || index >= dir.Size() {
		return nil, errors.New("hash: directory index out of range")
	}
	return table.getBucket(dir.BucketPageID(index))
}

// LocalDepthAt returns the local depth that directory slot index currently carries.
func (table *HashTable) LocalDepthAt(index int64) (int64, error) {
	dir, err := table.fetchDirectory()
	if err != nil {
		return 0, err
	}
	defer table.pager.PutPage(dir.page)
	if index < 0 || index >= dir.Size() {
		return 0, errors.New("hash: directory index out of range")
	}
	return dir.LocalDepth(index), nil
}

// Finds an arbitrary entry in the Hash Table with the given key.
func (table *HashTable) Find(key int64) (entry.Entry, error) {
	values := table.Lookup(key)
	if len(values) == 0 {
		return entry.Entry{}, errors.New("not found")
	}
	return entry.New(key, values[0]), nil
}

// Lookup returns every value stored under key.
//
// [CONCURRENCY] T shared -> directory routed & unpinned -> bucket page
// shared-latched, probed, released & unpinned -> T released.
func (table *HashTable) Lookup(key int64) []int64 {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return nil
	}
	idx := table.directoryIndex(dir, key)
	bucketPN := dir.BucketPageID(idx)
	table.pager.PutPage(dir.page)

	bucket, err := table.getBucket(bucketPN)
	if err != nil {
		return nil
	}
	bucket.RLock()
	values := bucket.Lookup(key, table.cmp)
	bucket.RUnlock()
	table.pager.PutPage(bucket.page)
	return values
}

// Insert a key / value pair into the Hash Table, splitting the destination
// bucket (and possibly doubling the directory) if it was already full.
// Returns false if the pair is a duplicate or MAX_DEPTH was exhausted while
// trying to make room.
//
// [CONCURRENCY] T is only held shared here; a full bucket is handled by
// dropping T and tail-calling splitInsert, which re-acquires it exclusively.
// This keeps the common, non-splitting path from serializing on T.
func (table *HashTable) Insert(key int64, value int64) bool {
	table.RLock()
	dir, err := table.fetchDirectory()
	if err != nil {
		table.RUnlock()
		return false
	}
	idx := table.directoryIndex(dir, key)
	bucketPN := dir.BucketPageID(idx)
	table.pager.PutPage(dir.page)

	bucket, err := table.getBucket(bucketPN)
	if err != nil {
		table.RUnlock()
		return false
	}
	bucket.WLock()
	if !bucket.IsFull() {
		ok := bucket.Insert(key, value, table.cmp)
		bucket.WUnlock()
		table.pager.PutPage(bucket.page)
		table.RUnlock()
		return ok
	}
	// The bucket is full, but the pair might already be sitting in it; check
	// before splitting so a duplicate insert stays a no-op instead of
	// growing the directory and allocating a bucket for nothing.
	duplicate := bucket.Contains(key, value, table.cmp)
	bucket.WUnlock()
	table.pager.PutPage(bucket.page)
	table.RUnlock()
	if duplicate {
		return false
	}
	return table.splitInsert(key, value)
}

// splitInsert splits the bucket that key routes to (doubling the directory
// first if that bucket is already at the global depth), redistributes its
// entries between the old and new bucket, and re-attempts the insert.
//
// A single split halves the fingerprint space reaching the overfull bucket,
// but heavy collisions on the extended prefix can leave it full again; the
// tail-call into Insert recurses through this path as many times as needed,
// bounded by MAX_DEPTH.
func (table *HashTable) splitInsert(key int64, value int64) bool {
	table.WLock()
	dir, err := table.fetchDirectory()
	if err != nil {
		table.WUnlock()
		return false
	}

	i := table.directoryIndex(dir, key)
	ld := dir.LocalDepth(i)
	if ld >= MAX_DEPTH {
		table.pager.PutPage(dir.page)
		table.WUnlock()
		return false
	}

	if ld == dir.GlobalDepth() {
		if err := dir.IncrGlobalDepth(); err != nil {
			table.pager.PutPage(dir.page)
			table.WUnlock()
			return false
		}
	}
	dir.IncrLocalDepth(i)
	newLD := dir.LocalDepth(i)

	oldPN := dir.BucketPageID(i)
	oldBucket, err := table.getBucket(oldPN)
	if err != nil {
		table.pager.PutPage(dir.page)
		table.WUnlock()
		return false
	}
	oldBucket.WLock()
	scratch := oldBucket.ArrayCopy()
	oldBucket.Reset()

	newBucket, err := newHashBucket(table.pager)
	if err != nil {
		oldBucket.WUnlock()
		table.pager.PutPage(oldBucket.page)
		table.pager.PutPage(dir.page)
		table.WUnlock()
		return false
	}
	newBucket.WLock()

	j := dir.SplitImageIndex(i)
	dir.SetLocalDepth(j, newLD)
	dir.SetBucketPageID(j, newBucket.page.GetPageNum())

	// Rewire every slot that used to alias the pre-split bucket: those whose
	// bit at position ld match i's stay with the old bucket, the rest move
	// to the new one. Both halves now carry the post-split local depth.
	oldStride := int64(1) << ld
	iBit := i & oldStride
	for k := i % oldStride; k < dir.Size(); k += oldStride {
		if k&oldStride == iBit {
			dir.SetBucketPageID(k, oldPN)
		} else {
			dir.SetBucketPageID(k, newBucket.page.GetPageNum())
		}
		dir.SetLocalDepth(k, newLD)
	}

	mask := dir.LocalDepthMask(i)
	oldPattern := i & mask
	newPattern := j & mask
	for _, e := range scratch {
		target := int64(table.hashFn(e.Key)) & mask
		switch target {
		case oldPattern:
			oldBucket.Insert(e.Key, e.Value, table.cmp)
		case newPattern:
			newBucket.Insert(e.Key, e.Value, table.cmp)
		default:
			panic(fmt.Sprintf("hash: redistributed key %d matched neither split target", e.Key))
		}
	}

	oldBucket.WUnlock()
	newBucket.WUnlock()
	table.pager.PutPage(oldBucket.page)
	table.pager.PutPage(newBucket.page)
	table.pager.PutPage(dir.page)
	table.WUnlock()

	return table.Insert(key, value)
}

// Remove deletes the (key, value) pair from the Hash Table. If the bucket it
// lived in becomes empty, a merge is attempted to try to reclaim it.
func (table *HashTable) Remove(key int64, value int64) bool {
	table.RLock()
	dir, err := table.fetchDirectory()
	if err != nil {
		table.RUnlock()
		return false
	}
	idx := table.directoryIndex(dir, key)
	bucketPN := dir.BucketPageID(idx)
	table.pager.PutPage(dir.page)

	bucket, err := table.getBucket(bucketPN)
	if err != nil {
		table.RUnlock()
		return false
	}
	bucket.WLock()
	removed := bucket.Remove(key, value, table.cmp)
	becameEmpty := removed && bucket.IsEmpty()
	bucket.WUnlock()
	table.pager.PutPage(bucket.page)
	table.RUnlock()

	if becameEmpty {
		table.merge(idx)
	}
	return removed
}

// merge attempts to reclaim the bucket at directory slot targetIndex,
// pointing it and its split image at a single shared bucket and shrinking
// the directory as far as the aliasing invariant allows.
//
// Remove drops T (shared) before calling merge, which re-acquires T
// exclusively; every precondition is therefore re-checked here, since the
// world may have changed in between (a concurrent Insert could have refilled
// the bucket, or the split image could have been split further since).
func (table *HashTable) merge(targetIndex int64) {
	table.WLock()
	defer table.WUnlock()

	dir, err := table.fetchDirectory()
	if err != nil {
		return
	}
	defer table.pager.PutPage(dir.page)

	if targetIndex >= dir.Size() {
		return // directory shrank out from under this slot while T was released.
	}
	ld := dir.LocalDepth(targetIndex)
	if ld == 0 {
		return // this bucket spans the whole directory; nothing to merge into.
	}
	imageIndex := dir.SplitImageIndex(targetIndex)
	if dir.LocalDepth(imageIndex) != ld {
		return // split image has since been split further; not a compatible partner.
	}

	targetPN := dir.BucketPageID(targetIndex)
	targetBucket, err := table.getBucket(targetPN)
	if err != nil {
		return
	}
	targetBucket.RLock()
	empty := targetBucket.IsEmpty()
	targetBucket.RUnlock()
	table.pager.PutPage(targetBucket.page)
	if !empty {
		return // a concurrent Insert refilled it before we got here.
	}

	imagePN := dir.BucketPageID(imageIndex)
	if err := table.pager.DeletePage(targetPN); err != nil {
		return
	}
	newLD := ld - 1
	for k := int64(0); k < dir.Size(); k++ {
		pn := dir.BucketPageID(k)
		if pn == targetPN || pn == imagePN {
			dir.SetBucketPageID(k, imagePN)
			dir.SetLocalDepth(k, newLD)
		}
	}

	// Looping is required: collapsing one level can make the directory
	// eligible to shrink again (e.g. the image bucket's image is also due).
	for dir.CanShrink() {
		dir.DecrGlobalDepth()
	}
}

// Select all entries in this table.
func (table *HashTable) Select() ([]entry.Entry, error) {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return nil, err
	}
	defer table.pager.PutPage(dir.page)

	seen := make(map[int64]bool)
	ret := make([]entry.Entry, 0)
	for i := int64(0); i < dir.Size(); i++ {
		pn := dir.BucketPageID(i)
		if seen[pn] {
			continue
		}
		seen[pn] = true
		bucket, err := table.getBucket(pn)
		if err != nil {
			return nil, err
		}
		bucket.RLock()
		ret = append(ret, bucket.ArrayCopy()...)
		bucket.RUnlock()
		table.pager.PutPage(bucket.page)
	}
	return ret, nil
}

// SelectConcurrent returns every entry stored in the index, the same as
// Select, but fetches distinct buckets in parallel across goroutines bounded
// by maxWorkers. It exists for tables with many, largely independent
// buckets, where Select's sequential page-by-page scan leaves most of the
// buffer pool's io idle. Any single bucket read failing aborts the whole
// scan via the errgroup's shared context.
func (table *HashTable) SelectConcurrent(ctx context.Context, maxWorkers int) ([]entry.Entry, error) {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return nil, err
	}
	pns := make([]int64, 0, dir.Size())
	seen := make(map[int64]bool)
	for i := int64(0); i < dir.Size(); i++ {
		pn := dir.BucketPageID(i)
		if seen[pn] {
			continue
		}
		seen[pn] = true
		pns = append(pns, pn)
	}
	table.pager.PutPage(dir.page)

	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	results := make([][]entry.Entry, len(pns))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxWorkers)
	for i, pn := range pns {
		i, pn := i, pn
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bucket, err := table.getBucket(pn)
			if err != nil {
				return err
			}
			bucket.RLock()
			results[i] = bucket.ArrayCopy()
			bucket.RUnlock()
			table.pager.PutPage(bucket.page)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	ret := make([]entry.Entry, 0)
	for _, entries := range results {
		ret = append(ret, entries...)
	}
	return ret, nil
}

// VerifyIntegrity runs the directory's debug assertion of the aliasing
// invariant under the table latch.
func (table *HashTable) VerifyIntegrity() {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return
	}
	defer table.pager.PutPage(dir.page)
	dir.VerifyIntegrity()
}

// Print writes a string representation of this entire table (including it's buckets) to the specified writer.
func (table *HashTable) Print(w io.Writer) {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return
	}
	defer table.pager.PutPage(dir.page)

	io.WriteString(w, "====\n")
	io.WriteString(w, fmt.Sprintf("global depth: %d\n", dir.GlobalDepth()))
	seen := make(map[int64]bool)
	for i := int64(0); i < dir.Size(); i++ {
		pn := dir.BucketPageID(i)
		if seen[pn] {
			continue
		}
		seen[pn] = true
		io.WriteString(w, fmt.Sprintf("====\nbucket %d (local depth %d)\n", pn, dir.LocalDepth(i)))
		bucket, err := table.getBucket(pn)
		if err != nil {
			continue
		}
		bucket.RLock()
		bucket.Print(w)
		bucket.RUnlock()
		table.pager.PutPage(bucket.page)
	}
	io.WriteString(w, "====\n")
}

// Print out a specific bucket.
func (table *HashTable) PrintPN(pn int, w io.Writer) {
	table.RLock()
	defer table.RUnlock()
	bucket, err := table.getBucket(int64(pn))
	if err != nil {
		fmt.Fprintln(w, "out of bounds")
		return
	}
	bucket.RLock()
	bucket.Print(w)
	bucket.RUnlock()
	table.pager.PutPage(bucket.page)
}

// [CONCURRENCY] Grab a write lock on the hash table index
func (table *HashTable) WLock() {
	table.rwlock.Lock()
}

// [CONCURRENCY] Release a write lock on the hash table index
func (table *HashTable) WUnlock() {
	table.rwlock.Unlock()
}

// [CONCURRENCY] Grab a read lock on the hash table index
func (table *HashTable) RLock() {
	table.rwlock.RLock()
}

// [CONCURRENCY] Release a read lock on the hash table index
func (table *HashTable) RUnlock() {
	table.rwlock.RUnlock()
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////// HashTable Helper Functions ///////////////////////
/////////////////////////////////////////////////////////////////////////////

// directoryIndex computes the directory slot that key currently routes to.
func (table *HashTable) directoryIndex(dir *HashDirectory, key int64) int64 {
	fp := table.hashFn(key)
	return int64(fp) & dir.GlobalDepthMask()
}

// getBucket fetches and pins the bucket page with the given page number.
func (table *HashTable) getBucket(pn int64) (*HashBucket, error) {
	page, err := table.pager.GetPage(pn)
	if err != nil {
		return nil, err
	}
	return pageToBucket(page), nil
}

// fetchDirectory returns the (pinned) directory page, lazily creating it -
// along with its first bucket - on the very first call for a fresh index.
//
// [CONCURRENCY] Guarded by dirInitMtx, not T: fetchDirectory is called while
// T is only held shared (by Lookup/Insert's fast path), which cannot by
// itself serialize concurrent writers racing to create the directory.
func (table *HashTable) fetchDirectory() (*HashDirectory, error) {
	table.dirInitMtx.Lock()
	if table.directoryPN == pager.NoPage {
		dir, err := newHashDirectory(table.pager)
		if err != nil {
			table.dirInitMtx.Unlock()
			return nil, err
		}
		bucket, err := newHashBucket(table.pager)
		if err != nil {
			table.dirInitMtx.Unlock()
			return nil, err
		}
		dir.SetBucketPageID(0, bucket.page.GetPageNum())
		dir.SetLocalDepth(0, 0)
		table.pager.PutPage(bucket.page)
		table.directoryPN = dir.page.GetPageNum()
		table.dirInitMtx.Unlock()
		return dir, nil
	}
	table.dirInitMtx.Unlock()

	page, err := table.pager.GetPage(table.directoryPN)
	if err != nil {
		return nil, err
	}
	return pageToDirectory(page), nil
}
