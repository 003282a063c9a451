package hash

import (
	"encoding/binary"
	"errors"
	"fmt"

	"dinodb/pkg/pager"
)

// HashDirectory is the routing page of an extendible hash index: a global
// depth plus, for every slot i in [0, 2^globalDepth), the page number of the
// bucket responsible for fingerprints whose low local_depth[i] bits equal i,
// and the local depth itself. It is the single source of truth for bucket
// ownership; buckets do not know their own depth.
type HashDirectory struct {
	globalDepth int64
	page        *pager.Page
}

// newHashDirectory allocates a fresh, empty directory page (global depth 0,
// no bucket assigned yet) using a new page from the given pager. The caller
// must unpin the returned directory's page.
func newHashDirectory(pager *pager.Pager) (*HashDirectory, error) {
	page, err := pager.GetNewPage()
	if err != nil {
		return nil, err
	}
	if page.GetPageNum() != ROOT_PN {
		return nil, errors.New("hash: directory must be the first page allocated in its pager")
	}
	dir := &HashDirectory{globalDepth: 0, page: page}
	dir.writeGlobalDepth(0)
	return dir, nil
}

// pageToDirectory reinterprets an already-fetched page as a HashDirectory.
func pageToDirectory(page *pager.Page) *HashDirectory {
	depth, _ := binary.Varint(page.GetData()[DIR_DEPTH_OFFSET : DIR_DEPTH_OFFSET+DIR_DEPTH_SIZE])
	return &HashDirectory{globalDepth: depth, page: page}
}

// GetPage returns the page backing this directory.
func (dir *HashDirectory) GetPage() *pager.Page {
	return dir.page
}

// GlobalDepth returns the number of low-order fingerprint bits currently used
// to index the directory.
func (dir *HashDirectory) GlobalDepth() int64 {
	return dir.globalDepth
}

// GlobalDepthMask returns (1 << GlobalDepth) - 1.
func (dir *HashDirectory) GlobalDepthMask() int64 {
	return (int64(1) << dir.globalDepth) - 1
}

// Size returns 2^GlobalDepth, the number of logically active directory slots.
func (dir *HashDirectory) Size() int64 {
	return int64(1) << dir.globalDepth
}

func (dir *HashDirectory) slotOffset(i int64) int64 {
	return DIR_HEADER_SIZE + i*DIR_SLOT_SIZE
}

// BucketPageID returns the page number of the bucket that slot i routes to.
func (dir *HashDirectory) BucketPageID(i int64) int64 {
	off := dir.slotOffset(i)
	pn, _ := binary.Varint(dir.page.GetData()[off : off+DIR_SLOT_PAGEID_SIZE])
	return pn
}

// SetBucketPageID rewires slot i to route to the bucket page pn.
func (dir *HashDirectory) SetBucketPageID(i int64, pn int64) {
	off := dir.slotOffset(i)
	buf := make([]byte, DIR_SLOT_PAGEID_SIZE)
	binary.PutVarint(buf, pn)
	dir.page.Update(buf, off, DIR_SLOT_PAGEID_SIZE)
}

// LocalDepth returns the local depth of slot i.
func (dir *HashDirectory) LocalDepth(i int64) int64 {
	off := dir.slotOffset(i) + DIR_SLOT_PAGEID_SIZE
	ld, _ := binary.Varint(dir.page.GetData()[off : off+DIR_SLOT_DEPTH_SIZE])
	return ld
}

// SetLocalDepth sets the local depth of slot i directly.
func (dir *HashDirectory) SetLocalDepth(i int64, depth int64) {
	off := dir.slotOffset(i) + DIR_SLOT_PAGEID_SIZE
	buf := make([]byte, DIR_SLOT_DEPTH_SIZE)
	binary.PutVarint(buf, depth)
	dir.page.Update(buf, off, DIR_SLOT_DEPTH_SIZE)
}

// LocalDepthMask returns (1 << LocalDepth(i)) - 1.
func (dir *HashDirectory) LocalDepthMask(i int64) int64 {
	return (int64(1) << dir.LocalDepth(i)) - 1
}

// IncrLocalDepth increments the local depth of slot i by one.
func (dir *HashDirectory) IncrLocalDepth(i int64) {
	dir.SetLocalDepth(i, dir.LocalDepth(i)+1)
}

// DecrLocalDepth decrements the local depth of slot i by one.
func (dir *HashDirectory) DecrLocalDepth(i int64) {
	dir.SetLocalDepth(i, dir.LocalDepth(i)-1)
}

func (dir *HashDirectory) writeGlobalDepth(depth int64) {
	dir.globalDepth = depth
	buf := make([]byte, DIR_DEPTH_SIZE)
	binary.PutVarint(buf, depth)
	dir.page.Update(buf, DIR_DEPTH_OFFSET, DIR_DEPTH_SIZE)
}

// IncrGlobalDepth doubles the directory: every existing slot i is mirrored
// into slot i+oldSize with the same bucket id and local depth, preserving the
// aliasing invariant automatically. Fails once MAX_DEPTH would be exceeded.
func (dir *HashDirectory) IncrGlobalDepth() error {
	newDepth := dir.globalDepth + 1
	if newDepth > MAX_DEPTH {
		return errors.New("hash: directory is already at MAX_DEPTH")
	}
	oldSize := dir.Size()
	for i := int64(0); i < oldSize; i++ {
		dir.SetBucketPageID(oldSize+i, dir.BucketPageID(i))
		dir.SetLocalDepth(oldSize+i, dir.LocalDepth(i))
	}
	dir.writeGlobalDepth(newDepth)
	return nil
}

// DecrGlobalDepth halves the directory. The upper half is redundant by the
// aliasing invariant and is simply left unreferenced; it is overwritten the
// next time that half of the key space is populated by a split.
func (dir *HashDirectory) DecrGlobalDepth() {
	dir.writeGlobalDepth(dir.globalDepth - 1)
}

// SplitImageIndex returns the slot that mirrors slot i at its current local
// depth: the two shared a bucket before the most recent split that touched
// i, and a merge collapses them back together.
func (dir *HashDirectory) SplitImageIndex(i int64) int64 {
	ld := dir.LocalDepth(i)
	return i ^ (int64(1) << (ld - 1))
}

// CanShrink reports whether the directory can lose its top bit, i.e. every
// local depth is strictly less than the global depth.
func (dir *HashDirectory) CanShrink() bool {
	for i := int64(0); i < dir.Size(); i++ {
		if dir.LocalDepth(i) >= dir.globalDepth {
			return false
		}
	}
	return true
}

// VerifyIntegrity asserts the aliasing invariant (panics on violation): every
// slot sharing the low local_depth[i] bits with i must route to the same
// bucket and carry the same local depth. It is a debug assertion, not an
// error return — callers that want a non-fatal check should use IsHash.
func (dir *HashDirectory) VerifyIntegrity() {
	size := dir.Size()
	for i := int64(0); i < size; i++ {
		ld := dir.LocalDepth(i)
		if ld < 0 || ld > dir.globalDepth {
			panic(fmt.Sprintf("hash: slot %d has local depth %d outside [0, %d]", i, ld, dir.globalDepth))
		}
		stride := int64(1) << ld
		for j := i % stride; j < size; j += stride {
			if dir.BucketPageID(j) != dir.BucketPageID(i) {
				panic(fmt.Sprintf("hash: aliasing invariant violated between slots %d and %d", i, j))
			}
			if dir.LocalDepth(j) != ld {
				panic(fmt.Sprintf("hash: local depth mismatch between aliased slots %d and %d", i, j))
			}
		}
	}
}
