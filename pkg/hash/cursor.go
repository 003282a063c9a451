package hash

import (
	"errors"

	"dinodb/pkg/cursor"
	"dinodb/pkg/entry"
)

// HashCursor walks every entry in a hash index in directory order. It takes
// a snapshot of each bucket's entries as it visits them, so splits/merges
// that happen after the cursor passes a bucket do not affect it, matching
// the coarse-grained locking discipline the rest of the index uses (no lock
// is held between GetEntry calls).
type HashCursor struct {
	table     *HashTable
	bucketPNs []int64 // Distinct bucket page numbers, in directory order.
	bucketIdx int     // Index into bucketPNs of the bucket currently being read.
	entries   []entry.Entry
	entryIdx  int
}

// CursorAtStart returns a cursor to the first entry in the hash table.
func (index *HashIndex) CursorAtStart() (cursor.Cursor, error) {
	table := index.table
	table.RLock()
	dir, err := table.fetchDirectory()
	if err != nil {
		table.RUnlock()
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
	table.RUnlock()

	c := &HashCursor{table: table, bucketPNs: pns}
	if err := c.loadNextBucket(); err != nil {
		return nil, err
	}
	if c.entryIdx >= len(c.entries) {
		if noEntries := c.Next(); noEntries {
			return nil, errors.New("all buckets are empty")
		}
	}
	return c, nil
}

// loadNextBucket snapshots the entries of the bucket at bucketIdx, moving
// bucketIdx forward past any empty buckets. Safe to call when there are no
// buckets left; entries and entryIdx are then left unchanged.
func (c *HashCursor) loadNextBucket() error {
	for c.bucketIdx < len(c.bucketPNs) {
		pn := c.bucketPNs[c.bucketIdx]
		page, err := c.table.pager.GetPage(pn)
		if err != nil {
			return err
		}
		bucket := pageToBucket(page)
		bucket.RLock()
		c.entries = bucket.ArrayCopy()
		bucket.RUnlock()
		c.table.pager.PutPage(page)
		c.entryIdx = 0
		if len(c.entries) > 0 {
			return nil
		}
		c.bucketIdx++
	}
	return nil
}

// Next moves the cursor ahead by one entry.
// Returns true if we reach the end of our index.
func (c *HashCursor) Next() bool {
	c.entryIdx++
	if c.entryIdx < len(c.entries) {
		return false
	}
	c.bucketIdx++
	if err := c.loadNextBucket(); err != nil {
		return true
	}
	return c.entryIdx >= len(c.entries)
}

// GetEntry returns the entry currently pointed to by the cursor.
func (c *HashCursor) GetEntry() (entry.Entry, error) {
	if c.entryIdx < 0 || c.entryIdx >= len(c.entries) {
		return entry.Entry{}, errors.New("getEntry: cursor is not pointing at a valid entry")
	}
	return c.entries[c.entryIdx], nil
}

// Close is called when we no longer need to use the cursor anymore.
func (c *HashCursor) Close() {
	// Nothing to release: entries are snapshotted and no page stays pinned
	// between calls.
}
