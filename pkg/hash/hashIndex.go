package hash

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"dinodb/pkg/entry"
	"dinodb/pkg/pager"
)

// TypeMarkerSuffix names the empty sentinel file OpenTable leaves next to a
// freshly created table's backing file, letting the database layer tell a
// hash index apart from a B+ tree one without opening either. The hash index
// itself carries no auxiliary metadata file - the directory is page 0 of the
// regular pager file - so this marker exists purely for that discovery.
const TypeMarkerSuffix = ".hashidx"

// HashIndex is an index that uses a HashTable as its underlying datastructure.
// It implements database.Index by bridging that interface's single-value,
// error-returning surface onto the table controller's bool/list surface -
// the extendible hash bucket model allows several values under one key, so
// single-key operations here resolve to the first matching value.
type HashIndex struct {
	table *HashTable   // The HashTable.
	pager *pager.Pager // The pager backing this index / HashTable.
}

// OpenTable opens the pager with the given table name. The directory page is
// created lazily by the first operation that touches the index - there is
// no auxiliary ".meta" file, unlike the B+ tree index.
func OpenTable(filename string, hashFn HashFunc, cmp KeyComparator) (*HashIndex, error) {
	p, err := pager.New(filename)
	if err != nil {
		return nil, err
	}
	table := NewHashTable(p, hashFn, cmp)
	if p.GetNumPages() > 0 {
		table.directoryPN = ROOT_PN
	} else if marker, err := os.Create(filename + TypeMarkerSuffix); err == nil {
		marker.Close()
	}
	return &HashIndex{table: table, pager: p}, nil
}

// GetName returns the base file name of the file backing this index's pager.
func (index *HashIndex) GetName() string {
	return filepath.Base(index.pager.GetFileName())
}

// GetPager returns the pager backing this index.
func (index *HashIndex) GetPager() *pager.Pager {
	return index.pager
}

// Get table.
func (index *HashIndex) GetTable() *HashTable {
	return index.table
}

// Closes the table by flushing and closing the pager. There is no separate
// metadata file to write out - the directory is just another page.
func (index *HashIndex) Close() error {
	return index.pager.Close()
}

// Find element by key. If several values share the key, an arbitrary one is
// returned, matching the B+ tree index's single-valued Find semantics.
func (index *HashIndex) Find(key int64) (entry.Entry, error) {
	return index.table.Find(key)
}

// Lookup returns every value stored under key.
func (index *HashIndex) Lookup(key int64) []int64 {
	return index.table.Lookup(key)
}

// Insert given element. Returns an error if the exact (key, value) pair is
// already present or the index could not make room for it.
func (index *HashIndex) Insert(key int64, value int64) error {
	if !index.table.Insert(key, value) {
		return errors.New("hash: could not insert (key, value) pair")
	}
	return nil
}

// Update overwrites the value stored under the first matching entry for key.
func (index *HashIndex) Update(key int64, value int64) error {
	values := index.table.Lookup(key)
	if len(values) == 0 {
		return errors.New("hash: key not found")
	}
	if !index.table.Remove(key, values[0]) {
		return errors.New("hash: could not remove previous value")
	}
	if !index.table.Insert(key, value) {
		return errors.New("hash: could not insert updated value")
	}
	return nil
}

// Delete removes the first entry found under key.
func (index *HashIndex) Delete(key int64) error {
	values := index.table.Lookup(key)
	if len(values) == 0 {
		return errors.New("hash: key not found")
	}
	if !index.table.Remove(key, values[0]) {
		return errors.New("hash: could not remove entry")
	}
	return nil
}

// RemovePair removes a specific (key, value) pair, as opposed to Delete's
// "first match for key" semantics. Useful when a key legitimately maps to
// several values and the caller knows exactly which one to drop.
func (index *HashIndex) RemovePair(key int64, value int64) error {
	if !index.table.Remove(key, value) {
		return errors.New("hash: pair not found")
	}
	return nil
}

// Select all elements.
func (index *HashIndex) Select() ([]entry.Entry, error) {
	return index.table.Select()
}

// GetGlobalDepth returns the directory's current global depth.
func (index *HashIndex) GetGlobalDepth() int64 {
	return index.table.GetGlobalDepth()
}

// VerifyIntegrity asserts the directory's aliasing invariant, panicking on
// violation. See also the non-fatal IsHash.
func (index *HashIndex) VerifyIntegrity() {
	index.table.VerifyIntegrity()
}

// Print all elements.
func (index *HashIndex) Print(w io.Writer) {
	index.table.Print(w)
}

// Print a page of elements.
func (index *HashIndex) PrintPN(pn int, w io.Writer) {
	index.table.PrintPN(pn, w)
}
