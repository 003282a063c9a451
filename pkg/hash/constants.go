package hash

import (
	"dinodb/pkg/pager"
	"encoding/binary"
)

/////////////////////////////////////////////////////////////////////////////
////////////////////////// Low-level Constants //////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// ROOT_PN is the page number of the directory page. The directory is the first
// page ever allocated on a fresh index, so it always lives at page 0.
const ROOT_PN int64 = 0
const PAGESIZE int64 = pager.Pagesize

// FINGERPRINT_BITS is the width of the hash value used to route keys; only its
// low GlobalDepth bits are ever consulted.
const FINGERPRINT_BITS = 32

/////////////////////////////////////////////////////////////////////////////
///////////////////////// Directory Page Layout //////////////////////////////
/////////////////////////////////////////////////////////////////////////////

const DIR_DEPTH_OFFSET int64 = 0
const DIR_DEPTH_SIZE int64 = binary.MaxVarintLen64
const DIR_HEADER_SIZE int64 = DIR_DEPTH_SIZE

const DIR_SLOT_PAGEID_SIZE int64 = binary.MaxVarintLen64
const DIR_SLOT_DEPTH_SIZE int64 = binary.MaxVarintLen64
const DIR_SLOT_SIZE int64 = DIR_SLOT_PAGEID_SIZE + DIR_SLOT_DEPTH_SIZE

// MAX_DEPTH bounds both the global depth and every local depth. 7 is the
// largest depth whose directory (2^7 slots, 20 bytes/slot) still fits in a
// single page alongside its header.
const MAX_DEPTH int64 = 7
const DIRECTORY_CAPACITY int64 = int64(1) << MAX_DEPTH

/////////////////////////////////////////////////////////////////////////////
////////////////////////// Bucket Page Layout /////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Each bucket page carries two bitset.BitSet bitmaps (occupied, readable), each
// serialized via BitSet.MarshalBinary as an 8-byte length prefix followed by
// BITMAP_WORDS 8-byte words. BITMAP_WORDS must cover MAX_BUCKET_SIZE bits.
const BITMAP_LEN_FIELD_SIZE int64 = 8
const BITMAP_WORD_SIZE int64 = 8
const BITMAP_WORDS int64 = 4
const BITMAP_SIZE int64 = BITMAP_LEN_FIELD_SIZE + BITMAP_WORD_SIZE*BITMAP_WORDS

const OCCUPIED_OFFSET int64 = 0
const READABLE_OFFSET int64 = OCCUPIED_OFFSET + BITMAP_SIZE
const BUCKET_HEADER_SIZE int64 = READABLE_OFFSET + BITMAP_SIZE

const ENTRYSIZE int64 = binary.MaxVarintLen64 * 2 // int64 key, int64 value
const ENTRIES_OFFSET int64 = BUCKET_HEADER_SIZE

// MAX_BUCKET_SIZE (aka BUCKET_CAPACITY) is the number of (key, value) slots a
// bucket page can hold. It must stay within the 256 bits that BITMAP_WORDS
// reserves for the occupied/readable bitmaps.
const MAX_BUCKET_SIZE int64 = (PAGESIZE - BUCKET_HEADER_SIZE) / ENTRYSIZE
const BUCKET_CAPACITY int64 = MAX_BUCKET_SIZE
