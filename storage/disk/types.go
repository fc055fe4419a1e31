// Package disk implements the Disk Manager and Disk Scheduler: the
// lowest layer of the storage stack, responsible for mapping logical
// page ids onto byte offsets in a single heap file and serializing
// concurrent page reads/writes onto per-page worker goroutines.
package disk

// PAGE_SIZE is the fixed size, in bytes, of every page the engine reads
// or writes. It is also the unit the disk file grows by.
const PAGE_SIZE = 4096

// INVALID_PAGE_ID is the sentinel page id used throughout the engine to
// mean "no page" (an empty tree's root, a leaf's missing next sibling,
// a frame holding no page).
const INVALID_PAGE_ID int64 = -1

// DEFAULT_PAGE_CAPACITY is the number of pages a new disk manager counts
// as room in the heap file before it first grows the file; the disk
// manager does not size the file to it, and doubles it on demand.
const DEFAULT_PAGE_CAPACITY = 16
