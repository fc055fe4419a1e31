package disk

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// DiskManager owns the single heap file backing the buffer pool. Page ids
// are mapped to byte offsets in pages; offsets freed by DeletePage are
// reused before the file is grown.
type DiskManager struct {
	dbFile       *os.File
	pages        map[int]int
	freeSlots    []int
	pageCapacity int
}

// NewDiskManager wraps an already-open heap file. The caller owns the
// file's lifetime (creation, truncation to an initial size, closing).
func NewDiskManager(file *os.File) *DiskManager {
	return &DiskManager{
		dbFile:       file,
		pageCapacity: DEFAULT_PAGE_CAPACITY,
		freeSlots:    []int{},
		pages:        map[int]int{},
	}
}

func (dm *DiskManager) writePage(pageId int, data []byte) error {
	offset, err := dm.offsetFor(pageId)
	if err != nil {
		return err
	}

	if _, err := dm.dbFile.WriteAt(data, int64(offset)); err != nil {
		return errors.Wrapf(err, "writing page %d at offset %d", pageId, offset)
	}

	return nil
}

func (dm *DiskManager) readPage(pageId int) ([]byte, error) {
	offset, err := dm.offsetFor(pageId)
	if err != nil {
		return nil, err
	}

	// A page whose offset lies past the end of the file has never been
	// written; the short read leaves the rest of buf zeroed.
	buf := make([]byte, PAGE_SIZE)
	if _, err := dm.dbFile.ReadAt(buf, int64(offset)); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "reading page %d at offset %d", pageId, offset)
	}

	return buf, nil
}

// offsetFor returns the byte offset backing pageId, allocating one on
// first use.
func (dm *DiskManager) offsetFor(pageId int) (int, error) {
	if offset, ok := dm.pages[pageId]; ok {
		return offset, nil
	}

	offset, err := dm.allocatePage()
	if err != nil {
		return 0, err
	}
	dm.pages[pageId] = offset
	return offset, nil
}

func (dm *DiskManager) deletePage(pageId int) {
	if offset, ok := dm.pages[pageId]; ok {
		dm.freeSlots = append(dm.freeSlots, offset)
		delete(dm.pages, pageId)
	}
}

func (dm *DiskManager) allocatePage() (int, error) {
	if len(dm.freeSlots) > 0 {
		offset := dm.freeSlots[0]
		dm.freeSlots = dm.freeSlots[1:]

		return offset, nil
	}

	if len(dm.pages)+1 > dm.pageCapacity {
		dm.pageCapacity *= 2
		if err := os.Truncate(dm.dbFile.Name(), int64(dm.pageCapacity)*PAGE_SIZE); err != nil {
			return -1, errors.Wrap(err, "resizing db file")
		}
	}

	return dm.getNextOffset(), nil
}

func (dm *DiskManager) getNextOffset() int {
	return len(dm.pages) * PAGE_SIZE
}
