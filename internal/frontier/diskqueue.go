package frontier

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// recordSize is the fixed on-disk width of one QueueEntry: fingerprint(8)
// + depthFromSeed(4) + depthOnHost(4) + earliestEligible unix-nano(8) +
// origin(8).
const recordSize = 32

// headerSize holds the head and tail record indices (uint64 each).
const headerSize = 16

const defaultDiskQueueCapacity = 256

// diskQueue is a memory-mapped, append-only log of QueueEntry records for
// one host. Entries are never rewritten in place: popping only advances
// the head index kept in the file header, mirroring the bloom-filter
// mmap pattern used for disk-backed dedup state elsewhere in the corpus.
type diskQueue struct {
	mu       sync.Mutex
	file     *os.File
	mapped   mmap.MMap
	path     string
	capacity int // in records
}

func fileSize(capacityRecords int) int64 {
	return headerSize + int64(capacityRecords)*recordSize
}

// openDiskQueue opens (creating if absent) the append-only queue file for
// a single host.
func openDiskQueue(path string) (*diskQueue, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}

	capacity := defaultDiskQueueCapacity
	if info.Size() == 0 {
		if err := file.Truncate(fileSize(capacity)); err != nil {
			file.Close()
			return nil, &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
		}
	} else {
		capacity = int((info.Size() - headerSize) / recordSize)
	}

	mapped, err := mmap.MapRegion(file, int(fileSize(capacity)), mmap.RDWR, 0, 0)
	if err != nil {
		file.Close()
		return nil, &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}

	return &diskQueue{file: file, mapped: mapped, path: path, capacity: capacity}, nil
}

func (q *diskQueue) head() uint64 {
	return binary.LittleEndian.Uint64(q.mapped[0:8])
}

func (q *diskQueue) tail() uint64 {
	return binary.LittleEndian.Uint64(q.mapped[8:16])
}

func (q *diskQueue) setHead(v uint64) {
	binary.LittleEndian.PutUint64(q.mapped[0:8], v)
}

func (q *diskQueue) setTail(v uint64) {
	binary.LittleEndian.PutUint64(q.mapped[8:16], v)
}

func encodeEntry(buf []byte, e QueueEntry) {
	binary.LittleEndian.PutUint64(buf[0:8], e.Fingerprint)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(e.DepthFromSeed))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(e.DepthOnHost))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(e.EarliestEligible.UnixNano()))
	binary.LittleEndian.PutUint64(buf[24:32], e.Origin)
}

func decodeEntry(buf []byte, hostKey string) QueueEntry {
	return QueueEntry{
		Fingerprint:      binary.LittleEndian.Uint64(buf[0:8]),
		DepthFromSeed:    int(int32(binary.LittleEndian.Uint32(buf[8:12]))),
		DepthOnHost:      int(int32(binary.LittleEndian.Uint32(buf[12:16]))),
		EarliestEligible: unixNanoToTime(binary.LittleEndian.Uint64(buf[16:24])),
		Origin:           binary.LittleEndian.Uint64(buf[24:32]),
		HostKey:          hostKey,
	}
}

// Append writes entry to the tail of the log, growing the backing file
// (doubling capacity) when full.
func (q *diskQueue) Append(e QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if int(q.tail()) >= q.capacity {
		if err := q.growLocked(); err != nil {
			return err
		}
	}

	tail := q.tail()
	offset := headerSize + int64(tail)*recordSize
	encodeEntry(q.mapped[offset:offset+recordSize], e)
	q.setTail(tail + 1)
	return nil
}

// Pop removes and returns the oldest unconsumed entry, or found=false if
// the log is drained.
func (q *diskQueue) Pop(hostKey string) (entry QueueEntry, found bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	head, tail := q.head(), q.tail()
	if head >= tail {
		return QueueEntry{}, false, nil
	}

	offset := headerSize + int64(head)*recordSize
	entry = decodeEntry(q.mapped[offset:offset+recordSize], hostKey)
	q.setHead(head + 1)
	return entry, true, nil
}

// Len reports how many entries remain unconsumed.
func (q *diskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.tail() - q.head())
}

// Peek returns the oldest unconsumed entry without advancing the head.
func (q *diskQueue) Peek(hostKey string) (entry QueueEntry, found bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	head, tail := q.head(), q.tail()
	if head >= tail {
		return QueueEntry{}, false
	}
	offset := headerSize + int64(head)*recordSize
	return decodeEntry(q.mapped[offset:offset+recordSize], hostKey), true
}

func (q *diskQueue) growLocked() error {
	newCapacity := q.capacity * 2
	if newCapacity == 0 {
		newCapacity = defaultDiskQueueCapacity
	}

	if err := q.mapped.Unmap(); err != nil {
		return &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}
	if err := q.file.Truncate(fileSize(newCapacity)); err != nil {
		return &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}
	mapped, err := mmap.MapRegion(q.file, int(fileSize(newCapacity)), mmap.RDWR, 0, 0)
	if err != nil {
		return &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}
	q.mapped = mapped
	q.capacity = newCapacity
	return nil
}

// Close flushes and unmaps the queue file.
func (q *diskQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.mapped.Flush(); err != nil {
		q.file.Close()
		return &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}
	if err := q.mapped.Unmap(); err != nil {
		q.file.Close()
		return &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}
	return q.file.Close()
}

// Remove closes and deletes the queue file entirely.
func (q *diskQueue) Remove() error {
	if err := q.Close(); err != nil {
		return err
	}
	if err := os.Remove(q.path); err != nil && !os.IsNotExist(err) {
		return &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}
	return nil
}
