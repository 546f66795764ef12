package frontier

import (
	"encoding/binary"
	"errors"
	"os"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"
)

// DiscoveryFilter is a disk-backed bloom filter sitting in front of the
// link-state store's record_discovery check. A negative is authoritative
// ("definitely not seen"); a positive still falls through to the real
// store lookup, so false accepts never cause a missed discovery.
//
// Grounded on the mmap-backed bloom filter pattern used for URL dedup
// elsewhere in the corpus (temp-file-backed mmap.MMap holding a
// marshaled bloom.BloomFilter, periodic Flush to disk).
type DiscoveryFilter struct {
	mu        sync.Mutex
	filter    *bloom.BloomFilter
	file      *os.File
	mapped    mmap.MMap
	path      string
	count     uint64
	syncEvery uint64
	lastErr   error
}

// NewDiscoveryFilter creates a disk-backed fingerprint filter sized for
// expectedItems at the given false-positive rate.
func NewDiscoveryFilter(path string, expectedItems uint, falsePositiveRate float64) (*DiscoveryFilter, error) {
	filter := bloom.NewWithEstimates(expectedItems, falsePositiveRate)

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}

	filterSize := int(filter.Cap())
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}
	if info.Size() != int64(filterSize) {
		if err := file.Truncate(int64(filterSize)); err != nil {
			file.Close()
			return nil, &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
		}
	}

	mapped, err := mmap.MapRegion(file, filterSize, mmap.RDWR, 0, 0)
	if err != nil {
		file.Close()
		return nil, &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}

	if info.Size() == int64(filterSize) {
		// Reload any persisted filter state from a prior run.
		if err := filter.UnmarshalBinary(mapped); err == nil {
			// Successfully restored; nothing further to do.
		} else {
			filter = bloom.NewWithEstimates(expectedItems, falsePositiveRate)
		}
	}

	data, err := filter.MarshalBinary()
	if err != nil {
		mapped.Unmap()
		file.Close()
		return nil, &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}
	if len(data) <= len(mapped) {
		copy(mapped, data)
	}

	return &DiscoveryFilter{
		filter:    filter,
		file:      file,
		mapped:    mapped,
		path:      path,
		syncEvery: 1000,
	}, nil
}

func fingerprintBytes(fp uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, fp)
	return b
}

// MaybeSeen reports whether fp might already be discovered. False is
// authoritative; true requires falling through to the link-state store.
func (d *DiscoveryFilter) MaybeSeen(fp uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filter.Test(fingerprintBytes(fp))
}

// Add marks fp as discovered.
func (d *DiscoveryFilter) Add(fp uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.filter.Add(fingerprintBytes(fp))
	d.count++
	if d.count >= d.syncEvery {
		if err := d.syncLocked(); err != nil {
			d.lastErr = err
		}
	}
}

func (d *DiscoveryFilter) syncLocked() error {
	data, err := d.filter.MarshalBinary()
	if err != nil {
		return err
	}
	if len(data) <= len(d.mapped) {
		copy(d.mapped, data)
	}
	if err := d.mapped.Flush(); err != nil {
		return err
	}
	d.count = 0
	return nil
}

// Close flushes any pending state and unmaps the backing file.
func (d *DiscoveryFilter) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.count > 0 {
		if err := d.syncLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.lastErr != nil {
		errs = append(errs, d.lastErr)
	}
	if err := d.mapped.Unmap(); err != nil {
		errs = append(errs, err)
	}
	if err := d.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
