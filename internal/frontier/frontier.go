// Package frontier is the ordered, durable queue of admitted, not-yet-
// crawled URLs: a host memory-layer ready-heap (container/heap) over a
// persistent, append-only, memory-mapped on-disk queue file per host.
//
// Ordering guarantees: entries for the same host are dequeued in
// insertion order; across hosts, order is by next_ready_at with FIFO
// tie-break. Durability: crash recovery reloads on-disk queues and
// rebuilds the heap; entries already claimed as InProgress at crash time
// become retry candidates (handled by linkstate.RecoverInProgress, not
// here).
package frontier

import (
	"container/heap"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	dir      string
	queues   map[string]*diskQueue
	ready    readyHeap
	slots    map[string]*hostSlot
	sequence uint64
}

// Open loads (or creates) the per-host queue directory at dir and
// rebuilds the ready-heap from whatever on-disk queues already exist,
// implementing the spec's crash-recovery requirement.
func Open(dir string) (*Frontier, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}

	f := &Frontier{
		dir:    dir,
		queues: make(map[string]*diskQueue),
		slots:  make(map[string]*hostSlot),
	}
	f.cond = sync.NewCond(&f.mu)
	heap.Init(&f.ready)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &FrontierError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueueIO}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		hostKey := e.Name()
		dq, err := openDiskQueue(filepath.Join(dir, hostKey))
		if err != nil {
			return nil, err
		}
		f.queues[hostKey] = dq
		if head, found := dq.Peek(hostKey); found {
			f.pushSlotLocked(hostKey, head.EarliestEligible)
		}
	}

	return f, nil
}

func (f *Frontier) hostFilePath(hostKey string) string {
	return filepath.Join(f.dir, hostKey)
}

func (f *Frontier) queueForHost(hostKey string) (*diskQueue, error) {
	if dq, ok := f.queues[hostKey]; ok {
		return dq, nil
	}
	dq, err := openDiskQueue(f.hostFilePath(hostKey))
	if err != nil {
		return nil, err
	}
	f.queues[hostKey] = dq
	return dq, nil
}

func (f *Frontier) pushSlotLocked(hostKey string, readyAt time.Time) {
	f.sequence++
	slot := &hostSlot{hostKey: hostKey, readyAt: readyAt, sequence: f.sequence}
	f.slots[hostKey] = slot
	heap.Push(&f.ready, slot)
}

// Enqueue admits a new queue entry. If the host had no pending work, it
// is (re)inserted into the ready-heap at this entry's EarliestEligible.
func (f *Frontier) Enqueue(entry QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dq, err := f.queueForHost(entry.HostKey)
	if err != nil {
		return err
	}
	wasEmpty := dq.Len() == 0
	if err := dq.Append(entry); err != nil {
		return err
	}
	if wasEmpty {
		if _, exists := f.slots[entry.HostKey]; !exists {
			f.pushSlotLocked(entry.HostKey, entry.EarliestEligible)
		}
	}

	f.cond.Broadcast()
	return nil
}

// DequeueReady returns the next eligible entry, if any host at the top
// of the ready-heap has reached its next_ready_at. found is false both
// when the frontier is empty and when the earliest host is not yet
// eligible — callers distinguish the two via Empty().
func (f *Frontier) DequeueReady(now time.Time) (entry QueueEntry, found bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dequeueReadyLocked(now)
}

func (f *Frontier) dequeueReadyLocked(now time.Time) (QueueEntry, bool, error) {
	if f.ready.Len() == 0 {
		return QueueEntry{}, false, nil
	}
	top := f.ready[0]
	if top.readyAt.After(now) {
		return QueueEntry{}, false, nil
	}

	dq := f.queues[top.hostKey]
	entry, ok, err := dq.Pop(top.hostKey)
	if err != nil {
		return QueueEntry{}, false, err
	}
	heap.Pop(&f.ready)
	delete(f.slots, top.hostKey)
	if !ok {
		// Host slot existed with nothing behind it (shouldn't normally
		// happen); fall through and let the caller retry another host.
		return QueueEntry{}, false, nil
	}

	if next, found := dq.Peek(top.hostKey); found {
		f.pushSlotLocked(top.hostKey, next.EarliestEligible)
	}

	return entry, true, nil
}

// Requeue re-admits an entry (e.g. after a 5xx back-off) at the tail of
// its host's queue with an updated EarliestEligible.
func (f *Frontier) Requeue(entry QueueEntry) error {
	return f.Enqueue(entry)
}

// RemoveHost drops a host's queue entirely, in response to a
// Blocked-host signal (e.g. repeated 410s escalating to quarantine).
func (f *Frontier) RemoveHost(hostKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if slot, ok := f.slots[hostKey]; ok {
		heap.Remove(&f.ready, slot.index)
		delete(f.slots, hostKey)
	}

	dq, ok := f.queues[hostKey]
	if !ok {
		return nil
	}
	delete(f.queues, hostKey)
	return dq.Remove()
}

// Empty reports whether the frontier holds no pending work at all.
func (f *Frontier) Empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready.Len() == 0
}

// WaitFor blocks until either a new entry has been enqueued or the
// supplied done channel is closed (e.g. on supervisor shutdown).
func (f *Frontier) WaitFor(done <-chan struct{}) {
	woken := make(chan struct{})
	go func() {
		f.mu.Lock()
		f.cond.Wait()
		f.mu.Unlock()
		close(woken)
	}()

	select {
	case <-woken:
	case <-done:
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	}
}

// Close flushes and unmaps every open host queue.
func (f *Frontier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for _, dq := range f.queues {
		if err := dq.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
