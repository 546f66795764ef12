package frontier

import (
	"container/heap"
	"time"
)

// hostSlot tracks one host's position in the ready-heap: the time its
// next entry becomes eligible, plus a monotonic sequence number so hosts
// whose next_ready_at ties are broken FIFO by insertion order.
type hostSlot struct {
	hostKey  string
	readyAt  time.Time
	sequence uint64
	index    int // heap.Interface bookkeeping
}

type readyHeap []*hostSlot

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if !h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].readyAt.Before(h[j].readyAt)
	}
	return h[i].sequence < h[j].sequence
}

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x any) {
	slot := x.(*hostSlot)
	slot.index = len(*h)
	*h = append(*h, slot)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	slot := old[n-1]
	old[n-1] = nil
	slot.index = -1
	*h = old[:n-1]
	return slot
}

var _ heap.Interface = (*readyHeap)(nil)
