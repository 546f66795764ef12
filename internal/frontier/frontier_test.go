package frontier

import (
	"testing"
	"time"
)

func newTestFrontier(t *testing.T) *Frontier {
	t.Helper()
	f, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestEnqueueDequeueReady(t *testing.T) {
	f := newTestFrontier(t)
	now := time.Now()

	entry := QueueEntry{Fingerprint: 1, HostKey: "example.com", EarliestEligible: now.Add(-time.Second)}
	if err := f.Enqueue(entry); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	got, found, err := f.DequeueReady(now)
	if err != nil {
		t.Fatalf("DequeueReady returned error: %v", err)
	}
	if !found {
		t.Fatal("expected an eligible entry")
	}
	if got.Fingerprint != 1 {
		t.Errorf("Fingerprint = %d, want 1", got.Fingerprint)
	}
}

func TestDequeueReadyNotYetEligible(t *testing.T) {
	f := newTestFrontier(t)
	now := time.Now()

	entry := QueueEntry{Fingerprint: 1, HostKey: "example.com", EarliestEligible: now.Add(time.Hour)}
	f.Enqueue(entry)

	_, found, err := f.DequeueReady(now)
	if err != nil {
		t.Fatalf("DequeueReady returned error: %v", err)
	}
	if found {
		t.Fatal("expected no entry to be eligible yet")
	}
}

func TestSameHostFIFOOrder(t *testing.T) {
	f := newTestFrontier(t)
	now := time.Now()

	f.Enqueue(QueueEntry{Fingerprint: 1, HostKey: "example.com", EarliestEligible: now.Add(-time.Second)})
	f.Enqueue(QueueEntry{Fingerprint: 2, HostKey: "example.com", EarliestEligible: now.Add(-time.Second)})
	f.Enqueue(QueueEntry{Fingerprint: 3, HostKey: "example.com", EarliestEligible: now.Add(-time.Second)})

	var order []uint64
	for i := 0; i < 3; i++ {
		entry, found, err := f.DequeueReady(now)
		if err != nil || !found {
			t.Fatalf("DequeueReady[%d] = %v, %v, %v", i, entry, found, err)
		}
		order = append(order, entry.Fingerprint)
	}

	want := []uint64{1, 2, 3}
	for i, fp := range want {
		if order[i] != fp {
			t.Errorf("order = %v, want %v", order, want)
		}
	}
}

func TestCrossHostOrderingByReadyAt(t *testing.T) {
	f := newTestFrontier(t)
	now := time.Now()

	f.Enqueue(QueueEntry{Fingerprint: 1, HostKey: "late.com", EarliestEligible: now.Add(time.Minute)})
	f.Enqueue(QueueEntry{Fingerprint: 2, HostKey: "early.com", EarliestEligible: now.Add(-time.Minute)})

	entry, found, err := f.DequeueReady(now)
	if err != nil || !found {
		t.Fatalf("DequeueReady = %v, %v, %v", entry, found, err)
	}
	if entry.HostKey != "early.com" {
		t.Errorf("HostKey = %q, want early.com", entry.HostKey)
	}
}

func TestRemoveHost(t *testing.T) {
	f := newTestFrontier(t)
	now := time.Now()

	f.Enqueue(QueueEntry{Fingerprint: 1, HostKey: "gone.com", EarliestEligible: now.Add(-time.Second)})
	if err := f.RemoveHost("gone.com"); err != nil {
		t.Fatalf("RemoveHost returned error: %v", err)
	}

	if !f.Empty() {
		t.Error("expected frontier to be empty after RemoveHost")
	}
}

func TestEmpty(t *testing.T) {
	f := newTestFrontier(t)
	if !f.Empty() {
		t.Error("expected a fresh frontier to be empty")
	}

	f.Enqueue(QueueEntry{Fingerprint: 1, HostKey: "example.com", EarliestEligible: time.Now()})
	if f.Empty() {
		t.Error("expected frontier to be non-empty after Enqueue")
	}
}

func TestRequeueMakesEntryDequeueableAgain(t *testing.T) {
	f := newTestFrontier(t)
	now := time.Now()

	f.Enqueue(QueueEntry{Fingerprint: 1, HostKey: "example.com", EarliestEligible: now.Add(-time.Second)})
	entry, _, _ := f.DequeueReady(now)

	entry.EarliestEligible = now.Add(-time.Millisecond)
	if err := f.Requeue(entry); err != nil {
		t.Fatalf("Requeue returned error: %v", err)
	}

	got, found, err := f.DequeueReady(now)
	if err != nil || !found {
		t.Fatalf("DequeueReady after Requeue = %v, %v, %v", got, found, err)
	}
	if got.Fingerprint != 1 {
		t.Errorf("Fingerprint = %d, want 1", got.Fingerprint)
	}
}
