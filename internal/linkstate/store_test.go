package linkstate

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, maxAttempts int, recrawl time.Duration) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "linkstate.db")
	store, err := Open(path, maxAttempts, recrawl)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTryClaimNewFingerprint(t *testing.T) {
	store := newTestStore(t, 3, 0)

	result, err := store.TryClaim(1, Depths{FromSeed: 0}, 0)
	if err != nil {
		t.Fatalf("TryClaim returned error: %v", err)
	}
	if result != Claimed {
		t.Fatalf("TryClaim = %v, want Claimed", result)
	}

	rec, found, err := store.Snapshot(1)
	if err != nil || !found {
		t.Fatalf("Snapshot(1) = %+v, %v, %v", rec, found, err)
	}
	if rec.State != InProgress {
		t.Errorf("state = %v, want InProgress", rec.State)
	}
}

func TestTryClaimAlreadyInProgress(t *testing.T) {
	store := newTestStore(t, 3, 0)

	if _, err := store.TryClaim(1, Depths{}, 0); err != nil {
		t.Fatalf("first TryClaim error: %v", err)
	}

	result, err := store.TryClaim(1, Depths{}, 0)
	if err != nil {
		t.Fatalf("second TryClaim error: %v", err)
	}
	if result != AlreadyInProgress {
		t.Errorf("result = %v, want AlreadyInProgress", result)
	}
}

func TestCompleteRequiresClaim(t *testing.T) {
	store := newTestStore(t, 3, 0)

	err := store.Complete(1, Outcome{Success: true})
	if err == nil {
		t.Fatal("expected error completing an unclaimed fingerprint")
	}
}

func TestCompleteSuccessResetsAttempts(t *testing.T) {
	store := newTestStore(t, 3, 0)

	store.TryClaim(1, Depths{}, 0)
	store.Complete(1, Outcome{Success: false, Reason: FailHttpClient})

	store.TryClaim(1, Depths{}, 0)
	if err := store.Complete(1, Outcome{Success: true}); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	rec, _, _ := store.Snapshot(1)
	if rec.State != Crawled {
		t.Errorf("state = %v, want Crawled", rec.State)
	}
	if rec.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 after successful crawl", rec.Attempts)
	}
}

func TestFailedRetryBudgetExhausted(t *testing.T) {
	store := newTestStore(t, 2, 0)

	for i := 0; i < 2; i++ {
		result, err := store.TryClaim(1, Depths{}, 0)
		if err != nil || result != Claimed {
			t.Fatalf("TryClaim iteration %d = %v, %v", i, result, err)
		}
		if err := store.Complete(1, Outcome{Success: false, Reason: FailHttpClient}); err != nil {
			t.Fatalf("Complete returned error: %v", err)
		}
	}

	rec, _, _ := store.Snapshot(1)
	if rec.State != Failed || rec.FailReason != FailTooManyAttempts {
		t.Errorf("record = %+v, want Failed(TooManyAttempts)", rec)
	}

	result, err := store.TryClaim(1, Depths{}, 0)
	if err != nil {
		t.Fatalf("TryClaim returned error: %v", err)
	}
	if result != Terminal {
		t.Errorf("TryClaim after exhausted budget = %v, want Terminal", result)
	}
}

func TestRecordDiscoveryNoOpOnExisting(t *testing.T) {
	store := newTestStore(t, 3, 0)

	if err := store.RecordDiscovery(1, "https://example.com/a", Depths{FromSeed: 1}, 0); err != nil {
		t.Fatalf("RecordDiscovery returned error: %v", err)
	}
	store.TryClaim(1, Depths{}, 0)

	if err := store.RecordDiscovery(1, "https://example.com/a", Depths{FromSeed: 99}, 0); err != nil {
		t.Fatalf("RecordDiscovery returned error: %v", err)
	}

	rec, _, _ := store.Snapshot(1)
	if rec.State != InProgress {
		t.Errorf("RecordDiscovery mutated an existing record: state = %v", rec.State)
	}
}

func TestMarkBlockedIsTerminal(t *testing.T) {
	store := newTestStore(t, 3, 0)

	if err := store.MarkBlocked(1, BlockRobots); err != nil {
		t.Fatalf("MarkBlocked returned error: %v", err)
	}

	result, err := store.TryClaim(1, Depths{}, 0)
	if err != nil {
		t.Fatalf("TryClaim returned error: %v", err)
	}
	if result != Terminal {
		t.Errorf("TryClaim on Blocked = %v, want Terminal", result)
	}
}

func TestRecrawlWindow(t *testing.T) {
	store := newTestStore(t, 3, time.Hour)

	store.TryClaim(1, Depths{}, 0)
	store.Complete(1, Outcome{Success: true})

	result, err := store.TryClaim(1, Depths{}, 0)
	if err != nil {
		t.Fatalf("TryClaim returned error: %v", err)
	}
	if result != Terminal {
		t.Errorf("TryClaim before recrawl interval elapsed = %v, want Terminal", result)
	}
}

func TestRecoverInProgress(t *testing.T) {
	store := newTestStore(t, 3, 0)

	store.TryClaim(1, Depths{}, 0)
	store.TryClaim(2, Depths{}, 0)
	store.Complete(2, Outcome{Success: true})

	recovered, err := store.RecoverInProgress()
	if err != nil {
		t.Fatalf("RecoverInProgress returned error: %v", err)
	}
	if len(recovered) != 1 || recovered[0] != 1 {
		t.Errorf("recovered = %v, want [1]", recovered)
	}

	rec, _, _ := store.Snapshot(1)
	if rec.State != InQueue {
		t.Errorf("state after recovery = %v, want InQueue", rec.State)
	}
	if rec.Attempts != 1 {
		t.Errorf("attempts after recovery = %d, want 1", rec.Attempts)
	}
}

func TestScanFilter(t *testing.T) {
	store := newTestStore(t, 3, 0)

	store.RecordDiscovery(1, "https://example.com/a", Depths{}, 0)
	store.RecordDiscovery(2, "https://example.com/b", Depths{}, 0)
	store.TryClaim(2, Depths{}, 0)

	results, err := store.Scan(func(r Record) bool { return r.State == Discovered })
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(results) != 1 || results[0].Fingerprint != 1 {
		t.Errorf("Scan(Discovered) = %+v, want [{Fingerprint:1}]", results)
	}
}

func TestAddEdgeAndEdges(t *testing.T) {
	store := newTestStore(t, 3, 0)

	store.AddEdge(1, 2)
	store.AddEdge(1, 3)
	store.AddEdge(2, 3)

	edges, err := store.Edges(1)
	if err != nil {
		t.Fatalf("Edges returned error: %v", err)
	}
	if len(edges) != 2 {
		t.Errorf("Edges(1) = %v, want 2 entries", edges)
	}
}

func TestQuarantineHost(t *testing.T) {
	store := newTestStore(t, 3, 0)

	until := time.Now().Add(time.Hour)
	if err := store.QuarantineHost("example.com", until); err != nil {
		t.Fatalf("QuarantineHost returned error: %v", err)
	}

	got, err := store.HostQuarantine("example.com")
	if err != nil {
		t.Fatalf("HostQuarantine returned error: %v", err)
	}
	if !got.Equal(until) {
		t.Errorf("HostQuarantine = %v, want %v", got, until)
	}
}
