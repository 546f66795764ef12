// Package linkstate is the durable mapping from URL fingerprint to
// lifecycle state (Discovered, InQueue, InProgress, Crawled, Failed,
// Blocked), with atomic check-and-set transitions.
package linkstate

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketURLState  = []byte("url_state")
	bucketHostState = []byte("host_state")
	bucketWebgraph  = []byte("webgraph")
)

// Store is the embedded, durable key-value store backing the link-state
// table. It is safe for concurrent use: bbolt serializes writers, which
// gives the check-and-set semantics try_claim/complete require for free.
type Store struct {
	db              *bbolt.DB
	maxAttempts     int           // 0 means unlimited
	recrawlInterval time.Duration // 0 means never recrawl
}

// Open opens (creating if absent) the single-file store at path and
// ensures its three buckets exist.
func Open(path string, maxAttempts int, recrawlInterval time.Duration) (*Store, error) {
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketURLState, bucketHostState, bucketWebgraph} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}

	return &Store{db: db, maxAttempts: maxAttempts, recrawlInterval: recrawlInterval}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func fpKey(fp uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, fp)
	return key
}

func (s *Store) getRecord(tx *bbolt.Tx, fp uint64) (Record, bool, error) {
	raw := tx.Bucket(bucketURLState).Get(fpKey(fp))
	if raw == nil {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseCorruptRecord}
	}
	return rec, true, nil
}

func (s *Store) putRecord(tx *bbolt.Tx, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseCorruptRecord}
	}
	return tx.Bucket(bucketURLState).Put(fpKey(rec.Fingerprint), raw)
}

// TryClaim attempts to move a fingerprint into InProgress. A missing
// record, or one in Discovered/InQueue, is always claimable; a Crawled
// record is claimable once the recrawl interval has elapsed since
// LastSuccessAt; a Failed record is claimable while its retry budget
// (maxAttempts, 0 = unlimited) remains. Everything else — InProgress,
// Blocked, or a Failed/Crawled record outside its claim window — returns
// AlreadyInProgress or Terminal without mutating the record.
func (s *Store) TryClaim(fp uint64, depths Depths, origin uint64) (ClaimResult, error) {
	var result ClaimResult

	err := s.db.Update(func(tx *bbolt.Tx) error {
		rec, found, err := s.getRecord(tx, fp)
		if err != nil {
			return err
		}

		now := time.Now()

		if !found {
			rec = Record{
				Fingerprint: fp,
				State:       InProgress,
				Depths:      depths,
				Origin:      origin,
				CreatedAt:   now,
			}
			rec.LastAttemptAt = now
			result = Claimed
			return s.putRecord(tx, rec)
		}

		switch rec.State {
		case Discovered, InQueue:
			rec.State = InProgress
			rec.LastAttemptAt = now
			result = Claimed
			return s.putRecord(tx, rec)
		case Crawled:
			if s.recrawlInterval <= 0 || now.Before(rec.LastSuccessAt.Add(s.recrawlInterval)) {
				result = Terminal
				return nil
			}
			rec.State = InProgress
			rec.LastAttemptAt = now
			result = Claimed
			return s.putRecord(tx, rec)
		case Failed:
			if s.maxAttempts > 0 && rec.Attempts >= s.maxAttempts {
				result = Terminal
				return nil
			}
			rec.State = InProgress
			rec.LastAttemptAt = now
			result = Claimed
			return s.putRecord(tx, rec)
		case InProgress:
			result = AlreadyInProgress
			return nil
		case Blocked:
			result = Terminal
			return nil
		default:
			result = Terminal
			return nil
		}
	})
	if err != nil {
		return Terminal, err
	}
	return result, nil
}

// Complete records the outcome of a step. Only the coordinator that owns
// the InProgress marker should call this (the caller is trusted to have
// observed Claimed from TryClaim for this fingerprint).
func (s *Store) Complete(fp uint64, outcome Outcome) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		rec, found, err := s.getRecord(tx, fp)
		if err != nil {
			return err
		}
		if !found || rec.State != InProgress {
			return &LinkStateError{
				Message:   "complete called without an owned InProgress claim",
				Retryable: false,
				Cause:     ErrCauseNotClaimer,
			}
		}

		now := time.Now()
		if outcome.Success {
			rec.State = Crawled
			rec.LastSuccessAt = now
			rec.Attempts = 0
			rec.FailReason = FailNone
		} else {
			rec.Attempts++
			if s.maxAttempts > 0 && rec.Attempts >= s.maxAttempts {
				rec.State = Failed
				rec.FailReason = FailTooManyAttempts
			} else {
				rec.State = Failed
				rec.FailReason = outcome.Reason
			}
		}
		return s.putRecord(tx, rec)
	})
	if err != nil {
		if lerr, ok := err.(*LinkStateError); ok {
			return lerr
		}
		return &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}
	return nil
}

// RecordDiscovery inserts a Discovered record if absent; a pre-existing
// record of any state is left untouched. rawURL is persisted so a worker
// can later resolve this fingerprint back to a fetchable URL.
func (s *Store) RecordDiscovery(fp uint64, rawURL string, depths Depths, origin uint64) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, found, err := s.getRecord(tx, fp)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		rec := Record{
			Fingerprint: fp,
			RawURL:      rawURL,
			State:       Discovered,
			Depths:      depths,
			Origin:      origin,
			CreatedAt:   time.Now(),
		}
		return s.putRecord(tx, rec)
	})
	if err != nil {
		return &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}
	return nil
}

// MarkTerminalUnsupported records a normalize.ErrCauseUnsupportedScheme
// candidate as a terminal entry instead of enqueueing it.
func (s *Store) MarkTerminalUnsupported(fp uint64, depths Depths, origin uint64) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		rec := Record{
			Fingerprint: fp,
			State:       Failed,
			FailReason:  FailHttpClient,
			Depths:      depths,
			Origin:      origin,
			CreatedAt:   time.Now(),
		}
		return s.putRecord(tx, rec)
	})
	if err != nil {
		return &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}
	return nil
}

// MarkBlocked transitions a fingerprint to the terminal Blocked state.
func (s *Store) MarkBlocked(fp uint64, reason BlockReason) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		rec, found, err := s.getRecord(tx, fp)
		if err != nil {
			return err
		}
		if !found {
			rec = Record{Fingerprint: fp, CreatedAt: time.Now()}
		}
		rec.State = Blocked
		rec.BlockReason = reason
		return s.putRecord(tx, rec)
	})
	if err != nil {
		return &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}
	return nil
}

// Snapshot returns the current record for fp, if any.
func (s *Store) Snapshot(fp uint64) (Record, bool, error) {
	var rec Record
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, found, err = s.getRecord(tx, fp)
		return err
	})
	if err != nil {
		return Record{}, false, err
	}
	return rec, found, nil
}

// Scan iterates every record, calling filter to decide inclusion.
// A nil filter returns every record.
func (s *Store) Scan(filter func(Record) bool) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketURLState).ForEach(func(_, raw []byte) error {
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseCorruptRecord}
			}
			if filter == nil || filter(rec) {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecoverInProgress scans for entries left InProgress at crash time and
// moves them back to InQueue with incremented Attempts, per the
// "link-state store is the source of truth" crash-recovery policy.
// It returns the fingerprints that were recovered.
func (s *Store) RecoverInProgress() ([]uint64, error) {
	var recovered []uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketURLState)
		return b.ForEach(func(key, raw []byte) error {
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseCorruptRecord}
			}
			if rec.State != InProgress {
				return nil
			}
			rec.State = InQueue
			rec.Attempts++
			encoded, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put(key, encoded); err != nil {
				return err
			}
			recovered = append(recovered, rec.Fingerprint)
			return nil
		})
	})
	if err != nil {
		return nil, &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}
	return recovered, nil
}

// AddEdge records a web-graph edge from one fingerprint to another.
func (s *Store) AddEdge(from, to uint64) error {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], from)
	binary.BigEndian.PutUint64(key[8:], to)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketWebgraph).Put(key, []byte{1})
	})
	if err != nil {
		return &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}
	return nil
}

// Edges returns every fingerprint `from` links to.
func (s *Store) Edges(from uint64) ([]uint64, error) {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, from)

	var out []uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketWebgraph).Cursor()
		for k, _ := c.Seek(prefix); k != nil && len(k) == 16; k, _ = c.Next() {
			if string(k[:8]) != string(prefix) {
				break
			}
			out = append(out, binary.BigEndian.Uint64(k[8:]))
		}
		return nil
	})
	if err != nil {
		return nil, &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}
	return out, nil
}

// HostRecord is the persisted bookkeeping for a host-wide quarantine
// signal raised after repeated 410s, surviving process restarts.
type HostRecord struct {
	HostKey          string    `json:"host_key"`
	QuarantinedUntil time.Time `json:"quarantined_until,omitempty"`
	ConsecutiveGone  int       `json:"consecutive_gone"`
}

func (s *Store) QuarantineHost(hostKey string, until time.Time) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHostState)
		rec, err := hostRecordLocked(b, hostKey)
		if err != nil {
			return err
		}
		rec.QuarantinedUntil = until
		rec.ConsecutiveGone = 0
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(hostKey), raw)
	})
	if err != nil {
		return &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}
	return nil
}

// RecordGone increments hostKey's persisted consecutive-410 counter and
// returns the updated count, so a host already most of the way to
// quarantine survives a process restart instead of recounting from zero.
func (s *Store) RecordGone(hostKey string) (int, error) {
	var count int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHostState)
		rec, err := hostRecordLocked(b, hostKey)
		if err != nil {
			return err
		}
		rec.ConsecutiveGone++
		count = rec.ConsecutiveGone
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(hostKey), raw)
	})
	if err != nil {
		return 0, &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}
	return count, nil
}

// ClearGone resets hostKey's persisted consecutive-410 counter after a
// successful (2xx/3xx) fetch.
func (s *Store) ClearGone(hostKey string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHostState)
		rec, err := hostRecordLocked(b, hostKey)
		if err != nil {
			return err
		}
		if rec.ConsecutiveGone == 0 {
			return nil
		}
		rec.ConsecutiveGone = 0
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(hostKey), raw)
	})
	if err != nil {
		return &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseStoreIO}
	}
	return nil
}

// hostRecordLocked reads hostKey's record, or a zero-value one keyed to
// hostKey if absent. Caller must hold b's transaction.
func hostRecordLocked(b *bbolt.Bucket, hostKey string) (HostRecord, error) {
	raw := b.Get([]byte(hostKey))
	if raw == nil {
		return HostRecord{HostKey: hostKey}, nil
	}
	var rec HostRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return HostRecord{}, err
	}
	return rec, nil
}

func (s *Store) HostQuarantine(hostKey string) (time.Time, error) {
	var until time.Time
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketHostState).Get([]byte(hostKey))
		if raw == nil {
			return nil
		}
		var rec HostRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		until = rec.QuarantinedUntil
		return nil
	})
	if err != nil {
		return time.Time{}, &LinkStateError{Message: err.Error(), Retryable: false, Cause: ErrCauseCorruptRecord}
	}
	return until, nil
}
