// Package equitysnapshots keeps per-tick equity valuations in a WAL so the
// API can stream them to dashboards.
package equitysnapshots

import (
	"os"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/gapeva/poolbot/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultDir = "./wal/equity"
	keyPrefix  = "equity_snapshot_"

	// DefaultBatch caps one SnapshotsAfter read.
	DefaultBatch = 500

	segmentThreshold = 1000
	maxSegments      = 100
)

var errClosed = errors.New("equity snapshot store is not initialized")

// WALStore appends equity snapshots and reads them back by WAL index.
// The WAL handle is process-local: readers see only what this process wrote.
type WALStore struct {
	mu  sync.RWMutex
	wal *gowal.Wal
}

// NewWALStore opens (or creates) the snapshot WAL under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create equity WAL dir %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "equity_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open equity WAL")
	}
	return &WALStore{wal: wal}, nil
}

// Save appends one snapshot. The pair is part of the record key and must be set.
func (s *WALStore) Save(snapshot domain.EquitySnapshot) error {
	if s == nil || s.wal == nil {
		return errClosed
	}
	if snapshot.Pair == "" {
		return errors.New("equity snapshot pair is required")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "encode equity snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Write(s.wal.CurrentIndex()+1, keyPrefix+snapshot.Pair, payload)
}

// SnapshotsAfter returns at most limit snapshots with an index greater than
// index, oldest first. limit <= 0 means DefaultBatch. Indexes already rotated
// out of the WAL, and records failing their checksum, are skipped.
func (s *WALStore) SnapshotsAfter(index uint64, limit int) ([]domain.EquitySnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errClosed
	}
	if limit <= 0 {
		limit = DefaultBatch
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	var records []domain.EquitySnapshotRecord
	for idx := index + 1; idx <= current && len(records) < limit; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		var snapshot domain.EquitySnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, errors.Wrapf(err, "decode equity snapshot %d", idx)
		}
		records = append(records, domain.EquitySnapshotRecord{Index: idx, Snapshot: snapshot})
	}
	return records, nil
}

// ReplayFrom is the index a new reader should pass to SnapshotsAfter to get
// at most backlog of the most recent snapshots.
func (s *WALStore) ReplayFrom(backlog int) uint64 {
	current := s.CurrentIndex()
	if backlog <= 0 {
		return current
	}
	if current <= uint64(backlog) {
		return 0
	}
	return current - uint64(backlog)
}

// CurrentIndex returns the index of the newest record.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wal.CurrentIndex()
}

// Close closes the WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}
