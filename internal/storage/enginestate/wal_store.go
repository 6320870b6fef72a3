// Package enginestate persists the risk guard and strategy position across restarts.
package enginestate

import (
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/gapeva/poolbot/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	segmentLimit = 1000
	maxSegments  = 10

	riskKeyPrefix     = "risk_state_"
	positionKeyPrefix = "position_state_"
)

// State last persisted engine state. Nil fields were never written.
type State struct {
	Risk     *domain.RiskState
	Position *domain.PositionState
}

// WALStore appends every state change; the latest record per key wins on load.
type WALStore struct {
	wal         *gowal.Wal
	mu          sync.Mutex
	riskKey     string
	positionKey string
}

// NewWALStore opens the engine state WAL for pair under dir.
func NewWALStore(dir string, pair domain.Pair) (*WALStore, error) {
	walDir := filepath.Join(dir, pair.String())
	if err := os.MkdirAll(walDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", walDir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              walDir,
		Prefix:           "state_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init engine state WAL")
	}

	return &WALStore{
		wal:         wal,
		riskKey:     riskKeyPrefix + pair.String(),
		positionKey: positionKeyPrefix + pair.String(),
	}, nil
}

// Load replays the WAL and returns the latest risk and position records.
func (s *WALStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state State
	for msg := range s.wal.Iterator() {
		switch msg.Key {
		case s.riskKey:
			var risk domain.RiskState
			if err := json.Unmarshal(msg.Value, &risk); err != nil {
				return State{}, errors.Wrap(err, "decode risk state")
			}
			state.Risk = &risk
		case s.positionKey:
			var pos domain.PositionState
			if err := json.Unmarshal(msg.Value, &pos); err != nil {
				return State{}, errors.Wrap(err, "decode position state")
			}
			state.Position = &pos
		}
	}
	return state, nil
}

// SaveRisk appends the risk state.
func (s *WALStore) SaveRisk(state domain.RiskState) error {
	return s.write(s.riskKey, state)
}

// SavePosition appends the position state.
func (s *WALStore) SavePosition(p domain.PositionState) error {
	return s.write(s.positionKey, p)
}

func (s *WALStore) write(key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Write(s.wal.CurrentIndex()+1, key, payload)
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}
