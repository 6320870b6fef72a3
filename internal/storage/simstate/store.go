// Package simstate persists the paper-exchange wallet so restarts keep balances.
package simstate

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/gapeva/poolbot/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StateDirEnv overrides the directory passed to NewStore.
const StateDirEnv = "POOLBOT_SIMULATE_STATE_DIR"

// Store persists simulator state per trading pair.
type Store struct {
	path string
}

// NewStore creates a simulator state store for the given pair under dir.
func NewStore(dir string, pair domain.Pair) (*Store, error) {
	if env := os.Getenv(StateDirEnv); env != "" {
		dir = env
	}
	if dir == "" {
		return nil, errors.New("simulate state dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	name := strings.ToLower(pair.String()) + ".json"
	return &Store{path: filepath.Join(dir, name)}, nil
}

// State represents all persisted simulator data.
type State struct {
	Pair      string            `json:"pair"`
	Wallet    map[string]string `json:"wallet"`
	Orders    int               `json:"orders"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads simulator state from disk. A missing file yields nil state.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read simulate state")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}
	return &state, nil
}

// Save writes simulator state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write simulate state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist simulate state")
	}
	return nil
}
