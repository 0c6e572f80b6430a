package state

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coveport/tidebot/Internal/strategy/position"
)

// Snapshot is the persisted portfolio state: active trades, closed-trade
// history, and the cooldown deadline before which no new entries are
// attempted.
type Snapshot struct {
	ActiveTrades  []*position.Position   `json:"active_trades"`
	TradeHistory  []position.ClosedTrade `json:"trade_history"`
	CooldownUntil time.Time              `json:"cooldown_until"`
}

// Store persists snapshots to a JSON file. Single-writer ownership is
// assumed for the process lifetime; saves go through a temp file and a
// rename so a crash mid-write never loses the previous valid snapshot.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store at path
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the snapshot, falling back to an empty default when the file
// is absent or corrupt. A corrupt file is logged, never fatal.
func (s *Store) Load() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	empty := Snapshot{}
	if s.path == "" {
		return empty
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("⚠️  State load failed, starting fresh: %v", err)
		}
		return empty
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("⚠️  State file corrupt, starting fresh: %v", err)
		return empty
	}
	return snap
}

// Save atomically writes the snapshot
func (s *Store) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("state: empty path")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tidebot-state-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
