package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	snapshotFile = "session.json"
	bankrollFile = "bankroll.json"

	// SnapshotTTL bounds how long a saved session stays resumable.
	SnapshotTTL = 24 * time.Hour
)

// Store persists the single session snapshot slot and the bankroll carried
// between sessions. Every save is a full-blob overwrite through a temp file
// and rename, so a racing save cannot leave a torn snapshot; last write wins.
type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func defaultStateDir() (string, error) {
	if dir := os.Getenv("CANDLERUSH_STATE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".crush"), nil
}

// NewStore opens (creating if needed) the state directory. An empty dir uses
// CANDLERUSH_STATE_DIR or ~/.crush.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		var err error
		dir, err = defaultStateDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) snapshotPath() string { return filepath.Join(s.dir, snapshotFile) }
func (s *Store) bankrollPath() string { return filepath.Join(s.dir, bankrollFile) }

// SaveSnapshot overwrites the snapshot slot.
func (s *Store) SaveSnapshot(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.snapshotPath(), snap)
}

// SaveSnapshotAsync persists without blocking the caller. Errors are dropped:
// the slot is rewritten on the next mutation anyway.
func (s *Store) SaveSnapshotAsync(snap Snapshot) {
	go func() {
		_ = s.SaveSnapshot(snap)
	}()
}

// LoadSnapshot returns the saved session iff it exists, is younger than the
// TTL, and is not already game over. Expired or terminal snapshots are
// deleted on read and reported as absent.
func (s *Store) LoadSnapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		_ = os.Remove(s.snapshotPath())
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.IsGameOver || s.now().Sub(snap.SavedAt) >= SnapshotTTL {
		_ = os.Remove(s.snapshotPath())
		return nil, nil
	}
	return &snap, nil
}

// DeleteSnapshot clears the slot.
func (s *Store) DeleteSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.snapshotPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type bankrollRecord struct {
	Balance float64 `json:"balance"`
}

// Bankroll reads the running balance carried between sessions, defaulting a
// new player and migrating the legacy default in place.
func (s *Store) Bankroll() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.bankrollPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultBankroll, nil
		}
		return 0, fmt.Errorf("read bankroll: %w", err)
	}
	var rec bankrollRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return 0, fmt.Errorf("decode bankroll: %w", err)
	}
	if rec.Balance == LegacyBankroll {
		rec.Balance = DefaultBankroll
		if err := writeJSONFile(s.bankrollPath(), rec); err != nil {
			return 0, fmt.Errorf("migrate bankroll: %w", err)
		}
	}
	return rec.Balance, nil
}

// SetBankroll overwrites the running balance.
func (s *Store) SetBankroll(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.bankrollPath(), bankrollRecord{Balance: v})
}

// SettleGameOver records the session's final equity as the new bankroll and
// clears the snapshot slot.
func (s *Store) SettleGameOver(finalEquity float64) error {
	if err := s.SetBankroll(finalEquity); err != nil {
		return err
	}
	return s.DeleteSnapshot()
}

// Reset wipes both the snapshot slot and the bankroll.
func (s *Store) Reset() error {
	if err := s.DeleteSnapshot(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.bankrollPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
