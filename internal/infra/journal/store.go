// Package journal persists the engine's append-only event logs as JSON array
// files: one per stop order, one per (token, entry order id) for target
// tracking, and one rolling-state file per entry for the time-based exit.
// Appends rewrite the file wholesale; entry order is preserved because
// replay order is what trailing state is derived from.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"risk_go/internal/domain"
)

// Store keeps all journal files under one base directory, split by kind.
type Store struct {
	orderDir    string
	targetDir   string
	timeExitDir string
}

// NewStore creates the journal directories under baseDir.
func NewStore(baseDir string) (*Store, error) {
	s := &Store{
		orderDir:    filepath.Join(baseDir, "order-track"),
		targetDir:   filepath.Join(baseDir, "target-track"),
		timeExitDir: filepath.Join(baseDir, "time-exit"),
	}
	for _, dir := range []string{s.orderDir, s.targetDir, s.timeExitDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir %s: %w", dir, err)
		}
	}
	return s, nil
}

var _ domain.OrderJournal = (*Store)(nil)
var _ domain.TargetJournal = (*Store)(nil)
var _ domain.TimeExitStore = (*Store)(nil)

// ReadOrderTrack returns the ordered journal for a stop order. A missing
// file is an empty journal, not an error.
func (s *Store) ReadOrderTrack(orderID string) ([]domain.OrderTrackEntry, error) {
	var track []domain.OrderTrackEntry
	err := readJSONArray(s.orderPath(orderID), &track)
	return track, err
}

// AppendOrderTrack appends one entry, preserving all prior entries.
func (s *Store) AppendOrderTrack(orderID string, e domain.OrderTrackEntry) error {
	track, err := s.ReadOrderTrack(orderID)
	if err != nil {
		return err
	}
	return writeJSONArray(s.orderPath(orderID), append(track, e))
}

// ReadTargetTrack returns the target journal for an entry order.
func (s *Store) ReadTargetTrack(token, entryOrderID string) ([]domain.TargetTrackEntry, error) {
	var track []domain.TargetTrackEntry
	err := readJSONArray(s.targetPath(token, entryOrderID), &track)
	return track, err
}

// AppendTargetTrack appends one entry to the target journal.
func (s *Store) AppendTargetTrack(token, entryOrderID string, e domain.TargetTrackEntry) error {
	track, err := s.ReadTargetTrack(token, entryOrderID)
	if err != nil {
		return err
	}
	return writeJSONArray(s.targetPath(token, entryOrderID), append(track, e))
}

// LoadTimeExit returns the tracked time-exit state, or nil when none exists.
func (s *Store) LoadTimeExit(token, entryOrderID string) (*domain.TimeExitState, error) {
	data, err := os.ReadFile(s.timeExitPath(token, entryOrderID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st domain.TimeExitState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse time-exit state: %w", err)
	}
	return &st, nil
}

// SaveTimeExit overwrites the tracked state for the entry.
func (s *Store) SaveTimeExit(st *domain.TimeExitState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(s.timeExitPath(st.Token, st.EntryOrderID), data, 0o644)
}

// DeleteTimeExit removes the tracked state. Deleting absent state is fine.
func (s *Store) DeleteTimeExit(token, entryOrderID string) error {
	err := os.Remove(s.timeExitPath(token, entryOrderID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// DeleteTimeExitsForToken removes every tracked entry for a token.
func (s *Store) DeleteTimeExitsForToken(token string) error {
	entries, err := os.ReadDir(s.timeExitDir)
	if err != nil {
		return err
	}
	prefix := sanitize(token) + "_"
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.timeExitDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) orderPath(orderID string) string {
	return filepath.Join(s.orderDir, sanitize(orderID)+".json")
}

func (s *Store) targetPath(token, entryOrderID string) string {
	return filepath.Join(s.targetDir, sanitize(token)+"_"+sanitize(entryOrderID)+".json")
}

func (s *Store) timeExitPath(token, entryOrderID string) string {
	return filepath.Join(s.timeExitDir, sanitize(token)+"_"+sanitize(entryOrderID)+".json")
}

// sanitize keeps journal keys filesystem-safe. Broker order ids and tokens
// are alphanumeric in practice; this guards against surprises.
func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '+'
		}
	}, key)
}

func readJSONArray(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse journal %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSONArray(path string, entries any) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
