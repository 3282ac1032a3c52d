// Package jsonfile wraps the memory adapter with whole-state snapshots
// written to a single JSON file after every mutation. Suitable for demos
// and small single-process deployments where a database is overkill.
package jsonfile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gamifyd/adapters/memory"
	"gamifyd/core"
	"gamifyd/engine"
)

type Store struct {
	*memory.Store

	path string
	// fileMu serializes persist calls so snapshots never interleave
	fileMu sync.Mutex
}

var _ engine.Store = (*Store)(nil)

// New opens (or creates) the snapshot file at path and loads any state it
// already holds.
func New(path string) (*Store, error) {
	s := &Store{Store: memory.New(), path: path}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	if err := s.Store.Restore(b); err != nil {
		return nil, err
	}
	return s, nil
}

// persist writes the snapshot to a temp file and renames it into place, so
// a crash mid-write never leaves a truncated snapshot behind.
func (s *Store) persist() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	b, err := s.Store.Snapshot()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) after(err error) error {
	if err != nil {
		return err
	}
	return s.persist()
}

func (s *Store) InTx(ctx context.Context, companyID string, fn func(tx engine.Tx) error) error {
	return s.after(s.Store.InTx(ctx, companyID, fn))
}

func (s *Store) SaveCompany(ctx context.Context, c core.Company) error {
	return s.after(s.Store.SaveCompany(ctx, c))
}

func (s *Store) SaveUser(ctx context.Context, u core.User) error {
	return s.after(s.Store.SaveUser(ctx, u))
}

func (s *Store) SaveTeam(ctx context.Context, t core.Team) error {
	return s.after(s.Store.SaveTeam(ctx, t))
}

func (s *Store) SaveMetric(ctx context.Context, m core.Metric) error {
	return s.after(s.Store.SaveMetric(ctx, m))
}

func (s *Store) SaveObjective(ctx context.Context, o core.Objective) error {
	return s.after(s.Store.SaveObjective(ctx, o))
}

func (s *Store) SaveTracker(ctx context.Context, t core.ObjectiveTracker) error {
	return s.after(s.Store.SaveTracker(ctx, t))
}

func (s *Store) SaveBadge(ctx context.Context, b core.Badge) error {
	return s.after(s.Store.SaveBadge(ctx, b))
}

func (s *Store) SaveCondition(ctx context.Context, c core.Condition) error {
	return s.after(s.Store.SaveCondition(ctx, c))
}

func (s *Store) SaveReward(ctx context.Context, r core.Reward) error {
	return s.after(s.Store.SaveReward(ctx, r))
}
