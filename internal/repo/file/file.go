// Package file stores each group as a JSON array in DATA_DIR/<group>.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/repo"
)

var _ repo.Repository = (*Store)(nil)

const ext = ".json"

type Store struct {
	dir string
	log *zap.Logger
	mu  sync.Mutex // guards read-modify-write within this process
}

// New creates dir if needed.
func New(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) path(group string) (string, error) {
	if err := repo.ValidateGroupID(group); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, group+ext), nil
}

func (s *Store) ListGroupIDs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		id := strings.TrimSuffix(name, ext)
		if repo.ValidateGroupID(id) != nil {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) FetchAll(ctx context.Context, group string) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(group)
}

func (s *Store) Add(ctx context.Context, group string, rec domain.Record) error {
	return s.modify(group, func(recs []domain.Record) ([]domain.Record, error) {
		return append(recs, rec), nil
	})
}

func (s *Store) Remove(ctx context.Context, group, name string) error {
	return s.modify(group, func(recs []domain.Record) ([]domain.Record, error) {
		return repo.RemoveByName(recs, name), nil
	})
}

func (s *Store) BulkReplace(ctx context.Context, group string, recs []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(group, recs)
}

func (s *Store) UpdateOne(ctx context.Context, group string, rec domain.Record) error {
	return s.modify(group, func(recs []domain.Record) ([]domain.Record, error) {
		return repo.ReplaceByName(recs, rec)
	})
}

func (s *Store) modify(group string, fn func([]domain.Record) ([]domain.Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(group)
	if err != nil {
		return err
	}
	out, err := fn(recs)
	if err != nil {
		return err
	}
	return s.save(group, out)
}

// load reads the group file, creating it with an empty list when missing.
func (s *Store) load(group string) ([]domain.Record, error) {
	p, err := s.path(group)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("group_initialized", zap.String("group", group), zap.String("path", p))
		if err := s.save(group, nil); err != nil {
			return nil, err
		}
		return []domain.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	var recs []domain.Record
	if len(strings.TrimSpace(string(b))) > 0 {
		if err := json.Unmarshal(b, &recs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
	}
	if recs == nil {
		recs = []domain.Record{}
	}
	return recs, nil
}

// save writes to a temp file in the same directory and renames it over the
// target so readers never see a partial file.
func (s *Store) save(group string, recs []domain.Record) error {
	p, err := s.path(group)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []domain.Record{}
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode group %s: %w", group, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+group+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("rename into %s: %w", p, err)
	}
	return nil
}
