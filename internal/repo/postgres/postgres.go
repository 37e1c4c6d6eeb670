package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/repo"
)

var _ repo.Repository = (*Store)(nil)

// Schema holds one JSONB document per group, so every write replaces the
// group atomically just like the file backend.
const Schema = `
CREATE TABLE IF NOT EXISTS service_groups (
  group_id   TEXT PRIMARY KEY,
  records    JSONB NOT NULL DEFAULT '[]'::jsonb,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) ListGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT group_id FROM service_groups ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) FetchAll(ctx context.Context, group string) ([]domain.Record, error) {
	var recs []domain.Record
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		recs, err = s.load(ctx, tx, group, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) Add(ctx context.Context, group string, rec domain.Record) error {
	return s.modify(ctx, group, func(recs []domain.Record) ([]domain.Record, error) {
		return append(recs, rec), nil
	})
}

func (s *Store) Remove(ctx context.Context, group, name string) error {
	return s.modify(ctx, group, func(recs []domain.Record) ([]domain.Record, error) {
		return repo.RemoveByName(recs, name), nil
	})
}

func (s *Store) BulkReplace(ctx context.Context, group string, recs []domain.Record) error {
	return s.modify(ctx, group, func([]domain.Record) ([]domain.Record, error) {
		return recs, nil
	})
}

func (s *Store) UpdateOne(ctx context.Context, group string, rec domain.Record) error {
	return s.modify(ctx, group, func(recs []domain.Record) ([]domain.Record, error) {
		return repo.ReplaceByName(recs, rec)
	})
}

// modify locks the group row for the length of one transaction.
func (s *Store) modify(ctx context.Context, group string, fn func([]domain.Record) ([]domain.Record, error)) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		recs, err := s.load(ctx, tx, group, true)
		if err != nil {
			return err
		}
		out, err := fn(recs)
		if err != nil {
			return err
		}
		if out == nil {
			out = []domain.Record{}
		}
		b, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode group %s: %w", group, err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE service_groups SET records = $2::jsonb, updated_at = now() WHERE group_id = $1`,
			group, string(b))
		if err != nil {
			return fmt.Errorf("write group %s: %w", group, err)
		}
		return nil
	})
}

// load makes sure the group row exists and reads it, optionally taking a
// row lock.
func (s *Store) load(ctx context.Context, tx pgx.Tx, group string, forUpdate bool) ([]domain.Record, error) {
	if err := repo.ValidateGroupID(group); err != nil {
		return nil, err
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO service_groups (group_id) VALUES ($1) ON CONFLICT (group_id) DO NOTHING`, group)
	if err != nil {
		return nil, fmt.Errorf("init group %s: %w", group, err)
	}
	if tag.RowsAffected() == 1 {
		s.log.Info("group_initialized", zap.String("group", group))
	}

	q := `SELECT records::text FROM service_groups WHERE group_id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var raw string
	if err := tx.QueryRow(ctx, q, group).Scan(&raw); err != nil {
		return nil, fmt.Errorf("read group %s: %w", group, err)
	}
	recs := []domain.Record{}
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, fmt.Errorf("decode group %s: %w", group, err)
	}
	return recs, nil
}
