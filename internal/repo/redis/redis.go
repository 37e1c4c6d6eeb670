// Package redis keeps each group as a JSON array under one key, with the
// known group ids in a set.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/repo"
)

var _ repo.Repository = (*Store)(nil)

const (
	keyPrefix   = "svcmon:group:"
	groupSetKey = "svcmon:groups"
	maxTxRetry  = 10
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

type Store struct {
	rdb *goredis.Client
	log *zap.Logger
}

// New connects and pings the server.
func New(ctx context.Context, opts Options, log *zap.Logger) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctxPing).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(rdb, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *goredis.Client, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{rdb: rdb, log: log}
}

func (s *Store) Close() error { return s.rdb.Close() }

func groupKey(group string) string { return keyPrefix + group }

func (s *Store) ListGroupIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, groupSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) FetchAll(ctx context.Context, group string) ([]domain.Record, error) {
	if err := repo.ValidateGroupID(group); err != nil {
		return nil, err
	}
	raw, err := s.rdb.Get(ctx, groupKey(group)).Bytes()
	if errors.Is(err, goredis.Nil) {
		if err := s.write(ctx, s.rdb, group, nil); err != nil {
			return nil, err
		}
		s.log.Info("group_initialized", zap.String("group", group))
		return []domain.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", group, err)
	}
	return decode(group, raw)
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
	if err := repo.ValidateGroupID(group); err != nil {
		return err
	}
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		return s.write(ctx, p, group, recs)
	})
	if err != nil {
		return fmt.Errorf("replace group %s: %w", group, err)
	}
	return nil
}

func (s *Store) UpdateOne(ctx context.Context, group string, rec domain.Record) error {
	return s.modify(ctx, group, func(recs []domain.Record) ([]domain.Record, error) {
		return repo.ReplaceByName(recs, rec)
	})
}

// modify runs an optimistic read-modify-write on the group key, retrying
// when another writer touched it between WATCH and EXEC.
func (s *Store) modify(ctx context.Context, group string, fn func([]domain.Record) ([]domain.Record, error)) error {
	if err := repo.ValidateGroupID(group); err != nil {
		return err
	}
	key := groupKey(group)
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		recs, err := decode(group, raw)
		if err != nil {
			return err
		}
		out, err := fn(recs)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			return s.write(ctx, p, group, out)
		})
		return err
	}

	for i := 0; i < maxTxRetry; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			s.log.Debug("redis_tx_retry", zap.String("group", group), zap.Int("attempt", i+1))
			continue
		}
		return err
	}
	return fmt.Errorf("group %s: too many concurrent writers", group)
}

func (s *Store) write(ctx context.Context, c goredis.Cmdable, group string, recs []domain.Record) error {
	if recs == nil {
		recs = []domain.Record{}
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode group %s: %w", group, err)
	}
	if err := c.Set(ctx, groupKey(group), b, 0).Err(); err != nil {
		return err
	}
	return c.SAdd(ctx, groupSetKey, group).Err()
}

func decode(group string, raw []byte) ([]domain.Record, error) {
	recs := []domain.Record{}
	if len(raw) == 0 {
		return recs, nil
	}
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("decode group %s: %w", group, err)
	}
	return recs, nil
}
