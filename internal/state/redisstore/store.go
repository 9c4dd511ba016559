// Package redisstore persists tank state in Redis hashes and commits
// changesets with WATCH/MULTI.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-gastank/internal/state"
)

// Redis key templates
const (
	tableKeyFmt    = "gastank:%s:%s"       // %s = instance, kind
	settingsKeyFmt = "gastank:%s:settings" // %s = instance
)

// Store is a state.Store for one instance. Amounts are stored as decimal
// strings in one hash per table, keyed by checksummed address.
type Store struct {
	rdb      redis.UniversalClient
	instance common.Address
}

func New(rdb redis.UniversalClient, instance common.Address) *Store {
	return &Store{rdb: rdb, instance: instance}
}

func (s *Store) tableKey(k state.Kind) string {
	return fmt.Sprintf(tableKeyFmt, s.instance.Hex(), k)
}

func (s *Store) settingsKey() string {
	return fmt.Sprintf(settingsKeyFmt, s.instance.Hex())
}

func (s *Store) Get(ctx context.Context, key state.Key) (*big.Int, error) {
	return s.get(ctx, s.rdb, key)
}

type hashReader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func (s *Store) get(ctx context.Context, c hashReader, key state.Key) (*big.Int, error) {
	raw, err := c.HGet(ctx, s.tableKey(key.Kind), key.Addr.Hex()).Result()
	if errors.Is(err, redis.Nil) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET %s: %w", key.Kind, err)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt %s value for %s: %q", key.Kind, key.Addr.Hex(), raw)
	}
	return v, nil
}

func (s *Store) Settings(ctx context.Context) (state.Settings, bool, error) {
	raw, err := s.rdb.Get(ctx, s.settingsKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return state.Settings{}, false, nil
	}
	if err != nil {
		return state.Settings{}, false, fmt.Errorf("redis GET settings: %w", err)
	}
	var out state.Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return state.Settings{}, false, fmt.Errorf("decode settings: %w", err)
	}
	return out, true, nil
}

// Commit watches every touched table, re-checks each pre-image and applies
// the writes in one MULTI/EXEC. A concurrent writer surfaces as
// state.ErrConflict.
func (s *Store) Commit(ctx context.Context, cs *state.Changeset) error {
	var settings []byte
	if cs.Settings != nil {
		b, err := json.Marshal(cs.Settings)
		if err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		settings = b
	}

	watched := make([]string, 0, 3)
	seen := make(map[state.Kind]bool)
	for _, w := range cs.Writes {
		if !seen[w.Key.Kind] {
			seen[w.Key.Kind] = true
			watched = append(watched, s.tableKey(w.Key.Kind))
		}
	}

	txf := func(tx *redis.Tx) error {
		for _, w := range cs.Writes {
			cur, err := s.get(ctx, tx, w.Key)
			if err != nil {
				return err
			}
			if !state.Same(cur, w.Old) {
				return fmt.Errorf("%w: %s %s", state.ErrConflict, w.Key.Kind, w.Key.Addr.Hex())
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range cs.Writes {
				pipe.HSet(ctx, s.tableKey(w.Key.Kind), w.Key.Addr.Hex(), w.New.String())
			}
			if settings != nil {
				pipe.Set(ctx, s.settingsKey(), settings, 0)
			}
			return nil
		})
		return err
	}

	err := s.rdb.Watch(ctx, txf, watched...)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: watched keys modified", state.ErrConflict)
	}
	return err
}
