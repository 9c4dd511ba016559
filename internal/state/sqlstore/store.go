// Package sqlstore persists tank state in SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-gastank/internal/state"

	_ "modernc.org/sqlite"
)

// DB is a SQLite database shared by any number of instances.
type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// Instance returns the store for one tank instance.
func (d *DB) Instance(addr common.Address) *Store {
	return &Store{db: d.db, instance: addr.Hex()}
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS tenant_balances (
			instance TEXT NOT NULL,
			account TEXT NOT NULL,
			amount TEXT NOT NULL,
			PRIMARY KEY(instance, account)
		)`,
		`CREATE TABLE IF NOT EXISTS payouts (
			instance TEXT NOT NULL,
			account TEXT NOT NULL,
			amount TEXT NOT NULL,
			PRIMARY KEY(instance, account)
		)`,
		`CREATE TABLE IF NOT EXISTS sender_nonces (
			instance TEXT NOT NULL,
			account TEXT NOT NULL,
			amount TEXT NOT NULL,
			PRIMARY KEY(instance, account)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			instance TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			trusted_signer TEXT NOT NULL,
			base_cost TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func table(k state.Kind) (string, error) {
	switch k {
	case state.KindBalance:
		return "tenant_balances", nil
	case state.KindPayout:
		return "payouts", nil
	case state.KindNonce:
		return "sender_nonces", nil
	default:
		return "", fmt.Errorf("unknown state kind %d", k)
	}
}

// Store is a state.Store for one instance.
type Store struct {
	db       *sql.DB
	instance string
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Get(ctx context.Context, key state.Key) (*big.Int, error) {
	return s.get(ctx, s.db, key)
}

func (s *Store) get(ctx context.Context, q querier, key state.Key) (*big.Int, error) {
	tbl, err := table(key.Kind)
	if err != nil {
		return nil, err
	}
	var raw string
	err = q.QueryRowContext(ctx,
		`SELECT amount FROM `+tbl+` WHERE instance = ? AND account = ?`,
		s.instance, key.Addr.Hex(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", tbl, err)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt %s amount for %s: %q", tbl, key.Addr.Hex(), raw)
	}
	return v, nil
}

func (s *Store) Settings(ctx context.Context) (state.Settings, bool, error) {
	var owner, signer, baseCost string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner, trusted_signer, base_cost FROM settings WHERE instance = ?`,
		s.instance,
	).Scan(&owner, &signer, &baseCost)
	if errors.Is(err, sql.ErrNoRows) {
		return state.Settings{}, false, nil
	}
	if err != nil {
		return state.Settings{}, false, fmt.Errorf("select settings: %w", err)
	}
	bc, err := strconv.ParseUint(baseCost, 10, 64)
	if err != nil {
		return state.Settings{}, false, fmt.Errorf("corrupt base_cost %q: %w", baseCost, err)
	}
	return state.Settings{
		Owner:         common.HexToAddress(owner),
		TrustedSigner: common.HexToAddress(signer),
		BaseCost:      bc,
	}, true, nil
}

// Commit applies the changeset in one SQL transaction after re-checking
// every pre-image inside it.
func (s *Store) Commit(ctx context.Context, cs *state.Changeset) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, w := range cs.Writes {
		cur, err := s.get(ctx, tx, w.Key)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if !state.Same(cur, w.Old) {
			_ = tx.Rollback()
			return fmt.Errorf("%w: %s %s", state.ErrConflict, w.Key.Kind, w.Key.Addr.Hex())
		}
		tbl, _ := table(w.Key.Kind)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+tbl+` (instance, account, amount) VALUES (?, ?, ?)
			ON CONFLICT(instance, account) DO UPDATE SET amount = excluded.amount`,
			s.instance, w.Key.Addr.Hex(), w.New.String(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert %s: %w", tbl, err)
		}
	}
	if cs.Settings != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (instance, owner, trusted_signer, base_cost, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(instance) DO UPDATE SET
				owner = excluded.owner,
				trusted_signer = excluded.trusted_signer,
				base_cost = excluded.base_cost,
				updated_at = excluded.updated_at`,
			s.instance,
			cs.Settings.Owner.Hex(),
			cs.Settings.TrustedSigner.Hex(),
			strconv.FormatUint(cs.Settings.BaseCost, 10),
			time.Now().Unix(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert settings: %w", err)
		}
	}
	return tx.Commit()
}
