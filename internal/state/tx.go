package state

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

var ErrTxDone = errors.New("transaction already committed or discarded")

// Tx is an arena of pending mutations over a Store. Reads see the arena's own
// writes; nothing reaches the store until Commit. A Tx is not safe for
// concurrent use.
type Tx struct {
	ctx      context.Context
	store    Store
	seen     map[Key]*big.Int // value as first read from the store
	staged   map[Key]*big.Int
	settings *Settings
	done     bool
}

// Begin opens an arena over store. ctx bounds every store read and the commit.
func Begin(ctx context.Context, store Store) *Tx {
	return &Tx{
		ctx:    ctx,
		store:  store,
		seen:   make(map[Key]*big.Int),
		staged: make(map[Key]*big.Int),
	}
}

func (tx *Tx) get(key Key) (*big.Int, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if v, ok := tx.staged[key]; ok {
		return new(big.Int).Set(v), nil
	}
	if v, ok := tx.seen[key]; ok {
		return new(big.Int).Set(v), nil
	}
	v, err := tx.store.Get(tx.ctx, key)
	if err != nil {
		return nil, err
	}
	v = orZero(v)
	tx.seen[key] = v
	return new(big.Int).Set(v), nil
}

func (tx *Tx) set(key Key, v *big.Int) error {
	if tx.done {
		return ErrTxDone
	}
	if _, ok := tx.seen[key]; !ok {
		// Record the pre-image so Commit can detect concurrent writers.
		if _, err := tx.get(key); err != nil {
			return err
		}
	}
	tx.staged[key] = new(big.Int).Set(orZero(v))
	return nil
}

func (tx *Tx) Balance(id common.Address) (*big.Int, error) { return tx.get(Key{KindBalance, id}) }
func (tx *Tx) SetBalance(id common.Address, v *big.Int) error {
	return tx.set(Key{KindBalance, id}, v)
}

func (tx *Tx) Payout(addr common.Address) (*big.Int, error) { return tx.get(Key{KindPayout, addr}) }
func (tx *Tx) SetPayout(addr common.Address, v *big.Int) error {
	return tx.set(Key{KindPayout, addr}, v)
}

func (tx *Tx) Nonce(sender common.Address) (*big.Int, error) { return tx.get(Key{KindNonce, sender}) }
func (tx *Tx) SetNonce(sender common.Address, v *big.Int) error {
	return tx.set(Key{KindNonce, sender}, v)
}

// Settings returns the staged settings, or the stored ones.
func (tx *Tx) Settings() (Settings, error) {
	if tx.done {
		return Settings{}, ErrTxDone
	}
	if tx.settings != nil {
		return *tx.settings, nil
	}
	s, _, err := tx.store.Settings(tx.ctx)
	return s, err
}

func (tx *Tx) SetSettings(s Settings) error {
	if tx.done {
		return ErrTxDone
	}
	tx.settings = &s
	return nil
}

// Changeset returns the staged writes in a deterministic order. Writes that
// restore the value first read are dropped.
func (tx *Tx) Changeset() *Changeset {
	cs := &Changeset{Settings: tx.settings}
	for key, v := range tx.staged {
		old := tx.seen[key]
		if Same(old, v) {
			continue
		}
		cs.Writes = append(cs.Writes, Write{Key: key, Old: new(big.Int).Set(old), New: new(big.Int).Set(v)})
	}
	sort.Slice(cs.Writes, func(i, j int) bool {
		a, b := cs.Writes[i].Key, cs.Writes[j].Key
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return bytes.Compare(a.Addr[:], b.Addr[:]) < 0
	})
	return cs
}

// Commit applies every staged mutation atomically, or none of them.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	cs := tx.Changeset()
	if cs.Empty() {
		return nil
	}
	if err := tx.ctx.Err(); err != nil {
		return err
	}
	return tx.store.Commit(tx.ctx, cs)
}

// Discard drops every staged mutation. Safe to call after Commit.
func (tx *Tx) Discard() {
	tx.done = true
	tx.staged = nil
	tx.settings = nil
}
