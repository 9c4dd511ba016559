// Package state holds the durable state of a tank instance and the
// transactional arena that stages mutations until a relay or admin
// operation has fully succeeded.
package state

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrConflict is returned by Commit when a value the arena read has changed
// in the store since it was read.
var ErrConflict = errors.New("state changed concurrently")

// Kind selects one of the per-address tables.
type Kind uint8

const (
	KindBalance Kind = iota // tenant balances keyed by dapp identifier
	KindPayout              // cumulative amounts paid out, keyed by recipient
	KindNonce               // sender nonce counters
)

func (k Kind) String() string {
	switch k {
	case KindBalance:
		return "balance"
	case KindPayout:
		return "payout"
	case KindNonce:
		return "nonce"
	default:
		return "unknown"
	}
}

// Key addresses one value in the store.
type Key struct {
	Kind Kind
	Addr common.Address
}

// Settings is the per-instance configuration record.
type Settings struct {
	Owner         common.Address `json:"owner"`
	TrustedSigner common.Address `json:"trusted_signer"`
	BaseCost      uint64         `json:"base_cost"`
}

// Write is one staged value change. Old is the value observed when the arena
// first read the key; the store refuses the whole changeset if any Old no
// longer matches.
type Write struct {
	Key Key
	Old *big.Int
	New *big.Int
}

// Changeset is everything an arena commits in one step.
type Changeset struct {
	Writes   []Write
	Settings *Settings // nil when unchanged
}

// Empty reports whether committing the changeset would be a no-op.
func (c *Changeset) Empty() bool {
	return len(c.Writes) == 0 && c.Settings == nil
}

// Store is the durable state of a single tank instance.
// Absent values read as zero; absent settings read as ok=false.
type Store interface {
	Get(ctx context.Context, key Key) (*big.Int, error)
	Settings(ctx context.Context) (s Settings, ok bool, err error)
	Commit(ctx context.Context, cs *Changeset) error
}

// Same compares two possibly-nil amounts, treating nil as zero.
func Same(a, b *big.Int) bool {
	return orZero(a).Cmp(orZero(b)) == 0
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
