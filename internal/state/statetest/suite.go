// Package statetest runs the same behavioural checks against every
// state.Store implementation.
package statetest

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-gastank/internal/state"
)

var (
	alice = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
)

// Run exercises a fresh store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) state.Store) {
	t.Run("EmptyReadsZero", func(t *testing.T) { testEmptyReadsZero(t, newStore(t)) })
	t.Run("CommitApplies", func(t *testing.T) { testCommitApplies(t, newStore(t)) })
	t.Run("DiscardAppliesNothing", func(t *testing.T) { testDiscardAppliesNothing(t, newStore(t)) })
	t.Run("ConflictRejected", func(t *testing.T) { testConflictRejected(t, newStore(t)) })
	t.Run("SettingsRoundTrip", func(t *testing.T) { testSettingsRoundTrip(t, newStore(t)) })
	t.Run("KindsAreSeparate", func(t *testing.T) { testKindsAreSeparate(t, newStore(t)) })
	t.Run("CommitOnce", func(t *testing.T) { testCommitOnce(t, newStore(t)) })
}

func get(t *testing.T, s state.Store, kind state.Kind, addr common.Address) *big.Int {
	t.Helper()
	v, err := s.Get(context.Background(), state.Key{Kind: kind, Addr: addr})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return v
}

func testEmptyReadsZero(t *testing.T, s state.Store) {
	if v := get(t, s, state.KindBalance, alice); v.Sign() != 0 {
		t.Errorf("balance: got %s want 0", v)
	}
	if _, ok, err := s.Settings(context.Background()); err != nil || ok {
		t.Errorf("Settings: ok=%v err=%v, want ok=false", ok, err)
	}
}

func testCommitApplies(t *testing.T, s state.Store) {
	tx := state.Begin(context.Background(), s)
	if err := tx.SetBalance(alice, big.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	if err := tx.SetNonce(bob, big.NewInt(1)); err != nil {
		t.Fatal(err)
	}
	got, _ := tx.Balance(alice)
	if got.Int64() != 100 {
		t.Errorf("tx should read its own write: got %s", got)
	}
	if v := get(t, s, state.KindBalance, alice); v.Sign() != 0 {
		t.Errorf("store must not see staged write before commit: got %s", v)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if v := get(t, s, state.KindBalance, alice); v.Int64() != 100 {
		t.Errorf("balance after commit: got %s want 100", v)
	}
	if v := get(t, s, state.KindNonce, bob); v.Int64() != 1 {
		t.Errorf("nonce after commit: got %s want 1", v)
	}
}

func testDiscardAppliesNothing(t *testing.T, s state.Store) {
	tx := state.Begin(context.Background(), s)
	_ = tx.SetBalance(alice, big.NewInt(5))
	_ = tx.SetSettings(state.Settings{BaseCost: 9})
	tx.Discard()
	if v := get(t, s, state.KindBalance, alice); v.Sign() != 0 {
		t.Errorf("balance after discard: got %s want 0", v)
	}
	if _, ok, _ := s.Settings(context.Background()); ok {
		t.Error("settings must not be written after discard")
	}
	if err := tx.Commit(); !errors.Is(err, state.ErrTxDone) {
		t.Errorf("Commit after Discard: got %v want ErrTxDone", err)
	}
}

func testConflictRejected(t *testing.T, s state.Store) {
	ctx := context.Background()
	seed := state.Begin(ctx, s)
	_ = seed.SetBalance(alice, big.NewInt(10))
	if err := seed.Commit(); err != nil {
		t.Fatal(err)
	}

	tx1 := state.Begin(ctx, s)
	tx2 := state.Begin(ctx, s)
	b1, _ := tx1.Balance(alice)
	b2, _ := tx2.Balance(alice)
	_ = tx1.SetBalance(alice, new(big.Int).Sub(b1, big.NewInt(7)))
	_ = tx2.SetBalance(alice, new(big.Int).Sub(b2, big.NewInt(7)))
	_ = tx2.SetPayout(bob, big.NewInt(7))

	if err := tx1.Commit(); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if err := tx2.Commit(); !errors.Is(err, state.ErrConflict) {
		t.Fatalf("second Commit: got %v want ErrConflict", err)
	}
	if v := get(t, s, state.KindBalance, alice); v.Int64() != 3 {
		t.Errorf("balance: got %s want 3", v)
	}
	if v := get(t, s, state.KindPayout, bob); v.Sign() != 0 {
		t.Errorf("conflicting changeset must apply nothing: payout %s", v)
	}
}

func testSettingsRoundTrip(t *testing.T, s state.Store) {
	want := state.Settings{Owner: alice, TrustedSigner: bob, BaseCost: 53000}
	tx := state.Begin(context.Background(), s)
	_ = tx.SetSettings(want)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, ok, err := s.Settings(context.Background())
	if err != nil || !ok {
		t.Fatalf("Settings: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("Settings: got %+v want %+v", got, want)
	}
}

func testKindsAreSeparate(t *testing.T, s state.Store) {
	tx := state.Begin(context.Background(), s)
	_ = tx.SetBalance(alice, big.NewInt(1))
	_ = tx.SetPayout(alice, big.NewInt(2))
	_ = tx.SetNonce(alice, big.NewInt(3))
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	for kind, want := range map[state.Kind]int64{state.KindBalance: 1, state.KindPayout: 2, state.KindNonce: 3} {
		if v := get(t, s, kind, alice); v.Int64() != want {
			t.Errorf("%s: got %s want %d", kind, v, want)
		}
	}
}

func testCommitOnce(t *testing.T, s state.Store) {
	tx := state.Begin(context.Background(), s)
	_ = tx.SetBalance(alice, big.NewInt(1))
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); !errors.Is(err, state.ErrTxDone) {
		t.Errorf("second Commit: got %v want ErrTxDone", err)
	}
	if _, err := tx.Balance(alice); !errors.Is(err, state.ErrTxDone) {
		t.Errorf("read after Commit: got %v want ErrTxDone", err)
	}
}
