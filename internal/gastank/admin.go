package gastank

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/ledger"
	"github.com/0gfoundation/0g-gastank/internal/state"
)

// ownerTx opens an arena and checks caller against the current owner.
// The caller must hold t.mu.
func (t *Tank) ownerTx(ctx context.Context, caller common.Address) (*state.Tx, state.Settings, error) {
	tx := state.Begin(ctx, t.store)
	s, err := tx.Settings()
	if err != nil {
		tx.Discard()
		return nil, state.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if caller != s.Owner {
		tx.Discard()
		return nil, state.Settings{}, ErrUnauthorized
	}
	return tx, s, nil
}

func (t *Tank) commitAdmin(tx *state.Tx, action string, fields ...zap.Field) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", action, err)
	}
	if t.metrics != nil {
		t.metrics.AdminChanges.WithLabelValues(t.address.Hex(), action).Inc()
	}
	t.log.Info("admin: "+action, fields...)
	return nil
}

// Withdraw moves amount out of dapp's balance to recipient. Owner only; a
// non-owner gets ErrUnauthorized regardless of the balance.
func (t *Tank) Withdraw(ctx context.Context, caller, dapp, recipient common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, _, err := t.ownerTx(ctx, caller)
	if err != nil {
		return err
	}
	defer tx.Discard()
	if err := ledger.Withdraw(tx, dapp, recipient, amount); err != nil {
		return err
	}
	return t.commitAdmin(tx, "withdraw",
		zap.String("dapp", dapp.Hex()),
		zap.String("recipient", recipient.Hex()),
		zap.String("amount", amount.String()),
	)
}

// SetBaseCost replaces the fixed per-operation gas overhead. Takes effect
// for the next relay.
func (t *Tank) SetBaseCost(ctx context.Context, caller common.Address, baseCost uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, s, err := t.ownerTx(ctx, caller)
	if err != nil {
		return err
	}
	defer tx.Discard()
	s.BaseCost = baseCost
	if err := tx.SetSettings(s); err != nil {
		return err
	}
	return t.commitAdmin(tx, "set_base_cost", zap.Uint64("base_cost", baseCost))
}

// SetTrustedSigner rotates the trusted signer. Operations signed by the
// previous signer stop verifying immediately.
func (t *Tank) SetTrustedSigner(ctx context.Context, caller, signer common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, s, err := t.ownerTx(ctx, caller)
	if err != nil {
		return err
	}
	defer tx.Discard()
	if signer == (common.Address{}) {
		return ErrInvalidSigner
	}
	s.TrustedSigner = signer
	if err := tx.SetSettings(s); err != nil {
		return err
	}
	return t.commitAdmin(tx, "set_trusted_signer", zap.String("trusted_signer", signer.Hex()))
}

// TransferOwnership hands every owner-only operation to newOwner.
func (t *Tank) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, s, err := t.ownerTx(ctx, caller)
	if err != nil {
		return err
	}
	defer tx.Discard()
	if newOwner == (common.Address{}) {
		return ErrInvalidOwner
	}
	previous := s.Owner
	s.Owner = newOwner
	if err := tx.SetSettings(s); err != nil {
		return err
	}
	return t.commitAdmin(tx, "transfer_ownership",
		zap.String("previous_owner", previous.Hex()),
		zap.String("new_owner", newOwner.Hex()),
	)
}
