package gastank

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/authz"
	"github.com/0gfoundation/0g-gastank/internal/forward"
	"github.com/0gfoundation/0g-gastank/internal/ledger"
	"github.com/0gfoundation/0g-gastank/internal/nonce"
	"github.com/0gfoundation/0g-gastank/internal/relayop"
	"github.com/0gfoundation/0g-gastank/internal/state"
)

// Payment is (gasUsed + baseCost) * unitPrice.
func Payment(gasUsed, baseCost uint64, unitPrice *big.Int) *big.Int {
	gas := new(big.Int).SetUint64(gasUsed)
	gas.Add(gas, new(big.Int).SetUint64(baseCost))
	return gas.Mul(gas, unitPrice)
}

// HandleRelayOperation authorizes op, consumes its nonce, forwards the call
// with op.CallGasLimit as a strict bound, and charges the sponsoring dapp
// (gasUsed + baseCost) * unitPrice, paid to executor. Either all of that
// happens, including the forwarded call's own side effects, or none of it.
func (t *Tank) HandleRelayOperation(ctx context.Context, executor common.Address, op *relayop.Operation) (_ *relayop.Settlement, err error) {
	ctx, span := tracer.Start(ctx, "gastank.relay")
	span.SetAttributes(
		attribute.String("instance", t.address.Hex()),
		attribute.String("dapp", op.DappIdentifier.Hex()),
		attribute.String("sender", op.Sender.Hex()),
		attribute.String("executor", executor.Hex()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		t.countRelay(err)
	}()

	t.mu.Lock()
	defer t.mu.Unlock()

	tx := state.Begin(ctx, t.store)
	defer tx.Discard()

	settings, err := tx.Settings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	auth := authz.Authorize(op, t.domain, settings.TrustedSigner)
	if err := auth.Err(); err != nil {
		return nil, err
	}
	if err := nonce.Consume(tx, op.Sender, op.Nonce); err != nil {
		return nil, err
	}

	unitPrice, err := t.pricer.UnitPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("unit price: %w", err)
	}

	exec, err := t.host.Execute(ctx, forward.Call{
		From:     t.address,
		To:       op.Target,
		Data:     op.CallData,
		GasLimit: op.CallGasLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("forward call: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			exec.Revert()
		}
	}()

	out := exec.Outcome()
	if !out.Success && t.policy == PolicyReject {
		return nil, fmt.Errorf("%w: target %s used %d gas", ErrCallFailed, op.Target.Hex(), out.GasUsed)
	}

	payment := Payment(out.GasUsed, settings.BaseCost, unitPrice)
	if err := ledger.Debit(tx, op.DappIdentifier, payment); err != nil {
		return nil, err
	}
	if err := ledger.Disburse(tx, executor, payment); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}
	exec.Commit()
	committed = true

	s := relayop.Settlement{
		Digest:         auth.Digest,
		Payment:        payment,
		DappIdentifier: op.DappIdentifier,
		Sender:         op.Sender,
		Instance:       t.address,
		Executor:       executor,
		Target:         op.Target,
		Nonce:          new(big.Int).Set(op.Nonce),
		GasUsed:        out.GasUsed,
		BaseCost:       settings.BaseCost,
		UnitPrice:      unitPrice,
		CallSucceeded:  out.Success,
		SettledAt:      t.now().Unix(),
	}
	if t.metrics != nil {
		t.metrics.GasUsed.WithLabelValues(t.address.Hex()).Observe(float64(out.GasUsed))
		p, _ := new(big.Float).SetInt(payment).Float64()
		t.metrics.PaymentsWei.WithLabelValues(t.address.Hex()).Add(p)
	}
	// Settlement is final at this point; a sink failure is only logged.
	if perr := t.sink.Publish(context.WithoutCancel(ctx), s); perr != nil {
		t.log.Error("publish settlement", zap.String("digest", s.Digest.Hex()), zap.Error(perr))
	}
	return &s, nil
}

func (t *Tank) countRelay(err error) {
	if t.metrics == nil {
		return
	}
	t.metrics.Relays.WithLabelValues(t.address.Hex(), relayResult(err)).Inc()
}

func relayResult(err error) string {
	switch {
	case err == nil:
		return "settled"
	case errors.Is(err, ErrWrongSignature):
		return "wrong_signature"
	case errors.Is(err, ErrNonceMismatch):
		return "nonce_mismatch"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrCallFailed):
		return "call_failed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
