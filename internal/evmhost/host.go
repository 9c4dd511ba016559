// Package evmhost runs forwarded calls in an in-process EVM. Each execution
// is journaled so the caller can roll it back if settlement fails.
package evmhost

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	"github.com/ethereum/go-ethereum/triedb"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/forward"
)

// Host is a forward.Host backed by a go-ethereum StateDB. Only one execution
// may be pending at a time; Execute blocks until the previous one is
// committed or reverted.
type Host struct {
	mu    sync.Mutex
	state *state.StateDB
	log   *zap.Logger
}

func New(log *zap.Logger) (*Host, error) {
	db := state.NewDatabase(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil), nil)
	sdb, err := state.New(types.EmptyRootHash, db)
	if err != nil {
		return nil, err
	}
	return &Host{state: sdb, log: log}, nil
}

// Deploy installs runtime bytecode at addr.
func (h *Host) Deploy(addr common.Address, code []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.SetCode(addr, code)
	h.state.Finalise(true)
	h.log.Info("contract installed", zap.String("address", addr.Hex()), zap.Int("code_size", len(code)))
}

// Storage reads one storage slot.
func (h *Host) Storage(addr common.Address, slot common.Hash) common.Hash {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.GetState(addr, slot)
}

// Execute runs call with call.GasLimit as a strict bound. The returned
// execution holds the host until Commit or Revert.
func (h *Host) Execute(ctx context.Context, call forward.Call) (forward.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	ex := &execution{host: h, snapshot: h.state.Snapshot()}

	// runtime treats a zero gas limit as unbounded.
	if call.GasLimit == 0 {
		return ex, nil
	}

	cfg := &runtime.Config{
		Origin:   call.From,
		GasLimit: call.GasLimit,
		Value:    new(big.Int),
		State:    h.state,
	}
	ret, leftover, err := runtime.Call(call.To, call.Data, cfg)
	ex.outcome = forward.Outcome{
		GasUsed:    call.GasLimit - leftover,
		Success:    err == nil,
		ReturnData: ret,
	}
	if err != nil {
		h.log.Debug("forwarded call failed",
			zap.String("to", call.To.Hex()),
			zap.Uint64("gas_used", ex.outcome.GasUsed),
			zap.Error(err),
		)
	}
	return ex, nil
}

type execution struct {
	host     *Host
	snapshot int
	outcome  forward.Outcome
	once     sync.Once
}

func (e *execution) Outcome() forward.Outcome { return e.outcome }

func (e *execution) Commit() {
	e.once.Do(func() {
		e.host.state.Finalise(true)
		e.host.mu.Unlock()
	})
}

func (e *execution) Revert() {
	e.once.Do(func() {
		e.host.state.RevertToSnapshot(e.snapshot)
		e.host.mu.Unlock()
	})
}
