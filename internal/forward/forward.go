// Package forward defines how a tank hands an authorized call to the
// account being called and learns what it cost.
package forward

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Call is one forwarded call. GasLimit is a hard bound: a host never lets the
// callee consume more, and a zero limit executes nothing.
type Call struct {
	From     common.Address
	To       common.Address
	Data     []byte
	GasLimit uint64
}

// Outcome is what the host measured. Success is false when the callee
// reverted or ran out of gas; that is not an error of the host.
type Outcome struct {
	GasUsed    uint64
	Success    bool
	ReturnData []byte
}

// Execution is a finished call whose side effects are still pending. Exactly
// one of Commit or Revert must be called.
type Execution interface {
	Outcome() Outcome
	Commit()
	Revert()
}

// Host executes calls against the callee's environment.
type Host interface {
	Execute(ctx context.Context, call Call) (Execution, error)
}
