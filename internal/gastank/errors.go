package gastank

import (
	"errors"

	"github.com/0gfoundation/0g-gastank/internal/authz"
	"github.com/0gfoundation/0g-gastank/internal/ledger"
	"github.com/0gfoundation/0g-gastank/internal/nonce"
	"github.com/0gfoundation/0g-gastank/internal/state"
)

// Every failure leaves the tank's state exactly as it was before the call.
var (
	ErrUnauthorized      = errors.New("caller is not the owner")
	ErrWrongSignature    = authz.ErrWrongSignature
	ErrNonceMismatch     = nonce.ErrNonceMismatch
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	ErrOverflow          = ledger.ErrOverflow
	ErrInvalidAmount     = ledger.ErrInvalidAmount
	ErrConflict          = state.ErrConflict

	ErrInvalidOwner    = errors.New("new owner is the zero address")
	ErrInvalidSigner   = errors.New("trusted signer is the zero address")
	ErrCallFailed      = errors.New("forwarded call failed")
	ErrUnknownInstance = errors.New("unknown tank instance")
	ErrDuplicate       = errors.New("tank instance already registered")
)
