// Package authz decides whether a relay operation carries a valid
// authorization from the tank's trusted signer.
package authz

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-gastank/internal/auth"
	"github.com/0gfoundation/0g-gastank/internal/relayop"
)

// ErrWrongSignature matches the on-chain revert reason of the same name.
var ErrWrongSignature = errors.New("wrong signature")

// Result is the outcome of an authorization check.
// Signer is the zero address when the signature could not be recovered.
type Result struct {
	Digest     common.Hash
	Signer     common.Address
	Authorized bool
}

// Err returns ErrWrongSignature for an unauthorized result, nil otherwise.
func (r Result) Err() error {
	if r.Authorized {
		return nil
	}
	if r.Signer == (common.Address{}) {
		return ErrWrongSignature
	}
	return fmt.Errorf("%w: signed by %s", ErrWrongSignature, r.Signer.Hex())
}

// Recover returns the address that produced an EIP-191 signature over digest.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	return auth.Recover(digest[:], sig)
}

// Authorize checks op's signature against trustedSigner. It never mutates
// anything and never fails: malformed operations and signatures are simply
// not authorized. A zero trusted signer authorizes nothing.
func Authorize(op *relayop.Operation, d relayop.Domain, trustedSigner common.Address) Result {
	digest, err := relayop.Hash(op, d)
	if err != nil {
		return Result{}
	}
	res := Result{Digest: digest}
	signer, err := Recover(digest, op.Signature)
	if err != nil {
		return res
	}
	res.Signer = signer
	res.Authorized = trustedSigner != (common.Address{}) && signer == trustedSigner
	return res
}
