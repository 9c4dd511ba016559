// Package nonce tracks per-sender replay counters.
package nonce

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNonceMismatch = errors.New("nonce mismatch")

// Counters is the storage the registry operates on.
type Counters interface {
	Nonce(sender common.Address) (*big.Int, error)
	SetNonce(sender common.Address, v *big.Int) error
}

// Expected returns the only nonce sender may use next. Unseen senders start at 0.
func Expected(c Counters, sender common.Address) (*big.Int, error) {
	return c.Nonce(sender)
}

// Consume accepts supplied only if it equals the expected nonce, then
// advances the counter by one.
func Consume(c Counters, sender common.Address, supplied *big.Int) error {
	want, err := c.Nonce(sender)
	if err != nil {
		return err
	}
	if supplied == nil || supplied.Cmp(want) != 0 {
		return fmt.Errorf("%w: sender %s expected %s, got %v", ErrNonceMismatch, sender.Hex(), want, supplied)
	}
	return c.SetNonce(sender, want.Add(want, big.NewInt(1)))
}
