// Package ledger implements tenant balances and executor payouts on top of
// a Book, normally a state.Tx so every mutation is staged until commit.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOverflow          = errors.New("amount overflows uint256")
	ErrInvalidAmount     = errors.New("amount must be non-negative")
)

// Book is the storage a ledger operates on.
type Book interface {
	Balance(id common.Address) (*big.Int, error)
	SetBalance(id common.Address, v *big.Int) error
	Payout(addr common.Address) (*big.Int, error)
	SetPayout(addr common.Address, v *big.Int) error
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrOverflow
	}
	return nil
}

// add returns a+b, or ErrOverflow if the sum does not fit in 256 bits.
func add(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if _, overflow := uint256.FromBig(sum); overflow {
		return nil, ErrOverflow
	}
	return sum, nil
}

// Balance returns the tenant's balance; unknown tenants have zero.
func Balance(b Book, id common.Address) (*big.Int, error) {
	return b.Balance(id)
}

// Credit adds amount to id's balance. Anyone may credit anyone.
func Credit(b Book, id common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	bal, err := b.Balance(id)
	if err != nil {
		return err
	}
	next, err := add(bal, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", id.Hex(), err)
	}
	return b.SetBalance(id, next)
}

// Debit removes amount from id's balance. The balance is left untouched when
// it does not cover amount.
func Debit(b Book, id common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	bal, err := b.Balance(id)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s, need %s", ErrInsufficientFunds, bal, amount)
	}
	return b.SetBalance(id, bal.Sub(bal, amount))
}

// Disburse records amount as paid out of the tank to recipient.
func Disburse(b Book, recipient common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	paid, err := b.Payout(recipient)
	if err != nil {
		return err
	}
	next, err := add(paid, amount)
	if err != nil {
		return fmt.Errorf("payout %s: %w", recipient.Hex(), err)
	}
	return b.SetPayout(recipient, next)
}

// Withdraw moves amount from id's balance out to recipient.
// Authorization is the caller's job.
func Withdraw(b Book, id, recipient common.Address, amount *big.Int) error {
	if err := Debit(b, id, amount); err != nil {
		return err
	}
	return Disburse(b, recipient, amount)
}
