package relayop

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Operation is a relayed call submitted by an executor on behalf of a sender.
// Signature is the trusted signer's EIP-191 signature over Hash(op, domain);
// it is not part of the hashed content.
type Operation struct {
	Sender         common.Address `json:"sender"`
	Target         common.Address `json:"target"`
	Nonce          *big.Int       `json:"nonce"`
	CallData       hexutil.Bytes  `json:"call_data"`
	CallGasLimit   uint64         `json:"call_gas_limit"`
	DappIdentifier common.Address `json:"dapp_identifier"`
	Signature      hexutil.Bytes  `json:"signature,omitempty"`
}

// Domain binds an operation hash to one tank instance on one chain.
type Domain struct {
	ChainID  *big.Int
	Instance common.Address
}

var (
	ErrMissingNonce   = errors.New("operation nonce is required")
	ErrNegativeNonce  = errors.New("operation nonce is negative")
	ErrMissingChainID = errors.New("domain chain id is required")
)

// Validate reports structural problems that would make the hash ambiguous.
func (op *Operation) Validate() error {
	if op.Nonce == nil {
		return ErrMissingNonce
	}
	if op.Nonce.Sign() < 0 {
		return ErrNegativeNonce
	}
	return nil
}

// Settlement is the record emitted for every settled relay operation.
type Settlement struct {
	Digest         common.Hash    `json:"digest"`
	Payment        *big.Int       `json:"payment"`
	DappIdentifier common.Address `json:"dapp_identifier"`
	Sender         common.Address `json:"sender"`

	Instance      common.Address `json:"instance"`
	Executor      common.Address `json:"executor"`
	Target        common.Address `json:"target"`
	Nonce         *big.Int       `json:"nonce"`
	GasUsed       uint64         `json:"gas_used"`
	BaseCost      uint64         `json:"base_cost"`
	UnitPrice     *big.Int       `json:"unit_price"`
	CallSucceeded bool           `json:"call_succeeded"`
	SettledAt     int64          `json:"settled_at"`
}

// Redis key templates
const (
	SettlementQueueKeyFmt = "gastank:settlements:%s"     // %s = instance address (checksummed)
	SettlementDLQKeyFmt   = "gastank:settlements:dlq:%s" // undecodable entries
)
