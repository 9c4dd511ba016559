package api

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0gfoundation/0g-gastank/internal/relayop"
)

// Amounts are JSON numbers of arbitrary precision (wei).

// Auth actions, one per signed route.
const (
	ActionDeposit           = "deposit"
	ActionWithdraw          = "withdraw"
	ActionRelay             = "relay"
	ActionSetBaseCost       = "set_base_cost"
	ActionSetTrustedSigner  = "set_trusted_signer"
	ActionTransferOwnership = "transfer_ownership"
)

type DepositRequest struct {
	Dapp   common.Address `json:"dapp"`
	Amount *big.Int       `json:"amount"`
}

type WithdrawRequest struct {
	Dapp      common.Address `json:"dapp"`
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
}

// AmountResponse answers balance and payout reads.
type AmountResponse struct {
	Instance common.Address `json:"instance"`
	Account  common.Address `json:"account"`
	Amount   *big.Int       `json:"amount"`
}

type NonceResponse struct {
	Instance common.Address `json:"instance"`
	Sender   common.Address `json:"sender"`
	Nonce    *big.Int       `json:"nonce"`
}

// HashResponse carries the operation digest and the EIP-191 hash the
// trusted signer actually signs.
type HashResponse struct {
	Digest      common.Hash   `json:"digest"`
	SigningHash hexutil.Bytes `json:"signing_hash"`
}

type SettingsResponse struct {
	Instance         common.Address `json:"instance"`
	ChainID          *big.Int       `json:"chain_id"`
	Owner            common.Address `json:"owner"`
	TrustedSigner    common.Address `json:"trusted_signer"`
	BaseCost         uint64         `json:"base_cost"`
	FailedCallPolicy string         `json:"failed_call_policy"`
}

type BaseCostRequest struct {
	BaseCost uint64 `json:"base_cost"`
}

type TrustedSignerRequest struct {
	TrustedSigner common.Address `json:"trusted_signer"`
}

type OwnerRequest struct {
	Owner common.Address `json:"owner"`
}

type InstancesResponse struct {
	Instances []common.Address `json:"instances"`
}

// RelayRequest is the operation as submitted by an executor.
type RelayRequest = relayop.Operation

type RelayResponse = relayop.Settlement

type ErrorResponse struct {
	Error string `json:"error"`
}
