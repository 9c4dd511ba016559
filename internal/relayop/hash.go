package relayop

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-gastank/internal/auth"
)

var (
	addressT, _ = abi.NewType("address", "", nil)
	uint256T, _ = abi.NewType("uint256", "", nil)
	bytes32T, _ = abi.NewType("bytes32", "", nil)

	// sender, target, nonce, keccak256(callData), callGasLimit, dappIdentifier, chainId, instance
	hashArgs = abi.Arguments{
		{Type: addressT},
		{Type: addressT},
		{Type: uint256T},
		{Type: bytes32T},
		{Type: uint256T},
		{Type: addressT},
		{Type: uint256T},
		{Type: addressT},
	}
)

// Hash returns the canonical digest of op under domain:
//
//	keccak256(abi.encode(sender, target, nonce, keccak256(callData),
//	                     callGasLimit, dappIdentifier, chainId, instance))
//
// The signature field is excluded.
func Hash(op *Operation, d Domain) (common.Hash, error) {
	if err := op.Validate(); err != nil {
		return common.Hash{}, err
	}
	if d.ChainID == nil {
		return common.Hash{}, ErrMissingChainID
	}
	packed, err := hashArgs.Pack(
		op.Sender,
		op.Target,
		op.Nonce,
		[32]byte(crypto.Keccak256Hash(op.CallData)),
		new(big.Int).SetUint64(op.CallGasLimit),
		op.DappIdentifier,
		d.ChainID,
		d.Instance,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("abi encode operation: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// SigningHash is the EIP-191 personal-message hash of the operation digest,
// the value the trusted signer's key actually signs.
func SigningHash(digest common.Hash) []byte {
	return auth.HashMessage(digest[:])
}

// Sign produces the trusted signer's signature for op (V in {27,28}).
func Sign(op *Operation, key *ecdsa.PrivateKey, d Domain) (hexutil.Bytes, error) {
	digest, err := Hash(op, d)
	if err != nil {
		return nil, err
	}
	sig, err := auth.Sign(digest[:], key)
	if err != nil {
		return nil, fmt.Errorf("sign operation: %w", err)
	}
	return sig, nil
}
