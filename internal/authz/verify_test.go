package authz

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-gastank/internal/relayop"
)

var testDomain = relayop.Domain{
	ChainID:  big.NewInt(31337),
	Instance: common.HexToAddress("0xDeAdBeEfDeAdBeEfDeAdBeEfDeAdBeEfDeAdBeEf"),
}

func signedOp(t *testing.T) (*relayop.Operation, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	op := &relayop.Operation{
		Sender:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Target:         common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Nonce:          big.NewInt(3),
		CallData:       []byte{0x01, 0x02},
		CallGasLimit:   21_000,
		DappIdentifier: common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
	op.Signature, err = relayop.Sign(op, key, testDomain)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return op, crypto.PubkeyToAddress(key.PublicKey)
}

func TestAuthorize_TrustedSigner(t *testing.T) {
	op, signer := signedOp(t)
	res := Authorize(op, testDomain, signer)
	if !res.Authorized {
		t.Fatal("expected authorized")
	}
	if res.Signer != signer {
		t.Errorf("Signer: got %s want %s", res.Signer.Hex(), signer.Hex())
	}
	if res.Err() != nil {
		t.Errorf("Err: got %v want nil", res.Err())
	}
}

func TestAuthorize_OtherSigner(t *testing.T) {
	op, signer := signedOp(t)
	res := Authorize(op, testDomain, common.HexToAddress("0x9999999999999999999999999999999999999999"))
	if res.Authorized {
		t.Fatal("expected unauthorized")
	}
	if res.Signer != signer {
		t.Errorf("Signer should still be reported: got %s want %s", res.Signer.Hex(), signer.Hex())
	}
	if !errors.Is(res.Err(), ErrWrongSignature) {
		t.Errorf("Err: got %v want ErrWrongSignature", res.Err())
	}
}

func TestAuthorize_TamperedOperation(t *testing.T) {
	op, signer := signedOp(t)
	op.CallGasLimit = 10_000_000
	if Authorize(op, testDomain, signer).Authorized {
		t.Fatal("tampered operation must not be authorized")
	}
}

func TestAuthorize_OtherDomain(t *testing.T) {
	op, signer := signedOp(t)
	other := relayop.Domain{ChainID: big.NewInt(1), Instance: testDomain.Instance}
	if Authorize(op, other, signer).Authorized {
		t.Fatal("signature must not verify under another chain id")
	}
}

func TestAuthorize_MalformedSignature(t *testing.T) {
	op, signer := signedOp(t)
	op.Signature = op.Signature[:64]
	res := Authorize(op, testDomain, signer)
	if res.Authorized {
		t.Fatal("short signature must not be authorized")
	}
	if !errors.Is(res.Err(), ErrWrongSignature) {
		t.Errorf("Err: got %v", res.Err())
	}
}

func TestAuthorize_ZeroTrustedSigner(t *testing.T) {
	op, _ := signedOp(t)
	if Authorize(op, testDomain, common.Address{}).Authorized {
		t.Fatal("zero trusted signer must authorize nothing")
	}
}

func TestAuthorize_MissingNonce(t *testing.T) {
	op, signer := signedOp(t)
	op.Nonce = nil
	if Authorize(op, testDomain, signer).Authorized {
		t.Fatal("operation without nonce must not be authorized")
	}
}
