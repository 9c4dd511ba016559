package gastank

import (
	"math/big"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/evmhost"
	"github.com/0gfoundation/0g-gastank/internal/relayop"
	"github.com/0gfoundation/0g-gastank/internal/state/redisstore"
)

var (
	setterAddr = common.HexToAddress("0x5e77e40000000000000000000000000000000001")
	// PUSH1 0 CALLDATALOAD PUSH1 0 SSTORE STOP
	setterCode = common.FromHex("0x60003560005500")
)

func newEVMHarness(t *testing.T) (*harness, *evmhost.Host) {
	t.Helper()
	host, err := evmhost.New(zap.NewNop())
	if err != nil {
		t.Fatalf("evmhost.New: %v", err)
	}
	host.Deploy(setterAddr, setterCode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := newHarness(t, func(o *Options) {
		o.Host = host
		o.Store = redisstore.New(rdb, testInstance)
	})
	return h, host
}

func setterOp(n int64, word byte) *relayop.Operation {
	op := newOp(n)
	op.Target = setterAddr
	op.CallData = common.LeftPadBytes([]byte{word}, 32)
	return op
}

func TestEVM_RelayCommitsCallEffects(t *testing.T) {
	h, host := newEVMHarness(t)
	h.deposit(t, oneEther)

	op := sign(t, setterOp(0, 0x2a), signerKey, h.tank.Domain())
	s, err := h.tank.HandleRelayOperation(ctx, executor, op)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if !s.CallSucceeded || s.GasUsed == 0 || s.GasUsed > op.CallGasLimit {
		t.Fatalf("unexpected settlement %+v", s)
	}
	if got := host.Storage(setterAddr, common.Hash{}); got != common.BigToHash(big.NewInt(0x2a)) {
		t.Fatalf("slot 0: got %s", got.Hex())
	}
	want := Payment(s.GasUsed, testBaseCost, big.NewInt(testUnitPrice))
	if got := h.payout(t, executor); got.Cmp(want) != 0 {
		t.Fatalf("payout: got %s, want %s", got, want)
	}
}

func TestEVM_InsufficientFundsRevertsCallEffects(t *testing.T) {
	h, host := newEVMHarness(t)
	h.deposit(t, big.NewInt(1))

	op := sign(t, setterOp(0, 0x2a), signerKey, h.tank.Domain())
	_, err := h.tank.HandleRelayOperation(ctx, executor, op)
	expectErr(t, err, ErrInsufficientFunds)

	if got := host.Storage(setterAddr, common.Hash{}); got != (common.Hash{}) {
		t.Fatalf("storage written by a rolled back relay: %s", got.Hex())
	}
	if got := h.nonce(t, sender); got != 0 {
		t.Fatalf("nonce consumed: %d", got)
	}

	// Top up; the very same operation now goes through.
	h.deposit(t, oneEther)
	if _, err := h.tank.HandleRelayOperation(ctx, executor, op); err != nil {
		t.Fatalf("relay after top up: %v", err)
	}
	if got := host.Storage(setterAddr, common.Hash{}); got != common.BigToHash(big.NewInt(0x2a)) {
		t.Fatalf("slot 0: got %s", got.Hex())
	}
}
