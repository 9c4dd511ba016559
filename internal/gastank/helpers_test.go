package gastank

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/0gfoundation/0g-gastank/internal/chain"
	"github.com/0gfoundation/0g-gastank/internal/forward"
	"github.com/0gfoundation/0g-gastank/internal/metrics"
	"github.com/0gfoundation/0g-gastank/internal/relayop"
	"github.com/0gfoundation/0g-gastank/internal/state"
)

// ── test keys (Anvil default accounts) ────────────────────────────────────────

var (
	signerKey, _ = crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	otherKey, _  = crypto.HexToECDSA("59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")

	signerAddr = crypto.PubkeyToAddress(signerKey.PublicKey)
	otherAddr  = crypto.PubkeyToAddress(otherKey.PublicKey)

	testChainID  = big.NewInt(31337)
	testInstance = common.HexToAddress("0x7A4C000000000000000000000000000000000001")
	owner        = common.HexToAddress("0x0111000000000000000000000000000000000003")
	stranger     = common.HexToAddress("0x0222000000000000000000000000000000000004")
	dapp         = common.HexToAddress("0xDA99000000000000000000000000000000000001")
	sender       = common.HexToAddress("0x5E4D000000000000000000000000000000000001")
	target       = common.HexToAddress("0x7A76000000000000000000000000000000000001")
	executor     = common.HexToAddress("0xE8EC000000000000000000000000000000000002")

	oneEther  = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	halfEther = new(big.Int).Div(oneEther, big.NewInt(2))
)

const (
	testBaseCost  = 53_000
	testUnitPrice = 2
	testGasUsed   = 21_000
)

// ── fakes ─────────────────────────────────────────────────────────────────────

type fakeHost struct {
	mu      sync.Mutex
	gasUsed uint64
	success bool
	err     error

	calls   []forward.Call
	commits int
	reverts int
}

func (h *fakeHost) Execute(_ context.Context, call forward.Call) (forward.Execution, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	h.calls = append(h.calls, call)
	used := h.gasUsed
	if used > call.GasLimit {
		used = call.GasLimit
	}
	return &fakeExec{host: h, out: forward.Outcome{GasUsed: used, Success: h.success}}, nil
}

func (h *fakeHost) counts() (calls, commits, reverts int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls), h.commits, h.reverts
}

type fakeExec struct {
	host *fakeHost
	out  forward.Outcome
	done bool
}

func (e *fakeExec) Outcome() forward.Outcome { return e.out }

func (e *fakeExec) Commit() {
	if e.done {
		return
	}
	e.done = true
	e.host.mu.Lock()
	e.host.commits++
	e.host.mu.Unlock()
}

func (e *fakeExec) Revert() {
	if e.done {
		return
	}
	e.done = true
	e.host.mu.Lock()
	e.host.reverts++
	e.host.mu.Unlock()
}

type mutablePrice struct {
	mu    sync.Mutex
	price *big.Int
}

func (p *mutablePrice) UnitPrice(context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.price), nil
}

func (p *mutablePrice) set(v int64) {
	p.mu.Lock()
	p.price = big.NewInt(v)
	p.mu.Unlock()
}

type recordingSink struct {
	mu  sync.Mutex
	got []relayop.Settlement
	err error
}

func (r *recordingSink) Publish(_ context.Context, s relayop.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
	return r.err
}

// conflictStore fails every commit after the first n.
type conflictStore struct {
	*state.Memory
	allow int
}

func (c *conflictStore) Commit(ctx context.Context, cs *state.Changeset) error {
	if c.allow <= 0 {
		return state.ErrConflict
	}
	c.allow--
	return c.Memory.Commit(ctx, cs)
}

// ── harness ───────────────────────────────────────────────────────────────────

type harness struct {
	tank  *Tank
	host  *fakeHost
	store state.Store
	price *mutablePrice
	sink  *recordingSink
	met   *metrics.Metrics
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		host:  &fakeHost{gasUsed: testGasUsed, success: true},
		store: state.NewMemory(),
		price: &mutablePrice{price: big.NewInt(testUnitPrice)},
		sink:  &recordingSink{},
		met:   metrics.New(prometheus.NewRegistry()),
	}
	opts := Options{
		Address: testInstance,
		ChainID: testChainID,
		Settings: state.Settings{
			Owner:         owner,
			TrustedSigner: signerAddr,
			BaseCost:      testBaseCost,
		},
		Store:   h.store,
		Host:    h.host,
		Pricer:  h.price,
		Sink:    h.sink,
		Metrics: h.met,
	}
	for _, m := range mutate {
		m(&opts)
	}
	h.store = opts.Store
	if fh, ok := opts.Host.(*fakeHost); ok {
		h.host = fh
	}
	tank, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.tank = tank
	return h
}

func (h *harness) deposit(t *testing.T, amount *big.Int) {
	t.Helper()
	if err := h.tank.Deposit(context.Background(), dapp, amount); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
}

func (h *harness) balance(t *testing.T, id common.Address) *big.Int {
	t.Helper()
	b, err := h.tank.BalanceOf(context.Background(), id)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	return b
}

func (h *harness) nonce(t *testing.T, s common.Address) int64 {
	t.Helper()
	n, err := h.tank.ExpectedNonce(context.Background(), s)
	if err != nil {
		t.Fatalf("ExpectedNonce: %v", err)
	}
	return n.Int64()
}

func (h *harness) payout(t *testing.T, addr common.Address) *big.Int {
	t.Helper()
	p, err := h.tank.PayoutOf(context.Background(), addr)
	if err != nil {
		t.Fatalf("PayoutOf: %v", err)
	}
	return p
}

func newOp(n int64) *relayop.Operation {
	return &relayop.Operation{
		Sender:         sender,
		Target:         target,
		Nonce:          big.NewInt(n),
		CallData:       []byte{0xa9, 0x05, 0x9c, 0xbb},
		CallGasLimit:   100_000,
		DappIdentifier: dapp,
	}
}

func sign(t *testing.T, op *relayop.Operation, key *ecdsa.PrivateKey, d relayop.Domain) *relayop.Operation {
	t.Helper()
	sig, err := relayop.Sign(op, key, d)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	op.Signature = sig
	return op
}

func (h *harness) signedOp(t *testing.T, n int64) *relayop.Operation {
	t.Helper()
	return sign(t, newOp(n), signerKey, h.tank.Domain())
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("got error %v, want %v", err, want)
	}
}

var _ chain.Pricer = (*mutablePrice)(nil)
