// Package gastank is a gas sponsorship ledger. Dapps prepay a balance in a
// tank instance; executors relay calls pre-authorized by the tank's trusted
// signer and are reimbursed from the sponsoring dapp's balance, atomically
// with the call.
package gastank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/chain"
	"github.com/0gfoundation/0g-gastank/internal/events"
	"github.com/0gfoundation/0g-gastank/internal/forward"
	"github.com/0gfoundation/0g-gastank/internal/ledger"
	"github.com/0gfoundation/0g-gastank/internal/metrics"
	"github.com/0gfoundation/0g-gastank/internal/nonce"
	"github.com/0gfoundation/0g-gastank/internal/relayop"
	"github.com/0gfoundation/0g-gastank/internal/state"
)

var tracer = otel.Tracer("gastank")

// FailedCallPolicy decides what happens when the forwarded call itself fails.
type FailedCallPolicy string

const (
	// PolicySettle charges the dapp for the gas the failed call consumed.
	PolicySettle FailedCallPolicy = "settle"
	// PolicyReject rolls the whole operation back, nonce included.
	PolicyReject FailedCallPolicy = "reject"
)

func ParsePolicy(s string) (FailedCallPolicy, error) {
	switch p := FailedCallPolicy(s); p {
	case PolicySettle, PolicyReject:
		return p, nil
	case "":
		return PolicySettle, nil
	default:
		return "", fmt.Errorf("unknown failed call policy %q", s)
	}
}

// Options configures a Tank. Store, Host, Pricer and ChainID are required.
type Options struct {
	Address  common.Address
	ChainID  *big.Int
	Settings state.Settings // used only when the store holds none yet

	Store   state.Store
	Host    forward.Host
	Pricer  chain.Pricer
	Sink    events.Sink      // defaults to a LogSink
	Policy  FailedCallPolicy // defaults to PolicySettle
	Metrics *metrics.Metrics // optional
	Log     *zap.Logger
}

// Tank is one gas tank instance. All mutating operations are serialised.
type Tank struct {
	address common.Address
	domain  relayop.Domain
	store   state.Store
	host    forward.Host
	pricer  chain.Pricer
	sink    events.Sink
	policy  FailedCallPolicy
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

func New(ctx context.Context, opts Options) (*Tank, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("gastank: store is required")
	case opts.Host == nil:
		return nil, errors.New("gastank: host is required")
	case opts.Pricer == nil:
		return nil, errors.New("gastank: pricer is required")
	case opts.ChainID == nil || opts.ChainID.Sign() <= 0:
		return nil, errors.New("gastank: chain id is required")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	log := opts.Log.With(zap.String("instance", opts.Address.Hex()))
	if opts.Sink == nil {
		opts.Sink = events.NewLogSink(log)
	}
	policy, err := ParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}

	t := &Tank{
		address: opts.Address,
		domain:  relayop.Domain{ChainID: new(big.Int).Set(opts.ChainID), Instance: opts.Address},
		store:   opts.Store,
		host:    opts.Host,
		pricer:  opts.Pricer,
		sink:    opts.Sink,
		policy:  policy,
		metrics: opts.Metrics,
		log:     log,
		now:     time.Now,
	}
	if err := t.seedSettings(ctx, opts.Settings); err != nil {
		return nil, err
	}
	return t, nil
}

// seedSettings persists the initial settings unless the store already has some.
func (t *Tank) seedSettings(ctx context.Context, initial state.Settings) error {
	if _, ok, err := t.store.Settings(ctx); err != nil {
		return fmt.Errorf("load settings: %w", err)
	} else if ok {
		return nil
	}
	if initial.Owner == (common.Address{}) {
		return ErrInvalidOwner
	}
	tx := state.Begin(ctx, t.store)
	defer tx.Discard()
	if err := tx.SetSettings(initial); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	t.log.Info("tank settings initialised",
		zap.String("owner", initial.Owner.Hex()),
		zap.String("trusted_signer", initial.TrustedSigner.Hex()),
		zap.Uint64("base_cost", initial.BaseCost),
	)
	return nil
}

func (t *Tank) Address() common.Address { return t.address }

func (t *Tank) Domain() relayop.Domain {
	return relayop.Domain{ChainID: new(big.Int).Set(t.domain.ChainID), Instance: t.domain.Instance}
}

func (t *Tank) Policy() FailedCallPolicy { return t.policy }

// Settings returns the current configuration record.
func (t *Tank) Settings(ctx context.Context) (state.Settings, error) {
	s, _, err := t.store.Settings(ctx)
	return s, err
}

// Hash returns the digest the trusted signer must sign for op on this tank.
func (t *Tank) Hash(op *relayop.Operation) (common.Hash, error) {
	return relayop.Hash(op, t.domain)
}

// BalanceOf returns the dapp's balance; unknown dapps have zero.
func (t *Tank) BalanceOf(ctx context.Context, dapp common.Address) (*big.Int, error) {
	return ledger.Balance(state.Begin(ctx, t.store), dapp)
}

// PayoutOf returns the cumulative amount the tank has paid out to addr.
func (t *Tank) PayoutOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return state.Begin(ctx, t.store).Payout(addr)
}

// ExpectedNonce returns the only nonce sender's next operation may carry.
func (t *Tank) ExpectedNonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	return nonce.Expected(state.Begin(ctx, t.store), sender)
}

// Deposit credits amount to dapp. Anyone may deposit for anyone.
func (t *Tank) Deposit(ctx context.Context, dapp common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx := state.Begin(ctx, t.store)
	defer tx.Discard()
	if err := ledger.Credit(tx, dapp, amount); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deposit: %w", err)
	}
	if t.metrics != nil {
		t.metrics.Deposits.WithLabelValues(t.address.Hex()).Inc()
	}
	t.log.Info("deposit", zap.String("dapp", dapp.Hex()), zap.String("amount", amount.String()))
	return nil
}
