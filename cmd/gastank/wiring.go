package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/chain"
	"github.com/0gfoundation/0g-gastank/internal/config"
	"github.com/0gfoundation/0g-gastank/internal/events"
	"github.com/0gfoundation/0g-gastank/internal/evmhost"
	"github.com/0gfoundation/0g-gastank/internal/forward"
	"github.com/0gfoundation/0g-gastank/internal/gastank"
	"github.com/0gfoundation/0g-gastank/internal/metrics"
	"github.com/0gfoundation/0g-gastank/internal/state"
	"github.com/0gfoundation/0g-gastank/internal/state/redisstore"
	"github.com/0gfoundation/0g-gastank/internal/state/sqlstore"
)

// stores hands out one state.Store per instance for the configured driver.
type stores struct {
	driver string
	rdb    redis.UniversalClient
	sql    *sqlstore.DB
}

func newStores(cfg *config.Config, rdb redis.UniversalClient) (*stores, error) {
	s := &stores{driver: cfg.Store.Driver, rdb: rdb}
	if s.driver == "sqlite" {
		db, err := sqlstore.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.sql = db
	}
	return s, nil
}

func (s *stores) For(instance common.Address) (state.Store, error) {
	switch s.driver {
	case "memory":
		return state.NewMemory(), nil
	case "redis":
		return redisstore.New(s.rdb, instance), nil
	case "sqlite":
		return s.sql.Instance(instance), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", s.driver)
	}
}

func (s *stores) Close() error {
	if s.sql != nil {
		return s.sql.Close()
	}
	return nil
}

func newPricer(ctx context.Context, cfg *config.Config) (chain.Pricer, func(), error) {
	switch cfg.Pricing.Mode {
	case "rpc":
		client, err := chain.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		ttl := time.Duration(cfg.Pricing.OracleTTLSec) * time.Second
		return chain.NewOraclePrice(client, ttl), client.Close, nil
	default:
		return chain.NewStaticPrice(cfg.UnitPrice()), func() {}, nil
	}
}

func deployContracts(host *evmhost.Host, contracts []config.ContractConfig) error {
	for i, ct := range contracts {
		code, err := hexutil.Decode(ct.Code)
		if err != nil {
			return fmt.Errorf("contracts[%d]: decode code: %w", i, err)
		}
		host.Deploy(common.HexToAddress(ct.Address), code)
	}
	return nil
}

// tankAddress returns the configured address, or derives it from the
// deployer, salt and constructor parameters.
func tankAddress(tc config.TankConfig) common.Address {
	if tc.Address != "" {
		return common.HexToAddress(tc.Address)
	}
	return gastank.InstanceAddress(
		common.HexToAddress(tc.Deployer),
		common.HexToHash(tc.Salt),
		common.HexToAddress(tc.Owner),
		common.HexToAddress(tc.TrustedSigner),
	)
}

type deps struct {
	stores  *stores
	host    forward.Host
	pricer  chain.Pricer
	sink    events.Sink
	metrics *metrics.Metrics
	log     *zap.Logger
}

func buildDirectory(ctx context.Context, cfg *config.Config, d deps) (*gastank.Directory, error) {
	policy, err := gastank.ParsePolicy(cfg.Relay.FailedCallPolicy)
	if err != nil {
		return nil, err
	}
	chainID := big.NewInt(cfg.Chain.ChainID)

	dir := gastank.NewDirectory()
	for i, tc := range cfg.Tanks {
		addr := tankAddress(tc)
		store, err := d.stores.For(addr)
		if err != nil {
			return nil, err
		}
		tank, err := gastank.New(ctx, gastank.Options{
			Address: addr,
			ChainID: chainID,
			Settings: state.Settings{
				Owner:         common.HexToAddress(tc.Owner),
				TrustedSigner: common.HexToAddress(tc.TrustedSigner),
				BaseCost:      tc.BaseCost,
			},
			Store:   store,
			Host:    d.host,
			Pricer:  d.pricer,
			Sink:    d.sink,
			Policy:  policy,
			Metrics: d.metrics,
			Log:     d.log,
		})
		if err != nil {
			return nil, fmt.Errorf("tanks[%d] %s: %w", i, addr.Hex(), err)
		}
		if err := dir.Add(tank); err != nil {
			return nil, fmt.Errorf("tanks[%d]: %w", i, err)
		}
	}
	if len(dir.List()) == 0 {
		return nil, errors.New("no tank instances configured")
	}
	return dir, nil
}
