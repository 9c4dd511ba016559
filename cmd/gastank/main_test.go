package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/config"
	"github.com/0gfoundation/0g-gastank/internal/events"
	"github.com/0gfoundation/0g-gastank/internal/evmhost"
	"github.com/0gfoundation/0g-gastank/internal/gastank"
)

const (
	ownerHex  = "0x0111000000000000000000000000000000000003"
	signerHex = "0x5191000000000000000000000000000000000004"
)

func testConfig(driver string, tanks ...config.TankConfig) *config.Config {
	cfg := &config.Config{}
	cfg.Chain.ChainID = 31337
	cfg.Store.Driver = driver
	cfg.Pricing.Mode = "static"
	cfg.Pricing.UnitPrice = "7"
	cfg.Relay.FailedCallPolicy = "settle"
	cfg.Tanks = tanks
	return cfg
}

func testDeps(t *testing.T, cfg *config.Config) deps {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	st, err := newStores(cfg, rdb)
	if err != nil {
		t.Fatalf("newStores: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	host, err := evmhost.New(zap.NewNop())
	if err != nil {
		t.Fatalf("evmhost.New: %v", err)
	}
	pricer, closePricer, err := newPricer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newPricer: %v", err)
	}
	t.Cleanup(closePricer)

	return deps{
		stores: st,
		host:   host,
		pricer: pricer,
		sink:   events.NewLogSink(zap.NewNop()),
		log:    zap.NewNop(),
	}
}

// ── tankAddress ───────────────────────────────────────────────────────────────

func TestTankAddress(t *testing.T) {
	explicit := config.TankConfig{Address: "0x7A4C000000000000000000000000000000000001", Owner: ownerHex, TrustedSigner: signerHex}
	if got := tankAddress(explicit); got != common.HexToAddress(explicit.Address) {
		t.Fatalf("explicit: %s", got.Hex())
	}

	derived := config.TankConfig{Deployer: "0xDE91000000000000000000000000000000000001", Salt: "0x01", Owner: ownerHex, TrustedSigner: signerHex}
	want := gastank.InstanceAddress(
		common.HexToAddress(derived.Deployer),
		common.HexToHash("0x01"),
		common.HexToAddress(ownerHex),
		common.HexToAddress(signerHex),
	)
	if got := tankAddress(derived); got != want {
		t.Fatalf("derived: got %s, want %s", got.Hex(), want.Hex())
	}
}

// ── buildDirectory ────────────────────────────────────────────────────────────

func TestBuildDirectory_PerTenant(t *testing.T) {
	for _, driver := range []string{"memory", "redis", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfg := testConfig(driver,
				config.TankConfig{Address: "0x7A4C000000000000000000000000000000000001", Owner: ownerHex, TrustedSigner: signerHex, BaseCost: 100},
				config.TankConfig{Deployer: "0xDE91000000000000000000000000000000000001", Salt: "0x02", Owner: ownerHex, TrustedSigner: signerHex, BaseCost: 200},
			)
			cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "gastank.db")

			dir, err := buildDirectory(context.Background(), cfg, testDeps(t, cfg))
			if err != nil {
				t.Fatalf("buildDirectory: %v", err)
			}
			if n := len(dir.List()); n != 2 {
				t.Fatalf("instances: %d", n)
			}
			tank, err := dir.Get(tankAddress(cfg.Tanks[1]))
			if err != nil {
				t.Fatalf("Get derived: %v", err)
			}
			s, err := tank.Settings(context.Background())
			if err != nil {
				t.Fatalf("Settings: %v", err)
			}
			if s.BaseCost != 200 || s.Owner != common.HexToAddress(ownerHex) {
				t.Fatalf("settings: %+v", s)
			}
		})
	}
}

func TestBuildDirectory_DuplicateInstance(t *testing.T) {
	tc := config.TankConfig{Address: "0x7A4C000000000000000000000000000000000001", Owner: ownerHex, TrustedSigner: signerHex}
	cfg := testConfig("memory", tc, tc)
	_, err := buildDirectory(context.Background(), cfg, testDeps(t, cfg))
	if err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestBuildDirectory_Empty(t *testing.T) {
	cfg := testConfig("memory")
	if _, err := buildDirectory(context.Background(), cfg, testDeps(t, cfg)); err == nil {
		t.Fatal("expected error with no tanks")
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func TestNewPricer_Static(t *testing.T) {
	cfg := testConfig("memory")
	p, closePricer, err := newPricer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newPricer: %v", err)
	}
	defer closePricer()
	got, err := p.UnitPrice(context.Background())
	if err != nil || got.Int64() != 7 {
		t.Fatalf("UnitPrice: %v %v", got, err)
	}
}

func TestDeployContracts(t *testing.T) {
	host, err := evmhost.New(zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	addr := "0x5e77e40000000000000000000000000000000001"
	if err := deployContracts(host, []config.ContractConfig{{Address: addr, Code: "0x60003560005500"}}); err != nil {
		t.Fatalf("deployContracts: %v", err)
	}
	if err := deployContracts(host, []config.ContractConfig{{Address: addr, Code: "zz"}}); err == nil {
		t.Fatal("expected decode error")
	}
}
