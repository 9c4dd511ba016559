package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Store     StoreConfig     `mapstructure:"store"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	EVM       EVMConfig       `mapstructure:"evm"`
	Tank      TankConfig      `mapstructure:"tank"`  // single-instance shortcut, env friendly
	Tanks     []TankConfig    `mapstructure:"tanks"` // from config.yaml
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type StoreConfig struct {
	Driver     string `mapstructure:"driver"` // memory | redis | sqlite
	SQLitePath string `mapstructure:"sqlite_path"`
}

type ChainConfig struct {
	RPCURL  string `mapstructure:"rpc_url"`
	ChainID int64  `mapstructure:"chain_id"`
}

type PricingConfig struct {
	Mode         string `mapstructure:"mode"` // static | rpc
	UnitPrice    string `mapstructure:"unit_price"`
	OracleTTLSec int64  `mapstructure:"oracle_ttl_sec"`
}

type RelayConfig struct {
	FailedCallPolicy string `mapstructure:"failed_call_policy"` // settle | reject
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// EVMConfig lists contracts installed in the in-process EVM at startup.
type EVMConfig struct {
	Contracts []ContractConfig `mapstructure:"contracts"`
}

type ContractConfig struct {
	Address string `mapstructure:"address"`
	Code    string `mapstructure:"code"` // 0x-prefixed runtime bytecode
}

// TankConfig describes one instance. Either Address is set, or Deployer and
// Salt are, in which case the address is derived deterministically.
type TankConfig struct {
	Address       string `mapstructure:"address"`
	Deployer      string `mapstructure:"deployer"`
	Salt          string `mapstructure:"salt"`
	Owner         string `mapstructure:"owner"`
	TrustedSigner string `mapstructure:"trusted_signer"`
	BaseCost      uint64 `mapstructure:"base_cost"`
}

func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("store.driver", "redis")
	v.SetDefault("store.sqlite_path", "gastank.db")
	v.SetDefault("pricing.mode", "static")
	v.SetDefault("pricing.unit_price", "1000000000")
	v.SetDefault("pricing.oracle_ttl_sec", 12)
	v.SetDefault("relay.failed_call_policy", "settle")
	v.SetDefault("kafka.topic_prefix", "gastank-settlements")
	v.SetDefault("telemetry.service_name", "gastank")
	v.SetDefault("ratelimit.rps", 5)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("tank.base_cost", 53000)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":              "PORT",
		"redis.addr":               "REDIS_ADDR",
		"redis.password":           "REDIS_PASSWORD",
		"store.driver":             "STORE_DRIVER",
		"store.sqlite_path":        "SQLITE_PATH",
		"chain.rpc_url":            "RPC_URL",
		"chain.chain_id":           "CHAIN_ID",
		"pricing.mode":             "PRICING_MODE",
		"pricing.unit_price":       "UNIT_PRICE",
		"pricing.oracle_ttl_sec":   "PRICE_ORACLE_TTL_SEC",
		"relay.failed_call_policy": "FAILED_CALL_POLICY",
		"kafka.brokers":            "KAFKA_BROKERS",
		"kafka.topic_prefix":       "KAFKA_TOPIC_PREFIX",
		"telemetry.service_name":   "OTEL_SERVICE_NAME",
		"telemetry.otlp_endpoint":  "OTEL_EXPORTER_OTLP_ENDPOINT",
		"ratelimit.rps":            "RELAY_RATE_LIMIT_RPS",
		"ratelimit.burst":          "RELAY_RATE_LIMIT_BURST",
		"tank.address":             "TANK_ADDRESS",
		"tank.deployer":            "TANK_DEPLOYER",
		"tank.salt":                "TANK_SALT",
		"tank.owner":               "TANK_OWNER",
		"tank.trusted_signer":      "TANK_TRUSTED_SIGNER",
		"tank.base_cost":           "TANK_BASE_COST",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Tanks) == 0 && cfg.Tank.Owner != "" {
		cfg.Tanks = []TankConfig{cfg.Tank}
	}

	return cfg, cfg.validate()
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(".env")
}

func (c *Config) validate() error {
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}

	switch c.Store.Driver {
	case "memory", "redis":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("required config missing: SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Pricing.Mode {
	case "static":
		if _, ok := new(big.Int).SetString(c.Pricing.UnitPrice, 10); !ok {
			return fmt.Errorf("invalid UNIT_PRICE %q", c.Pricing.UnitPrice)
		}
	case "rpc":
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("required config missing: RPC_URL")
		}
	default:
		return fmt.Errorf("unknown PRICING_MODE %q", c.Pricing.Mode)
	}

	switch c.Relay.FailedCallPolicy {
	case "settle", "reject":
	default:
		return fmt.Errorf("unknown FAILED_CALL_POLICY %q", c.Relay.FailedCallPolicy)
	}

	if len(c.Tanks) == 0 {
		return fmt.Errorf("required config missing: TANK_OWNER (or a tanks list in config.yaml)")
	}
	for i, t := range c.Tanks {
		if err := t.validate(); err != nil {
			return fmt.Errorf("tanks[%d]: %w", i, err)
		}
	}
	for i, ct := range c.EVM.Contracts {
		if !common.IsHexAddress(ct.Address) {
			return fmt.Errorf("evm.contracts[%d]: invalid address %q", i, ct.Address)
		}
	}
	return nil
}

func (t TankConfig) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{t.Owner, "owner"},
		{t.TrustedSigner, "trusted_signer"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
		if !common.IsHexAddress(r.val) {
			return fmt.Errorf("invalid %s %q", r.name, r.val)
		}
	}
	switch {
	case t.Address != "":
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("invalid address %q", t.Address)
		}
	case t.Deployer != "":
		if !common.IsHexAddress(t.Deployer) {
			return fmt.Errorf("invalid deployer %q", t.Deployer)
		}
	default:
		return fmt.Errorf("either address or deployer+salt is required")
	}
	return nil
}

// UnitPrice parses Pricing.UnitPrice; only meaningful in static mode.
func (c *Config) UnitPrice() *big.Int {
	p, _ := new(big.Int).SetString(c.Pricing.UnitPrice, 10)
	return p
}
