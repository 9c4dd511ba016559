package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/0gfoundation/0g-gastank/internal/config"
)

// ChainIDReader is the part of an RPC client used to confirm which chain the
// service is talking to.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client wraps go-ethereum's RPC client for the values a tank needs from
// the chain it settles on.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// NewClient dials cfg.Chain.RPCURL and checks the remote chain id against
// cfg.Chain.ChainID.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	want := big.NewInt(cfg.Chain.ChainID)
	if err := VerifyChainID(ctx, eth, want); err != nil {
		eth.Close()
		return nil, err
	}
	return &Client{eth: eth, chainID: want}, nil
}

// VerifyChainID fails when the remote chain id differs from want.
func VerifyChainID(ctx context.Context, r ChainIDReader, want *big.Int) error {
	got, err := r.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetch chain id: %w", err)
	}
	if got.Cmp(want) != 0 {
		return fmt.Errorf("chain id mismatch: rpc reports %s, configured %s", got, want)
	}
	return nil
}

func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

func (c *Client) Close() { c.eth.Close() }
