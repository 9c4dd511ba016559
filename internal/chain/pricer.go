// Package chain supplies the ambient execution context a tank settles
// against: the chain id and the price per unit of gas.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var ErrNoPrice = errors.New("unit price unavailable")

// Pricer returns the price per unit of gas of the current execution context.
// Callers never supply the price themselves.
type Pricer interface {
	UnitPrice(ctx context.Context) (*big.Int, error)
}

// StaticPrice is a fixed unit price.
type StaticPrice struct {
	price *big.Int
}

func NewStaticPrice(price *big.Int) *StaticPrice {
	return &StaticPrice{price: new(big.Int).Set(price)}
}

func (p *StaticPrice) UnitPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(p.price), nil
}

// GasPriceSuggester is satisfied by *ethclient.Client and *Client.
type GasPriceSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// OraclePrice follows the chain's suggested gas price, refreshing at most
// once per ttl. A failed refresh falls back to the last known price.
type OraclePrice struct {
	src GasPriceSuggester
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	price     *big.Int
	fetchedAt time.Time
}

func NewOraclePrice(src GasPriceSuggester, ttl time.Duration) *OraclePrice {
	return &OraclePrice{src: src, ttl: ttl, now: time.Now}
}

func (o *OraclePrice) UnitPrice(ctx context.Context) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.price != nil && o.now().Sub(o.fetchedAt) < o.ttl {
		return new(big.Int).Set(o.price), nil
	}
	price, err := o.src.SuggestGasPrice(ctx)
	if err != nil || price == nil || price.Sign() < 0 {
		if o.price != nil {
			return new(big.Int).Set(o.price), nil
		}
		if err == nil {
			err = fmt.Errorf("rpc returned %v", price)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoPrice, err)
	}
	o.price = price
	o.fetchedAt = o.now()
	return new(big.Int).Set(price), nil
}
