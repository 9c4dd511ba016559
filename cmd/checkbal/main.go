// cmd/checkbal prints a dapp's balance, a sender's next nonce and an
// address's cumulative payout on one tank instance.
//
// Usage:
//
//	go run ./cmd/checkbal/ --api http://localhost:8080 --instance 0x... \
//	  [--dapp 0x...] [--sender 0x...] [--payee 0x...]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-gastank/internal/client"
)

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "gas tank API base URL")
	instance := flag.String("instance", "", "tank instance address")
	dapp := flag.String("dapp", "", "dapp identifier to show the balance of")
	sender := flag.String("sender", "", "sender to show the next nonce of")
	payee := flag.String("payee", "", "executor or recipient to show the payout of")
	flag.Parse()

	if !common.IsHexAddress(*instance) {
		fmt.Fprintln(os.Stderr, "error: --instance must be an address")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c := client.New(*apiURL, common.HexToAddress(*instance), nil)

	s, err := c.Settings(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "settings: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("instance:        %s (chain %s)\n", s.Instance.Hex(), s.ChainID)
	fmt.Printf("owner:           %s\n", s.Owner.Hex())
	fmt.Printf("trusted signer:  %s\n", s.TrustedSigner.Hex())
	fmt.Printf("base cost:       %d gas\n", s.BaseCost)

	if common.IsHexAddress(*dapp) {
		bal, err := c.Balance(ctx, common.HexToAddress(*dapp))
		if err != nil {
			fmt.Fprintf(os.Stderr, "balance: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("balance:         %s wei\n", bal)
	}
	if common.IsHexAddress(*sender) {
		n, err := c.Nonce(ctx, common.HexToAddress(*sender))
		if err != nil {
			fmt.Fprintf(os.Stderr, "nonce: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("next nonce:      %s\n", n)
	}
	if common.IsHexAddress(*payee) {
		paid, err := c.Payout(ctx, common.HexToAddress(*payee))
		if err != nil {
			fmt.Fprintf(os.Stderr, "payout: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("paid out:        %s wei\n", paid)
	}
}
