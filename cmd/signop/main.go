// cmd/signop is the trusted signer's tool: it builds a relay operation,
// signs its hash for one tank instance and prints the operation as JSON.
// With --submit it also relays the operation, using --executor-key.
//
// Usage:
//
//	go run ./cmd/signop/ --key <signer hex> --chain-id 16602 --instance 0x... \
//	  --sender 0x... --target 0x... --dapp 0x... --data 0x... --gas-limit 100000 \
//	  [--nonce N | --api http://localhost:8080] [--submit --executor-key <hex>]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-gastank/internal/client"
	"github.com/0gfoundation/0g-gastank/internal/relayop"
)

func main() {
	keyHex := flag.String("key", "", "trusted signer private key (hex, with or without 0x)")
	chainID := flag.Int64("chain-id", 16602, "chain ID")
	instance := flag.String("instance", "", "tank instance address")
	sender := flag.String("sender", "", "operation sender")
	target := flag.String("target", "", "call target")
	dapp := flag.String("dapp", "", "sponsoring dapp identifier")
	data := flag.String("data", "0x", "call data (hex)")
	gasLimit := flag.Uint64("gas-limit", 100_000, "call gas limit")
	nonce := flag.Int64("nonce", -1, "sender nonce; fetched from --api when omitted")
	apiURL := flag.String("api", "", "gas tank API base URL")
	submit := flag.Bool("submit", false, "relay the signed operation through --api")
	executorHex := flag.String("executor-key", "", "executor private key for --submit")
	flag.Parse()

	for name, v := range map[string]string{"instance": *instance, "sender": *sender, "target": *target, "dapp": *dapp} {
		if !common.IsHexAddress(v) {
			fail("--%s must be an address", name)
		}
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		fail("parse --key: %v", err)
	}
	callData, err := hexutil.Decode(*data)
	if err != nil {
		fail("decode --data: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	inst := common.HexToAddress(*instance)

	op := &relayop.Operation{
		Sender:         common.HexToAddress(*sender),
		Target:         common.HexToAddress(*target),
		CallData:       callData,
		CallGasLimit:   *gasLimit,
		DappIdentifier: common.HexToAddress(*dapp),
	}
	switch {
	case *nonce >= 0:
		op.Nonce = big.NewInt(*nonce)
	case *apiURL != "":
		n, err := client.New(*apiURL, inst, nil).Nonce(ctx, op.Sender)
		if err != nil {
			fail("fetch nonce: %v", err)
		}
		op.Nonce = n
	default:
		fail("either --nonce or --api is required")
	}

	domain := relayop.Domain{ChainID: big.NewInt(*chainID), Instance: inst}
	digest, err := relayop.Hash(op, domain)
	if err != nil {
		fail("hash: %v", err)
	}
	if op.Signature, err = relayop.Sign(op, key, domain); err != nil {
		fail("sign: %v", err)
	}
	fmt.Fprintf(os.Stderr, "signer : %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	fmt.Fprintf(os.Stderr, "digest : %s\n", digest.Hex())

	out, _ := json.MarshalIndent(op, "", "  ")
	fmt.Println(string(out))

	if !*submit {
		return
	}
	if *apiURL == "" {
		fail("--submit requires --api")
	}
	execKey, err := crypto.HexToECDSA(strings.TrimPrefix(*executorHex, "0x"))
	if err != nil {
		fail("parse --executor-key: %v", err)
	}
	s, err := client.New(*apiURL, inst, execKey).Relay(ctx, op)
	if err != nil {
		fail("relay: %v", err)
	}
	fmt.Fprintf(os.Stderr, "settled: gas %d, payment %s wei, call succeeded %t\n", s.GasUsed, s.Payment, s.CallSucceeded)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
