// cmd/deploy derives the address of a per-tenant tank instance from its
// deployer, salt and constructor parameters, and prints the tanks entry to
// add to config.yaml. The address is known before the instance is
// registered, so the tenant can check it before funding.
//
// Usage:
//
//	go run ./cmd/deploy/ --deployer 0x... --salt 0x01 --owner 0x... \
//	  --signer 0x... [--base-cost 53000]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/0gfoundation/0g-gastank/internal/gastank"
)

// tankEntry mirrors one element of the tanks list in config.yaml.
type tankEntry struct {
	Address       string `yaml:"address"`
	Deployer      string `yaml:"deployer"`
	Salt          string `yaml:"salt"`
	Owner         string `yaml:"owner"`
	TrustedSigner string `yaml:"trusted_signer"`
	BaseCost      uint64 `yaml:"base_cost"`
}

func main() {
	deployer := flag.String("deployer", "", "deployer address")
	salt := flag.String("salt", "0x00", "32-byte salt (hex)")
	owner := flag.String("owner", "", "instance owner")
	signer := flag.String("signer", "", "trusted signer")
	baseCost := flag.Uint64("base-cost", 53_000, "per-operation base cost (gas)")
	flag.Parse()

	for name, v := range map[string]string{"deployer": *deployer, "owner": *owner, "signer": *signer} {
		if !common.IsHexAddress(v) {
			fmt.Fprintf(os.Stderr, "error: --%s must be an address\n", name)
			os.Exit(1)
		}
	}

	saltHash := common.HexToHash(*salt)
	addr := gastank.InstanceAddress(
		common.HexToAddress(*deployer),
		saltHash,
		common.HexToAddress(*owner),
		common.HexToAddress(*signer),
	)
	fmt.Fprintf(os.Stderr, "Instance : %s\n", addr.Hex())

	out, err := yaml.Marshal(map[string][]tankEntry{"tanks": {{
		Address:       addr.Hex(),
		Deployer:      common.HexToAddress(*deployer).Hex(),
		Salt:          saltHash.Hex(),
		Owner:         common.HexToAddress(*owner).Hex(),
		TrustedSigner: common.HexToAddress(*signer).Hex(),
		BaseCost:      *baseCost,
	}}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(string(out))
}
