package gastank

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Directory holds every tank instance the service runs. The singleton
// topology is a directory with one instance shared by all dapps; the
// per-tenant topology is one instance per dapp.
type Directory struct {
	mu    sync.RWMutex
	tanks map[common.Address]*Tank
}

func NewDirectory() *Directory {
	return &Directory{tanks: make(map[common.Address]*Tank)}
}

func (d *Directory) Add(t *Tank) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tanks[t.address]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, t.address.Hex())
	}
	d.tanks[t.address] = t
	return nil
}

func (d *Directory) Get(addr common.Address) (*Tank, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tanks[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, addr.Hex())
	}
	return t, nil
}

// List returns the instance addresses in ascending order.
func (d *Directory) List() []common.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]common.Address, 0, len(d.tanks))
	for addr := range d.tanks {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// instanceCodeHash stands in for the creation code in derived addresses.
var instanceCodeHash = crypto.Keccak256([]byte("gastank.instance.v1"))

// InstanceAddress derives a per-tenant instance address with the CREATE2
// rule, over the deployer, a salt, and the instance's constructor
// parameters. The address is known, and can be funded, before the
// instance is registered anywhere.
func InstanceAddress(deployer common.Address, salt common.Hash, owner, trustedSigner common.Address) common.Address {
	initHash := crypto.Keccak256(
		instanceCodeHash,
		common.LeftPadBytes(owner.Bytes(), 32),
		common.LeftPadBytes(trustedSigner.Bytes(), 32),
	)
	return crypto.CreateAddress2(deployer, salt, initHash)
}
