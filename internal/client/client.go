// Package client is a Go client for the gas tank HTTP API.
package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/0gfoundation/0g-gastank/internal/api"
	"github.com/0gfoundation/0g-gastank/internal/auth"
	"github.com/0gfoundation/0g-gastank/internal/relayop"
)

const signatureTTL = 2 * time.Minute

// Client talks to one tank instance. key signs state-changing requests and
// may be nil for read-only use.
type Client struct {
	baseURL  string
	instance common.Address
	key      *ecdsa.PrivateKey
	http     *http.Client
}

func New(baseURL string, instance common.Address, key *ecdsa.PrivateKey) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		instance: instance,
		key:      key,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gastank api: status %d: %s", e.Status, e.Message)
}

func (c *Client) tankPath(suffix string) string {
	return "/v1/tanks/" + c.instance.Hex() + suffix
}

// do sends body as JSON. A non-empty action signs the request.
func (c *Client) do(ctx context.Context, method, path, action string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if action != "" {
		if c.key == nil {
			return fmt.Errorf("%s requires a signing key", action)
		}
		headers, err := auth.Headers(auth.SignedRequest{
			Action:    action,
			ExpiresAt: time.Now().Add(signatureTTL).Unix(),
			Instance:  c.instance.Hex(),
			Nonce:     uuid.NewString(),
			Payload:   payload,
		}, c.key)
		if err != nil {
			return err
		}
		for k, vs := range headers {
			req.Header[k] = vs
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e api.ErrorResponse
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (c *Client) Instances(ctx context.Context) ([]common.Address, error) {
	var out api.InstancesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/tanks", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Instances, nil
}

func (c *Client) Balance(ctx context.Context, dapp common.Address) (*big.Int, error) {
	var out api.AmountResponse
	if err := c.do(ctx, http.MethodGet, c.tankPath("/balances/"+dapp.Hex()), "", nil, &out); err != nil {
		return nil, err
	}
	return out.Amount, nil
}

func (c *Client) Payout(ctx context.Context, addr common.Address) (*big.Int, error) {
	var out api.AmountResponse
	if err := c.do(ctx, http.MethodGet, c.tankPath("/payouts/"+addr.Hex()), "", nil, &out); err != nil {
		return nil, err
	}
	return out.Amount, nil
}

func (c *Client) Nonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	var out api.NonceResponse
	if err := c.do(ctx, http.MethodGet, c.tankPath("/nonces/"+sender.Hex()), "", nil, &out); err != nil {
		return nil, err
	}
	return out.Nonce, nil
}

func (c *Client) Settings(ctx context.Context) (*api.SettingsResponse, error) {
	var out api.SettingsResponse
	return &out, c.do(ctx, http.MethodGet, c.tankPath("/settings"), "", nil, &out)
}

func (c *Client) Hash(ctx context.Context, op *relayop.Operation) (*api.HashResponse, error) {
	var out api.HashResponse
	return &out, c.do(ctx, http.MethodPost, c.tankPath("/hash"), "", op, &out)
}

// ── Signed ────────────────────────────────────────────────────────────────────

// Deposit credits amount to dapp and returns the new balance.
func (c *Client) Deposit(ctx context.Context, dapp common.Address, amount *big.Int) (*big.Int, error) {
	var out api.AmountResponse
	req := api.DepositRequest{Dapp: dapp, Amount: amount}
	if err := c.do(ctx, http.MethodPost, c.tankPath("/deposits"), api.ActionDeposit, req, &out); err != nil {
		return nil, err
	}
	return out.Amount, nil
}

// Withdraw moves amount from dapp to recipient and returns the new balance.
func (c *Client) Withdraw(ctx context.Context, dapp, recipient common.Address, amount *big.Int) (*big.Int, error) {
	var out api.AmountResponse
	req := api.WithdrawRequest{Dapp: dapp, Recipient: recipient, Amount: amount}
	if err := c.do(ctx, http.MethodPost, c.tankPath("/withdrawals"), api.ActionWithdraw, req, &out); err != nil {
		return nil, err
	}
	return out.Amount, nil
}

// Relay submits op with the client's key as executor.
func (c *Client) Relay(ctx context.Context, op *relayop.Operation) (*relayop.Settlement, error) {
	var out relayop.Settlement
	return &out, c.do(ctx, http.MethodPost, c.tankPath("/relay"), api.ActionRelay, op, &out)
}

func (c *Client) SetBaseCost(ctx context.Context, baseCost uint64) (*api.SettingsResponse, error) {
	var out api.SettingsResponse
	req := api.BaseCostRequest{BaseCost: baseCost}
	return &out, c.do(ctx, http.MethodPut, c.tankPath("/settings/base-cost"), api.ActionSetBaseCost, req, &out)
}

func (c *Client) SetTrustedSigner(ctx context.Context, signer common.Address) (*api.SettingsResponse, error) {
	var out api.SettingsResponse
	req := api.TrustedSignerRequest{TrustedSigner: signer}
	return &out, c.do(ctx, http.MethodPut, c.tankPath("/settings/trusted-signer"), api.ActionSetTrustedSigner, req, &out)
}

func (c *Client) TransferOwnership(ctx context.Context, owner common.Address) (*api.SettingsResponse, error) {
	var out api.SettingsResponse
	req := api.OwnerRequest{Owner: owner}
	return &out, c.do(ctx, http.MethodPut, c.tankPath("/settings/owner"), api.ActionTransferOwnership, req, &out)
}
