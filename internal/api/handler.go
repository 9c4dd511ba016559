// Package api exposes gas tank instances over HTTP.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/auth"
	"github.com/0gfoundation/0g-gastank/internal/gastank"
	"github.com/0gfoundation/0g-gastank/internal/ratelimit"
	"github.com/0gfoundation/0g-gastank/internal/relayop"
)

// Handler wires the tank routes onto a Gin engine.
type Handler struct {
	tanks    *gastank.Directory
	rdb      redis.UniversalClient
	limiter  *ratelimit.MapLimiter
	gatherer prometheus.Gatherer
	log      *zap.Logger
	now      func() time.Time
}

// NewHandler builds a Handler. rdb backs signed-request nonce dedup; a nil
// limiter disables relay rate limiting; a nil gatherer hides /metrics.
func NewHandler(tanks *gastank.Directory, rdb redis.UniversalClient, limiter *ratelimit.MapLimiter, gatherer prometheus.Gatherer, log *zap.Logger) *Handler {
	return &Handler{
		tanks:    tanks,
		rdb:      rdb,
		limiter:  limiter,
		gatherer: gatherer,
		log:      log,
		now:      time.Now,
	}
}

// Register mounts all routes.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.handleHealth)
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	v1.GET("/tanks", h.handleInstances)

	tank := v1.Group("/tanks/:instance", h.withTank)

	// ── Reads ──────────────────────────────────────────────────────────────
	tank.GET("/balances/:dapp", h.handleBalance)
	tank.GET("/payouts/:addr", h.handlePayout)
	tank.GET("/nonces/:sender", h.handleNonce)
	tank.GET("/settings", h.handleSettings)
	tank.POST("/hash", h.handleHash)

	// ── Ledger ─────────────────────────────────────────────────────────────
	tank.POST("/deposits", h.signed(ActionDeposit), h.handleDeposit)
	tank.POST("/withdrawals", h.signed(ActionWithdraw), h.handleWithdraw)

	// ── Relay ──────────────────────────────────────────────────────────────
	tank.POST("/relay", h.signed(ActionRelay), h.rateLimited, h.handleRelay)

	// ── Owner settings ─────────────────────────────────────────────────────
	tank.PUT("/settings/base-cost", h.signed(ActionSetBaseCost), h.handleSetBaseCost)
	tank.PUT("/settings/trusted-signer", h.signed(ActionSetTrustedSigner), h.handleSetTrustedSigner)
	tank.PUT("/settings/owner", h.signed(ActionTransferOwnership), h.handleTransferOwnership)
}

// ── Middleware ──────────────────────────────────────────────────────────────

const tankKey = "tank"

// withTank resolves :instance to a registered tank.
func (h *Handler) withTank(c *gin.Context) {
	addr, err := parseAddress(c.Param("instance"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	t, err := h.tanks.Get(addr)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set(tankKey, t)
	c.Next()
}

func (h *Handler) signed(action string) gin.HandlerFunc {
	return auth.Middleware(h.rdb, action)
}

func (h *Handler) rateLimited(c *gin.Context) {
	caller, _ := auth.Caller(c)
	if !h.limiter.Allow(caller.Hex(), h.now()) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return
	}
	c.Next()
}

func tankOf(c *gin.Context) *gastank.Tank {
	return c.MustGet(tankKey).(*gastank.Tank)
}

func callerOf(c *gin.Context) common.Address {
	caller, _ := auth.Caller(c)
	return caller
}

// ── Reads ───────────────────────────────────────────────────────────────────

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "instances": len(h.tanks.List())})
}

func (h *Handler) handleInstances(c *gin.Context) {
	c.JSON(http.StatusOK, InstancesResponse{Instances: h.tanks.List()})
}

func (h *Handler) handleBalance(c *gin.Context) {
	t := tankOf(c)
	dapp, err := parseAddress(c.Param("dapp"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	bal, err := t.BalanceOf(c.Request.Context(), dapp)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AmountResponse{Instance: t.Address(), Account: dapp, Amount: bal})
}

func (h *Handler) handlePayout(c *gin.Context) {
	t := tankOf(c)
	addr, err := parseAddress(c.Param("addr"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	paid, err := t.PayoutOf(c.Request.Context(), addr)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AmountResponse{Instance: t.Address(), Account: addr, Amount: paid})
}

func (h *Handler) handleNonce(c *gin.Context) {
	t := tankOf(c)
	sender, err := parseAddress(c.Param("sender"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	n, err := t.ExpectedNonce(c.Request.Context(), sender)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NonceResponse{Instance: t.Address(), Sender: sender, Nonce: n})
}

func (h *Handler) handleSettings(c *gin.Context) {
	t := tankOf(c)
	s, err := t.Settings(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SettingsResponse{
		Instance:         t.Address(),
		ChainID:          t.Domain().ChainID,
		Owner:            s.Owner,
		TrustedSigner:    s.TrustedSigner,
		BaseCost:         s.BaseCost,
		FailedCallPolicy: string(t.Policy()),
	})
}

func (h *Handler) handleHash(c *gin.Context) {
	var op relayop.Operation
	if !h.bind(c, &op) {
		return
	}
	digest, err := tankOf(c).Hash(&op)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, HashResponse{Digest: digest, SigningHash: relayop.SigningHash(digest)})
}

// ── Ledger ──────────────────────────────────────────────────────────────────

func (h *Handler) handleDeposit(c *gin.Context) {
	var req DepositRequest
	if !h.bind(c, &req) {
		return
	}
	t := tankOf(c)
	if err := t.Deposit(c.Request.Context(), req.Dapp, req.Amount); err != nil {
		h.writeError(c, err)
		return
	}
	h.respondBalance(c, t, req.Dapp)
}

func (h *Handler) handleWithdraw(c *gin.Context) {
	var req WithdrawRequest
	if !h.bind(c, &req) {
		return
	}
	t := tankOf(c)
	if err := t.Withdraw(c.Request.Context(), callerOf(c), req.Dapp, req.Recipient, req.Amount); err != nil {
		h.writeError(c, err)
		return
	}
	h.respondBalance(c, t, req.Dapp)
}

func (h *Handler) respondBalance(c *gin.Context, t *gastank.Tank, dapp common.Address) {
	bal, err := t.BalanceOf(c.Request.Context(), dapp)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AmountResponse{Instance: t.Address(), Account: dapp, Amount: bal})
}

// ── Relay ───────────────────────────────────────────────────────────────────

// handleRelay settles an operation; the authenticated caller is the executor.
func (h *Handler) handleRelay(c *gin.Context) {
	var op RelayRequest
	if !h.bind(c, &op) {
		return
	}
	s, err := tankOf(c).HandleRelayOperation(c.Request.Context(), callerOf(c), &op)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ── Owner settings ──────────────────────────────────────────────────────────

func (h *Handler) handleSetBaseCost(c *gin.Context) {
	var req BaseCostRequest
	if !h.bind(c, &req) {
		return
	}
	if err := tankOf(c).SetBaseCost(c.Request.Context(), callerOf(c), req.BaseCost); err != nil {
		h.writeError(c, err)
		return
	}
	h.handleSettings(c)
}

func (h *Handler) handleSetTrustedSigner(c *gin.Context) {
	var req TrustedSignerRequest
	if !h.bind(c, &req) {
		return
	}
	if err := tankOf(c).SetTrustedSigner(c.Request.Context(), callerOf(c), req.TrustedSigner); err != nil {
		h.writeError(c, err)
		return
	}
	h.handleSettings(c)
}

func (h *Handler) handleTransferOwnership(c *gin.Context) {
	var req OwnerRequest
	if !h.bind(c, &req) {
		return
	}
	if err := tankOf(c).TransferOwnership(c.Request.Context(), callerOf(c), req.Owner); err != nil {
		h.writeError(c, err)
		return
	}
	h.handleSettings(c)
}

// ── Helpers ─────────────────────────────────────────────────────────────────

func (h *Handler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", errBadRequest, s)
	}
	return common.HexToAddress(s), nil
}
