package auth

import (
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testInstance = "0x7A4C000000000000000000000000000000000001"
	testPath     = "/v1/tanks/" + testInstance + "/withdrawals"
	testBody     = `{"dapp":"0xDA99000000000000000000000000000000000001","amount":"5"}`
)

// testSetup creates a miniredis instance and a Gin engine with the auth
// middleware in front of a handler that echoes the caller.
func testSetup(t *testing.T) (*miniredis.Miniredis, *gin.Engine) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	r := gin.New()
	r.POST("/v1/tanks/:instance/withdrawals", Middleware(rdb, "withdraw"), func(c *gin.Context) {
		caller, ok := Caller(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no caller"})
			return
		}
		var body map[string]string
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallet": caller.Hex(), "amount": body["amount"]})
	})
	return mr, r
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func signedRequest(expiresOffset time.Duration, nonce string) SignedRequest {
	return SignedRequest{
		Action:    "withdraw",
		ExpiresAt: time.Now().Add(expiresOffset).Unix(),
		Instance:  testInstance,
		Nonce:     nonce,
		Payload:   json.RawMessage(testBody),
	}
}

// buildRequest signs sr with key and attaches body.
func buildRequest(t *testing.T, key *ecdsa.PrivateKey, sr SignedRequest, body string) *http.Request {
	t.Helper()
	headers, err := Headers(sr, key)
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, testPath, strings.NewReader(body))
	req.Header = headers
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, map[string]string) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

// ── accepted ──────────────────────────────────────────────────────────────────

func TestMiddleware_ValidRequest(t *testing.T) {
	_, r := testSetup(t)
	key := newKey(t)

	w, resp := serve(r, buildRequest(t, key, signedRequest(2*time.Minute, "n-valid"), testBody))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if want := crypto.PubkeyToAddress(key.PublicKey).Hex(); resp["wallet"] != want {
		t.Errorf("wallet: got %q, want %q", resp["wallet"], want)
	}
	// The handler still sees the body.
	if resp["amount"] != "5" {
		t.Errorf("amount: got %q", resp["amount"])
	}
}

func TestMiddleware_BodyWhitespaceIgnored(t *testing.T) {
	_, r := testSetup(t)
	body := "{\n  \"dapp\": \"0xDA99000000000000000000000000000000000001\",\n  \"amount\": \"5\"\n}"

	w, _ := serve(r, buildRequest(t, newKey(t), signedRequest(time.Minute, "n-ws"), body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMiddleware_InstanceCaseInsensitive(t *testing.T) {
	_, r := testSetup(t)
	sr := signedRequest(time.Minute, "n-case")
	sr.Instance = strings.ToLower(testInstance)

	w, _ := serve(r, buildRequest(t, newKey(t), sr, testBody))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// ── rejected ──────────────────────────────────────────────────────────────────

func TestMiddleware_MissingHeaders(t *testing.T) {
	_, r := testSetup(t)
	w, _ := serve(r, httptest.NewRequest(http.MethodPost, testPath, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*SignedRequest)
		body    string
		wantErr string
	}{
		{"expired", func(sr *SignedRequest) { sr.ExpiresAt = time.Now().Add(-time.Second).Unix() }, testBody, "request expired"},
		{"too far in future", func(sr *SignedRequest) { sr.ExpiresAt = time.Now().Add(10 * time.Minute).Unix() }, testBody, "expires_at too far in future"},
		{"other action", func(sr *SignedRequest) { sr.Action = "set_base_cost" }, testBody, "action mismatch"},
		{"other instance", func(sr *SignedRequest) { sr.Instance = "0x7A4C000000000000000000000000000000000002" }, testBody, "instance mismatch"},
		{"no nonce", func(sr *SignedRequest) { sr.Nonce = "" }, testBody, "missing nonce"},
		{"body swapped", func(*SignedRequest) {}, `{"dapp":"0xDA99000000000000000000000000000000000001","amount":"500"}`, "payload mismatch"},
		{"body not json", func(*SignedRequest) {}, `amount=5`, "payload mismatch"},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, r := testSetup(t)
			sr := signedRequest(time.Minute, "n-reject-"+string(rune('a'+i)))
			tc.mutate(&sr)
			w, resp := serve(r, buildRequest(t, newKey(t), sr, tc.body))
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
			}
			if resp["error"] != tc.wantErr {
				t.Errorf("error: got %q, want %q", resp["error"], tc.wantErr)
			}
		})
	}
}

func TestMiddleware_InvalidSignature(t *testing.T) {
	_, r := testSetup(t)

	req := buildRequest(t, newKey(t), signedRequest(2*time.Minute, "n-badsig"), testBody)
	req.Header.Set(HeaderAddress, "0x000000000000000000000000000000000000dEaD")
	w, resp := serve(r, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	if resp["error"] != "invalid signature" {
		t.Errorf("unexpected error: %s", resp["error"])
	}
}

func TestMiddleware_NonceReplay(t *testing.T) {
	_, r := testSetup(t)

	first := buildRequest(t, newKey(t), signedRequest(2*time.Minute, "n-replay"), testBody)
	w1, _ := serve(r, first)
	if w1.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d: %s", w1.Code, w1.Body.String())
	}

	// A different wallet reusing the nonce is still blocked.
	second := buildRequest(t, newKey(t), signedRequest(2*time.Minute, "n-replay"), testBody)
	w2, resp := serve(r, second)
	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("replay: expected 401, got %d: %s", w2.Code, w2.Body.String())
	}
	if resp["error"] != "nonce already used" {
		t.Errorf("unexpected error: %s", resp["error"])
	}
}

func TestMiddleware_NonceTTL(t *testing.T) {
	mr, r := testSetup(t)

	w, _ := serve(r, buildRequest(t, newKey(t), signedRequest(2*time.Minute, "n-ttl"), testBody))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	key := "gastank:auth:nonce:n-ttl"
	if ttl := mr.TTL(key); ttl <= 0 || ttl > 2*time.Minute {
		t.Fatalf("nonce ttl: %v", ttl)
	}
	mr.FastForward(3 * time.Minute)
	if mr.Exists(key) {
		t.Fatal("nonce key outlived its request")
	}
}
