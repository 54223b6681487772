package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	x402 "github.com/Scottcjn/openclaw-x402"
	"github.com/Scottcjn/openclaw-x402/encoding"
	"github.com/Scottcjn/openclaw-x402/facilitator"
)

const testTreasury = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

// mockFacilitator serves POST /verify, answering settled for transaction
// hashes it has been told about and not_found for everything else.
type mockFacilitator struct {
	server  *httptest.Server
	settled map[string]facilitator.VerifyResponse
	calls   atomic.Int32
}

func newMockFacilitator(t *testing.T) *mockFacilitator {
	t.Helper()
	m := &mockFacilitator{settled: make(map[string]facilitator.VerifyResponse)}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.calls.Add(1)

		var req facilitator.VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode verify request: %v", err)
		}

		response, ok := m.settled[req.PaymentProof.Transaction]
		if !ok {
			response = facilitator.VerifyResponse{Status: facilitator.StatusNotFound}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(m.server.Close)
	return m
}

// settle registers a transaction as settled with the given amount, paid to
// the test treasury in Base USDC.
func (m *mockFacilitator) settle(transaction, amount string) {
	m.settled[transaction] = facilitator.VerifyResponse{
		Status:      facilitator.StatusSettled,
		Amount:      amount,
		PayTo:       testTreasury,
		Asset:       x402.USDCBase,
		Network:     x402.NetworkBase,
		Transaction: transaction,
		Payer:       "0xPayerAddress",
	}
}

func newTestPaywall(t *testing.T, facilitatorURL string, opts ...Option) *Paywall {
	t.Helper()
	cfg := &x402.Config{
		Treasury:       testTreasury,
		FacilitatorURL: facilitatorURL,
	}
	paywall, err := NewPaywall(cfg, opts...)
	if err != nil {
		t.Fatalf("NewPaywall failed: %v", err)
	}
	return paywall
}

func protectedServer(t *testing.T, paywall *Paywall, price string) *httptest.Server {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"data": "premium content"})
	})
	server := httptest.NewServer(paywall.Protect(price, "Premium API access")(handler))
	t.Cleanup(server.Close)
	return server
}

// challengeFrom decodes a 402 response body and returns the requirement.
func challengeFrom(t *testing.T, resp *http.Response) x402.PaymentRequirement {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", resp.StatusCode)
	}
	var body struct {
		Error string                   `json:"error"`
		X402  *x402.PaymentRequirement `json:"x402"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode 402 body: %v", err)
	}
	if body.X402 == nil {
		t.Fatal("402 body missing x402 requirement")
	}
	return *body.X402
}

func payFor(t *testing.T, url, transaction, nonce string) *http.Response {
	t.Helper()
	header, err := encoding.EncodeProof(x402.PaymentProof{
		X402Version: x402.X402Version,
		Transaction: transaction,
		Nonce:       nonce,
	})
	if err != nil {
		t.Fatalf("EncodeProof failed: %v", err)
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set(x402.PaymentHeader, header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func TestProtect_PaymentLifecycle(t *testing.T) {
	mock := newMockFacilitator(t)
	paywall := newTestPaywall(t, mock.server.URL)
	server := protectedServer(t, paywall, "10000")

	// Unpaid request gets a challenge.
	resp, err := http.Get(server.URL + "/api/premium")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	requirement := challengeFrom(t, resp)

	if requirement.Price != "10000" {
		t.Errorf("Expected price 10000, got %s", requirement.Price)
	}
	if requirement.PayTo != testTreasury {
		t.Errorf("Expected treasury payTo, got %s", requirement.PayTo)
	}
	if requirement.Asset != x402.USDCBase || requirement.Network != x402.NetworkBase {
		t.Errorf("Unexpected asset/network: %s / %s", requirement.Asset, requirement.Network)
	}
	if requirement.Nonce == "" {
		t.Fatal("Challenge has no nonce")
	}
	if requirement.Resource != server.URL+"/api/premium" {
		t.Errorf("Unexpected resource URL: %s", requirement.Resource)
	}
	if mock.calls.Load() != 0 {
		t.Errorf("Facilitator consulted for an unpaid request: %d calls", mock.calls.Load())
	}

	// Paid request with a settled transaction succeeds.
	mock.settle("0xabc123", "10000")
	resp = payFor(t, server.URL+"/api/premium", "0xabc123", requirement.Nonce)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for a settled payment, got %d", resp.StatusCode)
	}
	var data map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatalf("Failed to decode protected payload: %v", err)
	}
	if data["data"] != "premium content" {
		t.Errorf("Protected handler did not run: %v", data)
	}

	// Replaying the same proof issues a fresh challenge.
	resp = payFor(t, server.URL+"/api/premium", "0xabc123", requirement.Nonce)
	replay := challengeFrom(t, resp)
	if replay.Nonce == requirement.Nonce {
		t.Error("Replay challenge reused the consumed nonce")
	}
}

func TestProtect_ReplayAcrossResources(t *testing.T) {
	mock := newMockFacilitator(t)
	mock.settle("0xshared", "10000")
	paywall := newTestPaywall(t, mock.server.URL)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux := http.NewServeMux()
	mux.Handle("/api/a", paywall.Protect("10000", "endpoint a")(handler))
	mux.Handle("/api/b", paywall.Protect("10000", "endpoint b")(handler))
	server := httptest.NewServer(mux)
	defer server.Close()

	respA, err := http.Get(server.URL + "/api/a")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	nonceA := challengeFrom(t, respA).Nonce

	resp := payFor(t, server.URL+"/api/a", "0xshared", nonceA)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("First redemption failed: %d", resp.StatusCode)
	}

	// The same transaction must not buy a second resource.
	respB, err := http.Get(server.URL + "/api/b")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	nonceB := challengeFrom(t, respB).Nonce

	resp = payFor(t, server.URL+"/api/b", "0xshared", nonceB)
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("Expected 402 for a spent transaction on another resource, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProtect_MalformedHeader(t *testing.T) {
	mock := newMockFacilitator(t)
	paywall := newTestPaywall(t, mock.server.URL)
	server := protectedServer(t, paywall, "10000")

	for name, header := range map[string]string{
		"not base64":    "!!!not-base64!!!",
		"not json":      "bm90IGpzb24=", // "not json"
		"wrong version": mustEncodeProof(t, x402.PaymentProof{X402Version: 99, Transaction: "0x1", Nonce: "n"}),
	} {
		req, _ := http.NewRequest("GET", server.URL+"/api/premium", nil)
		req.Header.Set(x402.PaymentHeader, header)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: request failed: %v", name, err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, resp.StatusCode)
		}
		resp.Body.Close()
	}
	if mock.calls.Load() != 0 {
		t.Errorf("Facilitator consulted for malformed headers: %d calls", mock.calls.Load())
	}
}

func mustEncodeProof(t *testing.T, proof x402.PaymentProof) string {
	t.Helper()
	header, err := encoding.EncodeProof(proof)
	if err != nil {
		t.Fatalf("EncodeProof failed: %v", err)
	}
	return header
}

func TestProtect_StaleNonce(t *testing.T) {
	mock := newMockFacilitator(t)
	mock.settle("0xabc", "10000")
	paywall := newTestPaywall(t, mock.server.URL)
	server := protectedServer(t, paywall, "10000")

	// A nonce the paywall never issued reads as a stale challenge.
	resp := payFor(t, server.URL+"/api/premium", "0xabc", "bm90LWEtcmVhbC1ub25jZQ")
	requirement := challengeFrom(t, resp)
	if requirement.Nonce == "" {
		t.Error("Stale-nonce challenge carries no fresh nonce")
	}
	if mock.calls.Load() != 0 {
		t.Errorf("Facilitator consulted for a stale nonce: %d calls", mock.calls.Load())
	}
}

func TestProtect_UnsettledPayment(t *testing.T) {
	mock := newMockFacilitator(t)
	paywall := newTestPaywall(t, mock.server.URL)
	server := protectedServer(t, paywall, "10000")

	resp, err := http.Get(server.URL + "/api/premium")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	nonce := challengeFrom(t, resp).Nonce

	// Facilitator has never seen this transaction.
	resp = payFor(t, server.URL+"/api/premium", "0xunknown", nonce)
	challengeFrom(t, resp)
	if mock.calls.Load() != 1 {
		t.Errorf("Expected exactly one facilitator call, got %d", mock.calls.Load())
	}
}

func TestProtect_Underpayment(t *testing.T) {
	mock := newMockFacilitator(t)
	mock.settle("0xcheap", "9999")
	paywall := newTestPaywall(t, mock.server.URL)
	server := protectedServer(t, paywall, "10000")

	resp, err := http.Get(server.URL + "/api/premium")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	nonce := challengeFrom(t, resp).Nonce

	resp = payFor(t, server.URL+"/api/premium", "0xcheap", nonce)
	challengeFrom(t, resp)

	// The underpaid transaction was not consumed; paying the difference is
	// impossible in x402, but a correctly priced transaction still works.
	mock.settle("0xfull", "10000")
	resp, err = http.Get(server.URL + "/api/premium")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	nonce = challengeFrom(t, resp).Nonce
	resp = payFor(t, server.URL+"/api/premium", "0xfull", nonce)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for a full payment, got %d", resp.StatusCode)
	}
}

func TestProtect_FacilitatorDown(t *testing.T) {
	// Point at a closed port so every verification attempt fails.
	paywall := newTestPaywall(t, "http://127.0.0.1:1")
	server := protectedServer(t, paywall, "10000")

	resp, err := http.Get(server.URL + "/api/premium")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	nonce := challengeFrom(t, resp).Nonce

	resp = payFor(t, server.URL+"/api/premium", "0xabc", nonce)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 when the facilitator is down, got %d", resp.StatusCode)
	}
}

func TestProtect_FreeMode(t *testing.T) {
	mock := newMockFacilitator(t)
	paywall := newTestPaywall(t, mock.server.URL)

	for _, price := range []string{"0", ""} {
		server := protectedServer(t, paywall, price)
		resp, err := http.Get(server.URL + "/api/free")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Price %q: expected 200, got %d", price, resp.StatusCode)
		}
		resp.Body.Close()
	}
	if mock.calls.Load() != 0 {
		t.Errorf("Facilitator consulted in free mode: %d calls", mock.calls.Load())
	}
}

func TestProtect_RedemptionInContext(t *testing.T) {
	mock := newMockFacilitator(t)
	mock.settle("0xctx", "10000")
	paywall := newTestPaywall(t, mock.server.URL)

	var event *x402.RedemptionEvent
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event = GetRedemptionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(paywall.Protect("10000", "premium")(handler))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/premium")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	nonce := challengeFrom(t, resp).Nonce

	resp = payFor(t, server.URL+"/api/premium", "0xctx", nonce)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	if event == nil {
		t.Fatal("No redemption in handler context")
	}
	if event.Transaction != "0xctx" {
		t.Errorf("Expected transaction 0xctx, got %s", event.Transaction)
	}
	if event.Payer != "0xPayerAddress" {
		t.Errorf("Expected payer from facilitator, got %s", event.Payer)
	}
	if event.Amount != "10000" {
		t.Errorf("Expected amount 10000, got %s", event.Amount)
	}
}

func TestStatusHandler(t *testing.T) {
	mock := newMockFacilitator(t)
	paywall := newTestPaywall(t, mock.server.URL)
	server := httptest.NewServer(paywall.StatusHandler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode status body: %v", err)
	}
	if body["x402_enabled"] != true {
		t.Error("Expected x402_enabled true")
	}
	if body["treasury"] != testTreasury {
		t.Errorf("Expected treasury %s, got %v", testTreasury, body["treasury"])
	}
	if body["network"] != x402.NetworkBase {
		t.Errorf("Expected network %s, got %v", x402.NetworkBase, body["network"])
	}
	if body["facilitator"] != mock.server.URL {
		t.Errorf("Expected facilitator %s, got %v", mock.server.URL, body["facilitator"])
	}
}

func TestNewPaywall_RejectsMalformedAddresses(t *testing.T) {
	for name, cfg := range map[string]*x402.Config{
		"bad treasury": {Treasury: "not-an-address"},
		"bad asset":    {Treasury: testTreasury, Asset: "definitely-not-a-contract"},
	} {
		_, err := NewPaywall(cfg)
		if !errors.Is(err, x402.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestProtect_UnparseablePriceIsUnavailable(t *testing.T) {
	mock := newMockFacilitator(t)
	paywall := newTestPaywall(t, mock.server.URL)
	server := protectedServer(t, paywall, "ten dollars")

	resp, err := http.Get(server.URL + "/api/premium")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 for a misconfigured price, got %d", resp.StatusCode)
	}
	if mock.calls.Load() != 0 {
		t.Errorf("Facilitator consulted for a misconfigured endpoint: %d calls", mock.calls.Load())
	}
}

func TestGetRedemptionFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if GetRedemptionFromContext(req.Context()) != nil {
		t.Error("Expected nil redemption for an unprotected request")
	}
}
