package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"reservehook/core/state"
	"reservehook/crypto"
	"reservehook/native/hook"
	"reservehook/native/pool"
	"reservehook/native/reserve"
	"reservehook/native/router"
	"reservehook/native/yield"
	"reservehook/storage"
)

func makeAddress(b byte) crypto.Address {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = b
	}
	return crypto.NewAddress(crypto.NRVPrefix, raw)
}

func unit(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), wei)
}

type testServer struct {
	http   *httptest.Server
	state  *state.Manager
	trader crypto.Address
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())

	ledgerAddr := makeAddress(0x01)
	venueAddr := makeAddress(0x02)
	hookAddr := makeAddress(0x03)
	poolAddr := makeAddress(0x04)
	routerAddr := makeAddress(0x05)

	venue := yield.NewStrategyVenue(st, venueAddr, ledgerAddr)
	ledger := reserve.NewEngine(ledgerAddr)
	ledger.SetState(st)
	ledger.AttachVenue(venue)
	thresholdWad := new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)
	if err := ledger.Bootstrap(makeAddress(0x20), makeAddress(0x21), thresholdWad); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	pools := pool.NewManager(poolAddr)
	pools.SetState(st)
	settlementHook := hook.NewReserveHook(hookAddr, pools, ledger)
	key := pool.PoolKey{Asset0: pool.AssetNRV, Asset1: pool.AssetZRV, FeeBps: 0, Spacing: 1}
	if _, err := pools.Initialize(hookAddr, key, settlementHook); err != nil {
		t.Fatalf("initialize pair: %v", err)
	}

	// Seed escrow working capital for the input leg of swaps, and fund the
	// trader with native asset only.
	trader := makeAddress(0x10)
	for _, seed := range []struct {
		addr crypto.Address
		nrv  *big.Int
		zrv  *big.Int
	}{
		{pools.ModuleAddress(), unit(50), unit(50)},
		{trader, unit(100), big.NewInt(0)},
	} {
		acc, err := st.GetAccount(seed.addr)
		if err != nil {
			t.Fatalf("get account: %v", err)
		}
		acc.BalanceNRV = new(big.Int).Set(seed.nrv)
		acc.BalanceZRV = new(big.Int).Set(seed.zrv)
		if err := st.PutAccount(seed.addr, acc); err != nil {
			t.Fatalf("put account: %v", err)
		}
	}
	for _, asset := range []string{pool.AssetNRV, pool.AssetZRV} {
		if _, err := pools.Sync(asset); err != nil {
			t.Fatalf("sync: %v", err)
		}
	}

	swaps := router.NewRouter(routerAddr, pools, key)
	swaps.SetState(st)

	server := NewServer(st, ledger, swaps, nil)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return &testServer{http: ts, state: st, trader: trader}
}

func (s *testServer) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]string) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(s.http.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()
	decoded := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func (s *testServer) get(t *testing.T, path string) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := http.Get(s.http.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer resp.Body.Close()
	decoded := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestDepositAndStatus(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.post(t, "/v1/reserve/deposit", depositRequest{
		Caller:       s.trader.String(),
		NativeAmount: unit(10).String(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["amount"] != unit(10).String() {
		t.Fatalf("expected minted amount %s, got %s", unit(10), body["amount"])
	}

	resp, status := s.get(t, "/v1/reserve/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if status["totalIssued"] != unit(10).String() {
		t.Fatalf("expected total issued %s, got %s", unit(10), status["totalIssued"])
	}
	if status["idleReserve"] != unit(1).String() {
		t.Fatalf("expected idle %s, got %s", unit(1), status["idleReserve"])
	}
}

func TestWithdrawRejectsOverdraw(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.post(t, "/v1/reserve/withdraw", withdrawRequest{
		Caller: s.trader.String(),
		Amount: unit(10).String(),
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestSwapEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.post(t, "/v1/swap", swapRequest{
		Requester:       s.trader.String(),
		ZeroForOne:      true,
		AmountSpecified: new(big.Int).Neg(unit(10)).String(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["amount0"] != new(big.Int).Neg(unit(10)).String() {
		t.Fatalf("expected amount0 -10 units, got %s", body["amount0"])
	}
	if body["amount1"] != unit(10).String() {
		t.Fatalf("expected amount1 +10 units, got %s", body["amount1"])
	}
}

func TestSwapValidation(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.post(t, "/v1/swap", swapRequest{
		Requester:       s.trader.String(),
		AmountSpecified: "0",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp, _ = s.post(t, "/v1/swap", swapRequest{
		Requester:       "nonsense",
		AmountSpecified: "-10",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad address, got %d", resp.StatusCode)
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.get(t, "/healthz")
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
}
