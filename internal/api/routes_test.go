package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kjannette/trahn-swap/internal/config"
	"github.com/kjannette/trahn-swap/internal/ethereum"
	"github.com/kjannette/trahn-swap/internal/ethereum/ethtest"
	"github.com/kjannette/trahn-swap/internal/risk"
	"github.com/kjannette/trahn-swap/internal/service"
	"github.com/kjannette/trahn-swap/internal/swap"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

var (
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	uniRouter = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	wethAddr  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

type testAPI struct {
	handler http.Handler
	svc     *service.Service
	chain   *ethtest.Chain
	token   *ethtest.Token
	router  *ethtest.Router
	owner   common.Address
}

func newTestAPI(t *testing.T, apiKey string) *testAPI {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	chain := ethtest.NewChain(1)
	token := ethtest.NewToken("TKN", 0)
	router := &ethtest.Router{
		Address: uniRouter,
		Amounts: ethtest.FixedAmounts(1000, 500),
		Tokens:  map[common.Address]*ethtest.Token{tokenAddr: token},
	}
	chain.Deploy(tokenAddr, token)
	chain.Deploy(uniRouter, router)

	cfg := &config.Config{
		AppName:               "TrahnSwap",
		PrivateKey:            hex.EncodeToString(crypto.FromECDSA(key)),
		ChainID:               1,
		WETHAddress:           wethAddr.Hex(),
		UniswapRouterAddress:  uniRouter.Hex(),
		DefaultVenue:          "uniswap-v2",
		SlippageTolerance:     1,
		DeadlineSeconds:       1200,
		ApprovalPolicy:        config.ApprovalExact,
		ConfirmTimeoutSeconds: 5,
		ReceiptPollSeconds:    1,
		AutoApprove:           true,
	}
	svc, err := service.New(cfg, service.Options{Backend: chain})
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	t.Cleanup(svc.Close)

	srv := NewServer(svc, nil, 0, apiKey, "")
	return &testAPI{
		handler: srv.Handler(),
		svc:     svc,
		chain:   chain,
		token:   token,
		router:  router,
		owner:   crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestSession_ConnectAndDisconnect(t *testing.T) {
	a := newTestAPI(t, "")

	rr := a.do(t, http.MethodGet, "/v1/session", nil)
	if got := decode[sessionResponse](t, rr); got.Connected {
		t.Fatal("expected no session before connect")
	}

	rr = a.do(t, http.MethodPost, "/v1/session/connect", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[sessionResponse](t, rr)
	if !got.Connected || got.Session.Address != a.owner || got.Session.ChainID != 1 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.Explorer != "https://etherscan.io/address/"+a.owner.Hex() {
		t.Fatalf("unexpected explorer link %q", got.Explorer)
	}

	rr = a.do(t, http.MethodPost, "/v1/session/disconnect", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("disconnect: expected 200, got %d", rr.Code)
	}
	rr = a.do(t, http.MethodGet, "/v1/session", nil)
	if decode[sessionResponse](t, rr).Connected {
		t.Fatal("expected session cleared after disconnect")
	}
}

func TestSession_SwitchUnknownChain(t *testing.T) {
	a := newTestAPI(t, "")
	rr := a.do(t, http.MethodPost, "/v1/session/chain", switchChainRequest{ChainID: 31337})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown chain, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = a.do(t, http.MethodPost, "/v1/session/chain", map[string]any{"chainId": 0})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for chainId 0, got %d", rr.Code)
	}
}

func TestBalances_NativeRequiresSession(t *testing.T) {
	a := newTestAPI(t, "")
	rr := a.do(t, http.MethodGet, "/v1/balances/native", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 without session, got %d", rr.Code)
	}
}

func TestBalances_NativeAndToken(t *testing.T) {
	a := newTestAPI(t, "")
	a.chain.SetBalance(a.owner, big.NewInt(1_500_000_000_000_000_000))
	a.token.SetBalance(a.owner, big.NewInt(42))
	if rr := a.do(t, http.MethodPost, "/v1/session/connect", nil); rr.Code != http.StatusOK {
		t.Fatalf("connect: %d", rr.Code)
	}

	rr := a.do(t, http.MethodGet, "/v1/balances/native", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("native: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	native := decode[balanceResponse](t, rr)
	if native.Balance.Raw.String() != "1500000000000000000" || native.Balance.Decimals != 18 {
		t.Fatalf("unexpected native balance: %+v", native.Balance)
	}
	if native.USD != nil {
		t.Fatal("expected no USD value without a price source")
	}

	rr = a.do(t, http.MethodGet, "/v1/balances/token/"+tokenAddr.Hex(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("token: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	tok := decode[balanceResponse](t, rr)
	if tok.Balance.Raw.Int64() != 42 || tok.Token.Symbol != "TKN" {
		t.Fatalf("unexpected token balance: %+v", tok)
	}
}

func TestBalances_ByAddress(t *testing.T) {
	a := newTestAPI(t, "")
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	a.token.SetBalance(other, big.NewInt(7))

	rr := a.do(t, http.MethodGet, "/v1/balances/token/"+tokenAddr.Hex()+"?address="+other.Hex(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[balanceResponse](t, rr); got.Balance.Raw.Int64() != 7 || got.Owner != other.Hex() {
		t.Fatalf("unexpected balance: %+v", got)
	}

	rr = a.do(t, http.MethodGet, "/v1/balances/native?address=nothex", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad address, got %d", rr.Code)
	}
}

func TestQuote_Scenario(t *testing.T) {
	a := newTestAPI(t, "")
	a.do(t, http.MethodPost, "/v1/session/connect", nil)

	rr := a.do(t, http.MethodPost, "/v1/quote", swap.Params{Amount: "1000", TokenIn: tokenAddr.Hex(), TokenOut: "ETH"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		AmountOut    struct{ Raw string } `json:"amountOut"`
		AmountOutMin struct{ Raw string } `json:"amountOutMin"`
		SlippageBps  int64                `json:"slippageBps"`
		Venue        string               `json:"venue"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.AmountOut.Raw != "500" || body.AmountOutMin.Raw != "495" || body.SlippageBps != 100 {
		t.Fatalf("unexpected quote: %+v", body)
	}
	if body.Venue != "uniswap-v2" {
		t.Fatalf("expected default venue, got %q", body.Venue)
	}
	if a.chain.SentCount() != 0 {
		t.Fatal("quote must not send transactions")
	}
}

func TestQuote_Errors(t *testing.T) {
	a := newTestAPI(t, "")

	rr := a.do(t, http.MethodPost, "/v1/quote", swap.Params{Amount: "1", TokenIn: tokenAddr.Hex(), TokenOut: "ETH"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("unconnected: expected 409, got %d", rr.Code)
	}

	a.do(t, http.MethodPost, "/v1/session/connect", nil)
	rr = a.do(t, http.MethodPost, "/v1/quote", swap.Params{Amount: "-1", TokenIn: tokenAddr.Hex(), TokenOut: "ETH"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("negative amount: expected 400, got %d", rr.Code)
	}

	rr = a.do(t, http.MethodPost, "/v1/quote", map[string]any{"amount": "1", "bogus": true})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", rr.Code)
	}

	a.router.Amounts = nil
	rr = a.do(t, http.MethodPost, "/v1/quote", swap.Params{Amount: "1", TokenIn: tokenAddr.Hex(), TokenOut: "ETH"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("no pool: expected 422, got %d", rr.Code)
	}
}

func TestSwap_Confirmed(t *testing.T) {
	a := newTestAPI(t, "")
	a.do(t, http.MethodPost, "/v1/session/connect", nil)

	rr := a.do(t, http.MethodPost, "/v1/swaps", swap.Params{Amount: "1000", TokenIn: tokenAddr.Hex(), TokenOut: "ETH"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	res := decode[swap.Result](t, rr)
	if res.State != swap.Confirmed || res.TxHash == nil || res.ApprovalTx == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.HasPrefix(res.ExplorerURL, "https://etherscan.io/tx/") {
		t.Fatalf("unexpected explorer URL %q", res.ExplorerURL)
	}
	if a.chain.SentCount() != 2 {
		t.Fatalf("expected approve + swap, got %d sent", a.chain.SentCount())
	}
}

func TestSwap_FailureCarriesResult(t *testing.T) {
	a := newTestAPI(t, "")
	a.do(t, http.MethodPost, "/v1/session/connect", nil)
	a.router.Amounts = nil

	rr := a.do(t, http.MethodPost, "/v1/swaps", swap.Params{Amount: "1000", TokenIn: tokenAddr.Hex(), TokenOut: "ETH"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[swapFailure](t, rr)
	if got.Error == "" || got.Result == nil || got.Result.State != swap.Failed {
		t.Fatalf("unexpected failure body: %+v", got)
	}
}

func TestSwapHistory_NoDatabase(t *testing.T) {
	a := newTestAPI(t, "")
	rr := a.do(t, http.MethodGet, "/v1/swaps", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without database, got %d", rr.Code)
	}

	rr = a.do(t, http.MethodGet, "/v1/swaps?mode=paper", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad mode, got %d", rr.Code)
	}
}

func TestLinks(t *testing.T) {
	a := newTestAPI(t, "")
	rr := a.do(t, http.MethodGet, "/v1/links", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	before := decode[[]map[string]string](t, rr)

	a.do(t, http.MethodPost, "/v1/session/connect", nil)
	rr = a.do(t, http.MethodGet, "/v1/links", nil)
	after := decode[[]map[string]string](t, rr)
	if len(after) != len(before)+1 {
		t.Fatalf("expected a wallet link once connected, got %d vs %d", len(after), len(before))
	}
}

func TestHealth_NoDatabase(t *testing.T) {
	a := newTestAPI(t, "secret")
	rr := a.do(t, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	got := decode[healthResponse](t, rr)
	if got.Services.Database != "disabled" || got.Services.Chain != "connected" || got.Services.Wallet != "disconnected" {
		t.Fatalf("unexpected health: %+v", got.Services)
	}
}

func TestMetrics_CountsRequests(t *testing.T) {
	a := newTestAPI(t, "secret")
	if rr := a.do(t, http.MethodGet, "/v1/session", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	a.do(t, http.MethodGet, "/health", nil)

	if v := testutil.ToFloat64(a.svc.Metrics.HTTPRequests.WithLabelValues("GET /health", "200")); v != 1 {
		t.Fatalf("expected 1 health request counted, got %f", v)
	}
	if v := testutil.ToFloat64(a.svc.Metrics.HTTPRequests.WithLabelValues("unmatched", "401")); v != 1 {
		t.Fatalf("expected 1 rejected request counted, got %f", v)
	}

	rr := a.do(t, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "trahn_swap_api_requests_total") {
		t.Fatalf("expected exposition with request counter, got %d", rr.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", swap.ErrInvalidRequest), http.StatusBadRequest},
		{wallet.ErrUserRejected, http.StatusForbidden},
		{fmt.Errorf("%w: approve", swap.ErrApprovalRejected), http.StatusForbidden},
		{fmt.Errorf("%w: %w", swap.ErrApprovalRejected, wallet.ErrUserRejected), http.StatusForbidden},
		{wallet.ErrUnconnected, http.StatusConflict},
		{swap.ErrWrongNetwork, http.StatusConflict},
		{swap.ErrSwapInProgress, http.StatusConflict},
		{swap.ErrInsufficientLiquidity, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: daily limit", risk.ErrBlocked), http.StatusUnprocessableEntity},
		{ethereum.ErrTransactionReverted, http.StatusUnprocessableEntity},
		{wallet.ErrNoProviderFound, http.StatusServiceUnavailable},
		{ethereum.ErrTimedOut, http.StatusGatewayTimeout},
		{fmt.Errorf("%w: dial", ethereum.ErrRPC), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]*bool{"": nil, "?mode=all": nil}
	for q, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/swaps"+q, nil)
		got, err := parseMode(req)
		if err != nil || got != want {
			t.Fatalf("parseMode(%q) = %v, %v", q, got, err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/swaps?mode=dry", nil)
	if got, err := parseMode(req); err != nil || got == nil || !*got {
		t.Fatalf("expected dry=true, got %v, %v", got, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/v1/swaps?mode=live", nil)
	if got, err := parseMode(req); err != nil || got == nil || *got {
		t.Fatalf("expected dry=false, got %v, %v", got, err)
	}
}
