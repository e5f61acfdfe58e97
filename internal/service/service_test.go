package service

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-swap/internal/config"
	"github.com/kjannette/trahn-swap/internal/ethereum/ethtest"
	"github.com/kjannette/trahn-swap/internal/models"
	"github.com/kjannette/trahn-swap/internal/repository"
	"github.com/kjannette/trahn-swap/internal/risk"
	"github.com/kjannette/trahn-swap/internal/swap"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

var (
	tokenAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	uniRouter  = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	wethAddr   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	sushiRoute = common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F")
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &config.Config{
		AppName:                "TrahnSwap",
		PrivateKey:             hex.EncodeToString(crypto.FromECDSA(key)),
		ChainID:                1,
		WETHAddress:            wethAddr.Hex(),
		UniswapRouterAddress:   uniRouter.Hex(),
		SushiSwapRouterAddress: sushiRoute.Hex(),
		DefaultVenue:           "uniswap-v2",
		SlippageTolerance:      1,
		DeadlineSeconds:        1200,
		ApprovalPolicy:         config.ApprovalExact,
		ConfirmTimeoutSeconds:  5,
		ReceiptPollSeconds:     1,
		AutoApprove:            true,
		WatchIntervalSeconds:   60,
	}
}

type fixture struct {
	chain  *ethtest.Chain
	token  *ethtest.Token
	router *ethtest.Router
}

func newFixture() *fixture {
	chain := ethtest.NewChain(1)
	token := ethtest.NewToken("TKN", 0)
	router := &ethtest.Router{
		Address: uniRouter,
		Amounts: ethtest.FixedAmounts(1000, 500),
		Tokens:  map[common.Address]*ethtest.Token{tokenAddr: token},
	}
	chain.Deploy(tokenAddr, token)
	chain.Deploy(uniRouter, router)
	return &fixture{chain: chain, token: token, router: router}
}

func newService(t *testing.T, cfg *config.Config, fx *fixture) *Service {
	t.Helper()
	s, err := New(cfg, Options{Backend: fx.chain})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNew_RegistersVenues(t *testing.T) {
	s := newService(t, testConfig(t), newFixture())
	assert.Equal(t, []string{"sushiswap", "uniswap-v2"}, s.Venues.Names())
	assert.Equal(t, "uniswap-v2", s.Venues.Default())
	assert.NotNil(t, s.Provider)
	assert.NotNil(t, s.Watcher)
	assert.Nil(t, s.Swaps)
}

func TestNew_UnknownDefaultVenue(t *testing.T) {
	cfg := testConfig(t)
	cfg.DefaultVenue = "curve"
	_, err := New(cfg, Options{Backend: newFixture().chain})
	assert.ErrorIs(t, err, swap.ErrUnknownVenue)
}

func TestNew_NoProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.PrivateKey = ""
	s := newService(t, cfg, newFixture())

	assert.Nil(t, s.Provider)
	assert.Nil(t, s.Watcher)
	_, err := s.Connect(context.Background())
	assert.ErrorIs(t, err, wallet.ErrNoProviderFound)
}

func TestConnect_TracksSessionGauge(t *testing.T) {
	s := newService(t, testConfig(t), newFixture())
	ctx := context.Background()

	sess, err := s.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.ChainID)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics.Session))

	s.Disconnect()
	assert.Equal(t, 0.0, testutil.ToFloat64(s.Metrics.Session))
	_, err = s.Connector.CurrentSession()
	assert.ErrorIs(t, err, wallet.ErrUnconnected)
}

func TestQuote_CountsOutcome(t *testing.T) {
	fx := newFixture()
	s := newService(t, testConfig(t), fx)
	ctx := context.Background()
	_, err := s.Connect(ctx)
	require.NoError(t, err)

	q, err := s.Quote(ctx, swap.Params{Amount: "1000", TokenIn: tokenAddr.Hex(), TokenOut: "ETH"})
	require.NoError(t, err)
	assert.Equal(t, "500", q.AmountOut.Raw.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics.Quotes.WithLabelValues("uniswap-v2", "ok")))

	fx.router.Amounts = nil
	_, err = s.Quote(ctx, swap.Params{Amount: "1000", TokenIn: tokenAddr.Hex(), TokenOut: "ETH"})
	assert.ErrorIs(t, err, swap.ErrInsufficientLiquidity)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics.Quotes.WithLabelValues("uniswap-v2", "no_liquidity")))
}

func TestExecute_ConfirmedSwapIsCounted(t *testing.T) {
	fx := newFixture()
	s := newService(t, testConfig(t), fx)
	ctx := context.Background()
	_, err := s.Connect(ctx)
	require.NoError(t, err)

	res, err := s.Execute(ctx, swap.Params{Amount: "1000", TokenIn: tokenAddr.Hex(), TokenOut: "ETH"})
	require.NoError(t, err)
	assert.Equal(t, swap.Confirmed, res.State)
	assert.NotNil(t, res.ApprovalTx)
	assert.Equal(t, 2, fx.chain.SentCount())
	assert.Equal(t, "495", fx.router.LastSwap().AmountOutMin.String())

	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics.SwapsFinished.WithLabelValues("uniswap-v2", "confirmed", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics.Transitions.WithLabelValues(string(swap.Confirmed))))
}

func TestExecute_WrongNetwork(t *testing.T) {
	fx := newFixture()
	s := newService(t, testConfig(t), fx)
	ctx := context.Background()

	s.Networks.Add(137, ethtest.NewChain(137))
	_, err := s.Networks.Switch(137)
	require.NoError(t, err)
	sess, err := s.Connect(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(137), sess.ChainID)

	_, err = s.Execute(ctx, swap.Params{Amount: "1000", TokenIn: tokenAddr.Hex(), TokenOut: "ETH"})
	assert.ErrorIs(t, err, swap.ErrWrongNetwork)
	assert.Equal(t, 0, fx.chain.SentCount())
}

func TestExecute_SlippageCap(t *testing.T) {
	fx := newFixture()
	cfg := testConfig(t)
	cfg.MaxSlippagePercent = 0.5
	s := newService(t, cfg, fx)
	ctx := context.Background()
	_, err := s.Connect(ctx)
	require.NoError(t, err)

	_, err = s.Execute(ctx, swap.Params{Amount: "1000", TokenIn: tokenAddr.Hex(), TokenOut: "ETH"})
	assert.ErrorIs(t, err, risk.ErrBlocked)
	assert.Equal(t, 0, fx.chain.SentCount())
}

func TestHistory_WithoutDatabase(t *testing.T) {
	s := newService(t, testConfig(t), newFixture())
	_, err := s.History(context.Background(), repository.Filter{})
	assert.ErrorIs(t, err, ErrNoHistory)
	_, err = s.Stats(context.Background(), repository.Filter{})
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestStartStop(t *testing.T) {
	s := newService(t, testConfig(t), newFixture())
	s.Start()
	assert.True(t, s.Watcher.Running())
	s.Start()
	s.Stop()
	assert.False(t, s.Watcher.Running())
}

func TestValueUSD_NoPriceSource(t *testing.T) {
	s := newService(t, testConfig(t), newFixture())
	tok, err := s.Tokens.Native(1)
	require.NoError(t, err)
	assert.Nil(t, s.ValueUSD(context.Background(), tok, models.NewTokenAmount(big.NewInt(1), 18, "ETH")))
}

func TestWatcher_ClearsSessionOnDrift(t *testing.T) {
	s := newService(t, testConfig(t), newFixture())
	ctx := context.Background()
	_, err := s.Connect(ctx)
	require.NoError(t, err)

	s.Networks.Add(137, ethtest.NewChain(137))
	_, err = s.Networks.Switch(137)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Watcher.CheckNow(ctx))
	_, err = s.Connector.CurrentSession()
	assert.ErrorIs(t, err, wallet.ErrUnconnected)
	assert.Equal(t, 0.0, testutil.ToFloat64(s.Metrics.Session))
}
