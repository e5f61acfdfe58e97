// Package service assembles the wallet, readers and swap flow from config.
// Both the API server and swapctl run on top of it.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-swap/internal/balance"
	"github.com/kjannette/trahn-swap/internal/config"
	"github.com/kjannette/trahn-swap/internal/ethereum"
	"github.com/kjannette/trahn-swap/internal/external"
	"github.com/kjannette/trahn-swap/internal/metrics"
	"github.com/kjannette/trahn-swap/internal/models"
	"github.com/kjannette/trahn-swap/internal/notifications"
	"github.com/kjannette/trahn-swap/internal/repository"
	"github.com/kjannette/trahn-swap/internal/risk"
	"github.com/kjannette/trahn-swap/internal/swap"
	"github.com/kjannette/trahn-swap/internal/tokens"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

// ErrNoHistory is returned by History when no database is configured.
var ErrNoHistory = errors.New("swap history requires a database")

type Options struct {
	// Approver answers connect and sign prompts. Nil means AUTO_APPROVE.
	Approver wallet.Approver
	// Pool enables the attempt recorder and the daily swap limit.
	Pool *pgxpool.Pool
	// Backend replaces dialing ETHEREUM_API_ENDPOINT.
	Backend ethereum.Backend
	// Dial opens extra chains; defaults to ethclient.
	Dial wallet.DialFunc
	// Metrics is shared with the API; a fresh set is created when nil.
	Metrics *metrics.Metrics
	// Prices, when set, values balances and quotes in USD.
	Prices *external.CoinGeckoClient
}

type Service struct {
	cfg *config.Config

	Networks  *wallet.Networks
	Provider  wallet.Provider
	Connector *wallet.Connector
	Watcher   *wallet.Watcher
	Client    *ethereum.Client
	Tokens    *tokens.Registry
	Balances  *balance.Reader
	Venues    *swap.Registry
	Flow      *swap.Flow
	Guardian  *risk.Guardian
	Swaps     *repository.SwapRepo
	Prices    *external.CoinGeckoClient
	Metrics   *metrics.Metrics
	Notifier  notifications.SwapNotifier

	mu      sync.Mutex
	running bool
	closers []func() error
}

func New(cfg *config.Config, opts Options) (*Service, error) {
	s := &Service{cfg: cfg, Prices: opts.Prices, Metrics: opts.Metrics}
	if s.Metrics == nil {
		s.Metrics = metrics.New("")
	}

	primary := opts.Backend
	if primary == nil {
		c, err := ethereum.Dial(cfg.EthereumAPIEndpoint)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { c.Close(); return nil })
		primary = c
	}
	dial := opts.Dial
	if dial == nil {
		dial = func(url string) (ethereum.Backend, error) {
			c, err := ethereum.Dial(url)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	s.Networks = wallet.NewNetworks(int64(cfg.ChainID), primary, cfg.ExtraRPCEndpoints, dial)

	approver := opts.Approver
	if approver == nil {
		approver = wallet.StaticApprover(cfg.AutoApprove)
	}
	provider, err := wallet.Discover(wallet.Options{
		PrivateKey:         cfg.PrivateKey,
		KeystoreDir:        cfg.KeystoreDir,
		KeystorePassphrase: cfg.KeystorePassphrase,
		Networks:           s.Networks,
		Approver:           approver,
	})
	switch {
	case errors.Is(err, wallet.ErrNoProviderFound):
		fmt.Println("[SERVICE] No wallet provider configured; balances by address only")
	case err != nil:
		s.Close()
		return nil, err
	default:
		s.Provider = provider
		if ks, ok := provider.(*wallet.KeystoreProvider); ok {
			s.closers = append(s.closers, func() error { ks.Close(); return nil })
		}
	}

	s.Connector = wallet.NewConnector(s.Provider)
	s.Connector.OnChange(func(wallet.Event) { s.Metrics.SessionChanged(false) })
	s.closers = append(s.closers, func() error { s.Connector.Close(); return nil })
	if s.Provider != nil {
		s.Watcher = wallet.NewWatcher(s.Provider, s.Connector, time.Duration(cfg.WatchIntervalSeconds)*time.Second)
	}

	s.Client = ethereum.NewClient(s.Networks, ethereum.Options{
		GasLimit:      uint64(cfg.GasLimit),
		GasMultiplier: cfg.GasMultiplier,
		PollInterval:  time.Duration(cfg.ReceiptPollSeconds) * time.Second,
	})
	erc20, err := ethereum.NewERC20(s.Client)
	if err != nil {
		s.Close()
		return nil, err
	}

	cache, err := openCache(cfg.TokenCachePath)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, cache.Close)
	s.Tokens = tokens.NewRegistry(erc20, cache, map[int64]common.Address{
		int64(cfg.ChainID): common.HexToAddress(cfg.WETHAddress),
	})
	s.Balances = balance.NewReader(s.Client, erc20, s.Tokens, s.Connector)

	if err := s.buildVenues(erc20); err != nil {
		s.Close()
		return nil, err
	}

	s.buildFlow(opts.Pool)
	return s, nil
}

func openCache(path string) (tokens.Cache, error) {
	if path == "" {
		return tokens.NewMemoryCache(), nil
	}
	c, err := tokens.OpenBoltCache(path)
	if err != nil {
		return nil, fmt.Errorf("token cache: %w", err)
	}
	return c, nil
}

func (s *Service) buildVenues(erc20 *ethereum.ERC20) error {
	var signer ethereum.Signer = noSigner{}
	if s.Provider != nil {
		signer = s.Provider
	}
	s.Venues = swap.NewRegistry(s.cfg.DefaultVenue)

	routers := []struct{ name, addr string }{
		{"uniswap-v2", s.cfg.UniswapRouterAddress},
		{"sushiswap", s.cfg.SushiSwapRouterAddress},
	}
	for _, r := range routers {
		if r.addr == "" {
			continue
		}
		v, err := swap.NewRouterVenue(s.Client, erc20, signer, swap.RouterVenueConfig{
			Name:           r.name,
			Router:         common.HexToAddress(r.addr),
			Policy:         swap.ApprovalPolicy(s.cfg.ApprovalPolicy),
			ConfirmTimeout: time.Duration(s.cfg.ConfirmTimeoutSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("venue %s: %w", r.name, err)
		}
		s.Venues.Register(v)
	}
	if _, err := s.Venues.Get(""); err != nil {
		return fmt.Errorf("default venue: %w", err)
	}
	return nil
}

func (s *Service) buildFlow(pool *pgxpool.Pool) {
	var counter risk.DailySwapCounter
	var recorder swap.Recorder
	if pool != nil {
		s.Swaps = repository.NewSwapRepo(pool)
		counter = s.Swaps
		recorder = s.Swaps
	}

	s.Guardian = risk.NewGuardian(risk.Limits{
		ChainID:            int64(s.cfg.ChainID),
		MaxDailySwaps:      s.cfg.MaxDailySwaps,
		MaxSlippagePercent: s.cfg.MaxSlippagePercent,
	}, counter)

	notifiers := notifications.Multi{notifications.NewSender(s.cfg.WebhookURL, s.cfg.AppName), s.Metrics}
	if len(s.cfg.KafkaBrokers) > 0 {
		kp := notifications.NewKafkaPublisher(s.cfg.KafkaBrokers, s.cfg.KafkaSwapTopic)
		s.closers = append(s.closers, kp.Close)
		notifiers = append(notifiers, kp)
	}
	s.Notifier = notifiers

	s.Flow = swap.NewFlow(s.Connector, s.Tokens, s.Venues, swap.FlowConfig{
		ChainID:     int64(s.cfg.ChainID),
		SlippageBps: s.cfg.SlippageBps(),
		Deadline:    time.Duration(s.cfg.DeadlineSeconds) * time.Second,
		DryRun:      s.cfg.DryRun,
		Guard:       s.Guardian,
		Recorder:    recorder,
		Notifier:    s.Notifier,
		Observers:   []swap.Observer{s.Metrics.Observer()},
	})
}

// Start begins watching the provider for drift. It does not connect.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		fmt.Println("[SERVICE] Already running")
		return
	}
	if s.Watcher != nil {
		s.Watcher.Start()
	}
	s.running = true
	fmt.Println("[SERVICE] Started successfully")
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Watcher != nil && s.Watcher.Running() {
		s.Watcher.Stop()
	}
	s.running = false
	fmt.Println("[SERVICE] Stopped")
}

// Close stops the service and releases the cache, transports and writers.
func (s *Service) Close() {
	s.Stop()
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			fmt.Printf("[SERVICE] Close: %v\n", err)
		}
	}
	s.closers = nil
}

func (s *Service) Config() *config.Config { return s.cfg }

// Connect opens a wallet session.
func (s *Service) Connect(ctx context.Context) (wallet.Session, error) {
	sess, err := s.Connector.Connect(ctx)
	if err != nil {
		return wallet.Session{}, err
	}
	s.Metrics.SessionChanged(true)
	return sess, nil
}

func (s *Service) Disconnect() {
	s.Connector.Disconnect()
	s.Metrics.SessionChanged(false)
}

// SwitchChain asks the wallet to change chains; the session is cleared.
func (s *Service) SwitchChain(ctx context.Context, chainID int64) error {
	err := s.Connector.SwitchChain(ctx, chainID)
	s.Metrics.SessionChanged(false)
	return err
}

// Quote prices p and counts the outcome.
func (s *Service) Quote(ctx context.Context, p swap.Params) (*swap.Quote, error) {
	q, err := s.Flow.Quote(ctx, p)
	venue := p.Venue
	if venue == "" {
		venue = s.Venues.Default()
	}
	s.Metrics.ObserveQuote(venue, err)
	return q, err
}

func (s *Service) Execute(ctx context.Context, p swap.Params) (*swap.Result, error) {
	return s.Flow.Execute(ctx, p)
}

func (s *Service) History(ctx context.Context, f repository.Filter) ([]models.SwapAttempt, error) {
	if s.Swaps == nil {
		return nil, ErrNoHistory
	}
	return s.Swaps.List(ctx, f)
}

func (s *Service) Stats(ctx context.Context, f repository.Filter) (*models.SwapStats, error) {
	if s.Swaps == nil {
		return nil, ErrNoHistory
	}
	return s.Swaps.Stats(ctx, f)
}

// ValueUSD is best effort; it returns nil without a price source or on error.
func (s *Service) ValueUSD(ctx context.Context, t tokens.Token, amount models.TokenAmount) *float64 {
	if s.Prices == nil {
		return nil
	}
	v, err := s.Prices.ValueUSD(ctx, t, amount)
	if err != nil {
		fmt.Printf("[SERVICE] USD valuation of %s failed: %v\n", t.Symbol, err)
		return nil
	}
	return &v
}

// noSigner stands in when no provider is configured.
type noSigner struct{}

func (noSigner) SignTx(context.Context, common.Address, *types.Transaction, *big.Int) (*types.Transaction, error) {
	return nil, wallet.ErrNoProviderFound
}
