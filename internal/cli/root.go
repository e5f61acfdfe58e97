// Package cli implements swapctl, a terminal front-end over the swap service.
// Each invocation is its own process, so every command that needs the wallet
// connects first.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/kjannette/trahn-swap/internal/config"
	"github.com/kjannette/trahn-swap/internal/db"
	"github.com/kjannette/trahn-swap/internal/external"
	"github.com/kjannette/trahn-swap/internal/service"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

// App carries the process dependencies. Tests replace LoadConfig and Options.
type App struct {
	In         io.Reader
	Out        io.Writer
	LoadConfig func() (*config.Config, error)
	Options    service.Options

	jsonOutput bool
	approver   wallet.Approver
}

func NewApp() *App {
	return &App{
		In:         os.Stdin,
		Out:        os.Stdout,
		LoadConfig: config.Load,
		Options:    service.Options{Prices: external.NewCoinGeckoClient()},
	}
}

// Execute runs swapctl with os.Args.
func Execute() error {
	return NewApp().Command().Execute()
}

func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "swapctl",
		Short: "Quote and execute token swaps against Uniswap V2 style routers",
		Long: `swapctl connects the configured wallet, reads balances, and quotes and
executes swaps through a router venue. Every transaction is confirmed at the prompt
unless --yes or AUTO_APPROVE is set.

Examples:
  swapctl connect
  swapctl balance --token USDC
  swapctl quote 1.5 ETH USDC
  swapctl swap 100 USDC ETH --slippage 1 --venue sushiswap
  swapctl swap 100 DAI USDT --via WETH --yes
  swapctl history --limit 10`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.In)
	root.SetOut(a.Out)
	root.SetErr(a.Out)
	root.PersistentFlags().BoolVarP(&a.jsonOutput, "json", "j", false, "Output in JSON format")

	root.AddCommand(
		a.connectCmd(),
		a.balanceCmd(),
		a.quoteCmd(),
		a.swapCmd(),
		a.historyCmd(),
		a.linksCmd(),
	)
	return root
}

type session struct {
	svc    *service.Service
	cfg    *config.Config
	closer func()
}

// open builds the service. withDB connects the swap history store when
// DB_ENABLED is set; required makes a connection failure fatal.
func (a *App) open(ctx context.Context, yes, withDB, required bool) (*session, error) {
	cfg, err := a.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if yes || cfg.AutoApprove {
		a.approver = wallet.StaticApprover(true)
	} else {
		a.approver = wallet.NewPromptApprover(a.In, a.Out)
	}
	opts := a.Options
	opts.Approver = a.approver

	var pool *pgxpool.Pool
	if withDB && opts.Pool == nil && cfg.DBEnabled {
		pool, err = openDB(ctx, cfg)
		switch {
		case err != nil && required:
			return nil, err
		case err != nil:
			a.warn("swap history unavailable: %v", err)
		default:
			opts.Pool = pool
		}
	}

	svc, err := service.New(cfg, opts)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}
	return &session{svc: svc, cfg: cfg, closer: func() {
		svc.Close()
		if pool != nil {
			pool.Close()
		}
	}}, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (a *App) warn(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(a.Out, "Warning: "+format+"\n", args...)
}
