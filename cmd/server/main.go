package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-swap/internal/api"
	"github.com/kjannette/trahn-swap/internal/config"
	"github.com/kjannette/trahn-swap/internal/db"
	"github.com/kjannette/trahn-swap/internal/external"
	"github.com/kjannette/trahn-swap/internal/service"
)

const banner = `
╔══════════════════════════════════════╗
║        TRAHN Swap Server v0.1        ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database (optional: history and the daily limit need it)
	var pool *pgxpool.Pool
	if cfg.DBEnabled {
		fmt.Printf("\n[DB] Connecting to %s:%d/%s ...\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
		pool, err = db.Connect(ctx, cfg.DSN())
		if err != nil {
			fmt.Fprintf(os.Stderr, "[DB] Connection failed: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			pool.Close()
			fmt.Println("[DB] Connection pool closed")
		}()

		if err := db.CheckConnection(ctx, pool); err != nil {
			fmt.Fprintf(os.Stderr, "[DB] Test query failed: %v\n", err)
			os.Exit(1)
		}
		if err := db.Migrate(ctx, pool); err != nil {
			fmt.Fprintf(os.Stderr, "[DB] Migration failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println("\n[DB] Skipped - DB_ENABLED=false, swap history disabled")
	}

	svc, err := service.New(cfg, service.Options{
		Pool:   pool,
		Prices: external.NewCoinGeckoClient(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[SERVICE] Start failed: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	// Fail fast if the RPC endpoint serves another chain.
	chainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	chainID, err := svc.Client.ChainID(chainCtx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[CHAIN] %v\n", err)
		os.Exit(1)
	}
	if chainID.Int64() != int64(cfg.ChainID) {
		fmt.Fprintf(os.Stderr, "[CHAIN] Endpoint serves chain %d, CHAIN_ID is %d\n", chainID.Int64(), cfg.ChainID)
		os.Exit(1)
	}

	// 1. API server
	srv := api.NewServer(svc, pool, cfg.APIPort, cfg.APIKey, cfg.CORSAllowOrigin)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "[API] Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	// 2. Wallet watcher
	svc.Start()

	fmt.Println("\nAll services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	svc.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[API] Shutdown error: %v\n", err)
	}
	fmt.Println("[API] Server closed")
	fmt.Println("Shutdown complete")
}
