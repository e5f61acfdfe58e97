package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Watcher polls the provider for account and chain drift and feeds what it
// finds into the connector, for transports that do not push events.
type Watcher struct {
	provider  Provider
	connector *Connector
	interval  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewWatcher(p Provider, c *Connector, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Watcher{provider: p, connector: c, interval: interval}
}

func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		fmt.Println("[WATCHER] Already running")
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stop := w.stopCh
	w.mu.Unlock()

	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), w.interval)
				if err := w.CheckNow(ctx); err != nil {
					fmt.Printf("[WATCHER] Check failed: %v\n", err)
				}
				cancel()
			}
		}
	}()

	fmt.Printf("[WATCHER] Started (every %s)\n", w.interval)
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopCh)
	w.running = false
	fmt.Println("[WATCHER] Stopped")
}

func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// CheckNow compares the provider with the current session once.
func (w *Watcher) CheckNow(ctx context.Context) error {
	session, err := w.connector.CurrentSession()
	if err != nil {
		return nil
	}

	accounts, err := w.provider.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("accounts: %w", err)
	}
	if len(accounts) == 0 || accounts[0] != session.Address {
		w.connector.Handle(Event{Kind: AccountsChanged, Accounts: accounts})
		return nil
	}

	chainID, err := w.provider.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	if chainID != session.ChainID {
		w.connector.Handle(Event{Kind: ChainChanged, ChainID: chainID})
	}
	return nil
}
