package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/kjannette/trahn-swap/internal/ethereum"
)

// Session is the connected account on a chain. It is never persisted.
type Session struct {
	Address     common.Address `json:"address"`
	ChainID     int64          `json:"chainId"`
	ConnectedAt time.Time      `json:"connectedAt"`
}

// SessionSource is what readers and the swap flow depend on.
type SessionSource interface {
	CurrentSession() (Session, error)
}

// Connector is the single owner of the wallet session and of the provider
// event subscription.
type Connector struct {
	provider Provider
	now      func() time.Time

	mu      sync.RWMutex
	session *Session
	sub     event.Subscription
	events  chan Event
	hooks   []func(Event)
}

// NewConnector accepts a nil provider; Connect then fails with ErrNoProviderFound.
func NewConnector(p Provider) *Connector {
	return &Connector{provider: p, now: time.Now}
}

func (c *Connector) Provider() (Provider, error) {
	if c.provider == nil {
		return nil, ErrNoProviderFound
	}
	return c.provider, nil
}

// OnChange registers a callback run after every provider event.
func (c *Connector) OnChange(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Connect requests accounts and stores the first one with the current chain.
func (c *Connector) Connect(ctx context.Context) (Session, error) {
	if c.provider == nil {
		return Session{}, ErrNoProviderFound
	}

	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		if errors.Is(err, ErrUserRejected) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("%w: request accounts: %w", ethereum.ErrRPC, err)
	}
	if len(accounts) == 0 {
		return Session{}, fmt.Errorf("%w: no accounts granted", ErrUserRejected)
	}

	chainID, err := c.provider.ChainID(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("%w: chain id: %w", ethereum.ErrRPC, err)
	}

	s := Session{Address: accounts[0], ChainID: chainID, ConnectedAt: c.now()}

	c.mu.Lock()
	c.session = &s
	if c.sub == nil {
		c.events = make(chan Event, 16)
		c.sub = c.provider.Subscribe(c.events)
		go c.loop(c.sub, c.events)
	}
	c.mu.Unlock()

	fmt.Printf("[WALLET] Connected %s on chain %d\n", s.Address.Hex(), s.ChainID)
	return s, nil
}

func (c *Connector) loop(sub event.Subscription, events <-chan Event) {
	for {
		select {
		case ev := <-events:
			c.Handle(ev)
		case <-sub.Err():
			return
		}
	}
}

// Handle applies a provider event. Any account or chain change invalidates
// the session; the caller must Connect again. An event the current session
// already reflects (delivered after a reconnect) is ignored.
func (c *Connector) Handle(ev Event) {
	c.mu.Lock()
	if c.session != nil && reflects(*c.session, ev) {
		c.mu.Unlock()
		return
	}
	had := c.session != nil
	c.session = nil
	hooks := append([]func(Event){}, c.hooks...)
	c.mu.Unlock()

	if had {
		switch ev.Kind {
		case ChainChanged:
			fmt.Printf("[WALLET] Chain changed to %d; session cleared\n", ev.ChainID)
		default:
			fmt.Printf("[WALLET] Accounts changed (%d accounts); session cleared\n", len(ev.Accounts))
		}
	}
	for _, fn := range hooks {
		fn(ev)
	}
}

func reflects(s Session, ev Event) bool {
	switch ev.Kind {
	case ChainChanged:
		return s.ChainID == ev.ChainID
	case AccountsChanged:
		return len(ev.Accounts) > 0 && ev.Accounts[0] == s.Address
	}
	return false
}

func (c *Connector) CurrentSession() (Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return Session{}, ErrUnconnected
	}
	return *c.session, nil
}

func (c *Connector) Disconnect() {
	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	c.mu.Unlock()
	if had {
		fmt.Println("[WALLET] Disconnected")
	}
}

// SwitchChain asks the provider to change network and clears the session.
func (c *Connector) SwitchChain(ctx context.Context, chainID int64) error {
	if c.provider == nil {
		return ErrNoProviderFound
	}
	if err := c.provider.SwitchChain(ctx, chainID); err != nil {
		return err
	}
	c.Disconnect()
	return nil
}

// Close drops the provider subscription.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	c.session = nil
}
