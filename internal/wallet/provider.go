// Package wallet models an EIP-1193 style wallet provider and the connector
// that owns the active session.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/kjannette/trahn-swap/internal/ethereum"
)

var (
	ErrNoProviderFound = errors.New("no wallet provider found")
	ErrUserRejected    = errors.New("user rejected the request")
	ErrUnconnected     = errors.New("wallet not connected")
	ErrUnknownChain    = errors.New("unrecognized chain")
)

type EventKind string

const (
	AccountsChanged EventKind = "accountsChanged"
	ChainChanged    EventKind = "chainChanged"
)

// Event is pushed by a provider when its accounts or chain change.
type Event struct {
	Kind     EventKind
	Accounts []common.Address
	ChainID  int64
}

// Provider is the injected wallet: it owns accounts, signs, and exposes the
// transport of the chain it is currently on.
type Provider interface {
	ethereum.Signer
	ethereum.BackendSource

	// RequestAccounts may prompt the user (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns already authorized accounts without prompting (eth_accounts).
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (int64, error)
	// SwitchChain is wallet_switchEthereumChain.
	SwitchChain(ctx context.Context, chainID int64) error
	Subscribe(ch chan<- Event) event.Subscription
}

// DialFunc opens a transport for an RPC endpoint.
type DialFunc func(url string) (ethereum.Backend, error)

// Networks holds one backend per known chain and tracks the current one.
type Networks struct {
	mu        sync.RWMutex
	current   int64
	backends  map[int64]ethereum.Backend
	endpoints map[int64]string
	dial      DialFunc
}

// NewNetworks starts on chainID using primary. Extra chains are dialed lazily
// from endpoints on first switch.
func NewNetworks(chainID int64, primary ethereum.Backend, endpoints map[int64]string, dial DialFunc) *Networks {
	eps := make(map[int64]string, len(endpoints))
	for id, url := range endpoints {
		eps[id] = url
	}
	return &Networks{
		current:   chainID,
		backends:  map[int64]ethereum.Backend{chainID: primary},
		endpoints: eps,
		dial:      dial,
	}
}

// Add registers an already open backend for chainID.
func (n *Networks) Add(chainID int64, b ethereum.Backend) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.backends[chainID] = b
}

func (n *Networks) Current() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

func (n *Networks) Backend() ethereum.Backend {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.backends[n.current]
}

// Switch selects chainID, dialing it if needed. Returns whether the chain changed.
func (n *Networks) Switch(chainID int64) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if chainID == n.current {
		return false, nil
	}
	if _, ok := n.backends[chainID]; !ok {
		url, ok := n.endpoints[chainID]
		if !ok || n.dial == nil {
			return false, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
		}
		b, err := n.dial(url)
		if err != nil {
			return false, fmt.Errorf("%w: dial chain %d: %w", ethereum.ErrRPC, chainID, err)
		}
		n.backends[chainID] = b
	}
	n.current = chainID
	return true, nil
}

// base carries what every provider shares: permission state, the approval
// prompt, the chain set and the event feed.
type base struct {
	approver Approver
	nets     *Networks
	feed     event.Feed

	mu      sync.Mutex
	granted bool
}

func (b *base) Backend() ethereum.Backend { return b.nets.Backend() }

func (b *base) ChainID(_ context.Context) (int64, error) { return b.nets.Current(), nil }

func (b *base) Subscribe(ch chan<- Event) event.Subscription { return b.feed.Subscribe(ch) }

func (b *base) isGranted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.granted
}

// grant asks for permission once; later calls return immediately.
func (b *base) grant(ctx context.Context, accounts []common.Address) error {
	if b.isGranted() {
		return nil
	}
	if len(accounts) == 0 {
		return fmt.Errorf("%w: no accounts available", ErrUserRejected)
	}
	ok, err := b.approver.Approve(ctx, fmt.Sprintf("Connect account %s on chain %d?", accounts[0].Hex(), b.nets.Current()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	}
	if !ok {
		return ErrUserRejected
	}
	b.mu.Lock()
	b.granted = true
	b.mu.Unlock()
	return nil
}

// Revoke drops the permission and announces zero accounts.
func (b *base) Revoke() {
	b.mu.Lock()
	was := b.granted
	b.granted = false
	b.mu.Unlock()
	if was {
		b.feed.Send(Event{Kind: AccountsChanged})
	}
}

func (b *base) SwitchChain(ctx context.Context, chainID int64) error {
	if b.isGranted() {
		ok, err := b.approver.Approve(ctx, fmt.Sprintf("Switch to chain %d?", chainID))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUserRejected, err)
		}
		if !ok {
			return ErrUserRejected
		}
	}
	changed, err := b.nets.Switch(chainID)
	if err != nil {
		return err
	}
	if changed {
		b.feed.Send(Event{Kind: ChainChanged, ChainID: chainID})
	}
	return nil
}

// confirmSign prompts for a transaction signature.
func (b *base) confirmSign(ctx context.Context, account common.Address, tx *types.Transaction) error {
	if !b.isGranted() {
		return ErrUnconnected
	}
	to := "contract creation"
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	prompt := fmt.Sprintf("Sign transaction from %s to %s (value %s wei, %d bytes data)?",
		account.Hex(), to, tx.Value().String(), len(tx.Data()))
	ok, err := b.approver.Approve(ctx, prompt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	}
	if !ok {
		return ErrUserRejected
	}
	return nil
}
