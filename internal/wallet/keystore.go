package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// KeystoreProvider signs with encrypted key files from a geth keystore
// directory. Files added or removed while running surface as AccountsChanged.
type KeystoreProvider struct {
	base
	ks         *keystore.KeyStore
	passphrase string

	walletEvents chan accounts.WalletEvent
	walletSub    event.Subscription
	done         chan struct{}
}

func NewKeystoreProvider(dir, passphrase string, nets *Networks, approver Approver) *KeystoreProvider {
	return newKeystoreProvider(keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP), passphrase, nets, approver)
}

func newKeystoreProvider(ks *keystore.KeyStore, passphrase string, nets *Networks, approver Approver) *KeystoreProvider {
	p := &KeystoreProvider{
		base:         base{approver: approver, nets: nets},
		ks:           ks,
		passphrase:   passphrase,
		walletEvents: make(chan accounts.WalletEvent, 8),
		done:         make(chan struct{}),
	}
	p.walletSub = ks.Subscribe(p.walletEvents)
	go p.forward()
	return p
}

func (p *KeystoreProvider) forward() {
	for {
		select {
		case ev := <-p.walletEvents:
			if ev.Kind == accounts.WalletOpened {
				continue
			}
			if !p.isGranted() {
				continue
			}
			fmt.Printf("[WALLET] Keystore %s: %s\n", walletEventName(ev.Kind), ev.Wallet.URL())
			p.feed.Send(Event{Kind: AccountsChanged, Accounts: p.addresses()})
		case <-p.walletSub.Err():
			return
		case <-p.done:
			return
		}
	}
}

func walletEventName(k accounts.WalletEventType) string {
	switch k {
	case accounts.WalletArrived:
		return "arrived"
	case accounts.WalletDropped:
		return "dropped"
	default:
		return "changed"
	}
}

func (p *KeystoreProvider) addresses() []common.Address {
	accts := p.ks.Accounts()
	out := make([]common.Address, len(accts))
	for i, a := range accts {
		out[i] = a.Address
	}
	return out
}

func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	addrs := p.addresses()
	if err := p.grant(ctx, addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

func (p *KeystoreProvider) Accounts(_ context.Context) ([]common.Address, error) {
	if !p.isGranted() {
		return nil, nil
	}
	return p.addresses(), nil
}

func (p *KeystoreProvider) SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if !p.ks.HasAddress(account) {
		return nil, fmt.Errorf("%w: unknown account %s", ErrUnconnected, account.Hex())
	}
	if err := p.confirmSign(ctx, account, tx); err != nil {
		return nil, err
	}
	signed, err := p.ks.SignTxWithPassphrase(accounts.Account{Address: account}, p.passphrase, tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("keystore sign: %w", err)
	}
	return signed, nil
}

// Close stops watching the keystore directory.
func (p *KeystoreProvider) Close() {
	select {
	case <-p.done:
	default:
		close(p.done)
		p.walletSub.Unsubscribe()
	}
}
