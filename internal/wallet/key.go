package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyProvider holds a single raw private key.
type KeyProvider struct {
	base
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewKeyProvider(hexKey string, nets *Networks, approver Approver) (*KeyProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewKeyProviderFromKey(key, nets, approver), nil
}

func NewKeyProviderFromKey(key *ecdsa.PrivateKey, nets *Networks, approver Approver) *KeyProvider {
	return &KeyProvider{
		base: base{approver: approver, nets: nets},
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (p *KeyProvider) Address() common.Address { return p.addr }

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := p.grant(ctx, []common.Address{p.addr}); err != nil {
		return nil, err
	}
	return []common.Address{p.addr}, nil
}

func (p *KeyProvider) Accounts(_ context.Context) ([]common.Address, error) {
	if !p.isGranted() {
		return nil, nil
	}
	return []common.Address{p.addr}, nil
}

func (p *KeyProvider) SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if account != p.addr {
		return nil, fmt.Errorf("%w: unknown account %s", ErrUnconnected, account.Hex())
	}
	if err := p.confirmSign(ctx, account, tx); err != nil {
		return nil, err
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
}
