// Package balance reads native and ERC20 balances.
package balance

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/trahn-swap/internal/ethereum"
	"github.com/kjannette/trahn-swap/internal/models"
	"github.com/kjannette/trahn-swap/internal/tokens"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

type Reader struct {
	client   *ethereum.Client
	erc20    *ethereum.ERC20
	registry *tokens.Registry
	sessions wallet.SessionSource
}

func NewReader(client *ethereum.Client, erc20 *ethereum.ERC20, registry *tokens.Registry, sessions wallet.SessionSource) *Reader {
	return &Reader{client: client, erc20: erc20, registry: registry, sessions: sessions}
}

// ReadNative returns the native balance of address on the current chain.
func (r *Reader) ReadNative(ctx context.Context, address common.Address) (models.TokenAmount, error) {
	chainID, err := r.client.ChainID(ctx)
	if err != nil {
		return models.TokenAmount{}, err
	}
	return r.readNative(ctx, chainID.Int64(), address)
}

func (r *Reader) readNative(ctx context.Context, chainID int64, address common.Address) (models.TokenAmount, error) {
	wei, err := r.client.NativeBalance(ctx, address)
	if err != nil {
		return models.TokenAmount{}, err
	}
	symbol := "ETH"
	if n, err := r.registry.Native(chainID); err == nil {
		symbol = n.Symbol
	}
	return models.NewTokenAmount(wei, 18, symbol), nil
}

// ReadToken returns owner's balance of token. A target without code or
// without balanceOf fails with ethereum.ErrContractCall.
func (r *Reader) ReadToken(ctx context.Context, token, owner common.Address) (models.TokenAmount, error) {
	chainID, err := r.client.ChainID(ctx)
	if err != nil {
		return models.TokenAmount{}, err
	}
	return r.readToken(ctx, chainID.Int64(), token, owner)
}

func (r *Reader) readToken(ctx context.Context, chainID int64, token, owner common.Address) (models.TokenAmount, error) {
	hasCode, err := r.client.HasCode(ctx, token)
	if err != nil {
		return models.TokenAmount{}, err
	}
	if !hasCode {
		return models.TokenAmount{}, fmt.Errorf("%w: no contract at %s", ethereum.ErrContractCall, token.Hex())
	}

	raw, err := r.erc20.BalanceOf(ctx, token, owner)
	if err != nil {
		return models.TokenAmount{}, err
	}
	meta, err := r.registry.Resolve(ctx, chainID, token.Hex())
	if err != nil {
		return models.TokenAmount{}, err
	}
	return models.NewTokenAmount(raw, meta.Decimals, meta.Symbol), nil
}

// SessionNative reads the connected account's native balance. Without a
// session it returns wallet.ErrUnconnected.
func (r *Reader) SessionNative(ctx context.Context) (models.TokenAmount, error) {
	s, err := r.sessions.CurrentSession()
	if err != nil {
		return models.TokenAmount{}, err
	}
	return r.readNative(ctx, s.ChainID, s.Address)
}

// SessionToken reads the connected account's balance of ref (symbol or address).
func (r *Reader) SessionToken(ctx context.Context, ref string) (models.TokenAmount, error) {
	s, err := r.sessions.CurrentSession()
	if err != nil {
		return models.TokenAmount{}, err
	}
	tok, err := r.registry.Resolve(ctx, s.ChainID, ref)
	if err != nil {
		return models.TokenAmount{}, err
	}
	if tok.Native {
		return r.readNative(ctx, s.ChainID, s.Address)
	}
	return r.readToken(ctx, s.ChainID, tok.Address, s.Address)
}
