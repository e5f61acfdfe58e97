package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// MaxUint256 is the "unlimited" approval amount.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ERC20 reads and approves standard tokens through a Client.
type ERC20 struct {
	client *Client
	abi    abi.ABI
}

func NewERC20(client *Client) (*ERC20, error) {
	parsed, err := abi.JSON(erc20ABIJSON())
	if err != nil {
		return nil, fmt.Errorf("parse ERC20 ABI: %w", err)
	}
	return &ERC20{client: client, abi: parsed}, nil
}

func (e *ERC20) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := e.view(ctx, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(out, "balanceOf")
}

func (e *ERC20) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := e.view(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(out, "allowance")
}

func (e *ERC20) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := e.view(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals: unexpected type %T", ErrContractCall, out[0])
	}
	return d, nil
}

func (e *ERC20) Symbol(ctx context.Context, token common.Address) (string, error) {
	out, err := e.view(ctx, token, "symbol")
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: symbol: unexpected type %T", ErrContractCall, out[0])
	}
	return s, nil
}

// PackApprove returns calldata for approve(spender, amount).
func (e *ERC20) PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return e.abi.Pack("approve", spender, amount)
}

// Approve submits approve(spender, amount) from owner and returns the tx hash
// without waiting for it to be mined.
func (e *ERC20) Approve(ctx context.Context, signer Signer, owner, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := e.PackApprove(spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack approve: %w", err)
	}
	return e.client.Send(ctx, signer, owner, token, big.NewInt(0), data)
}

func (e *ERC20) view(ctx context.Context, token common.Address, method string, args ...any) ([]any, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := e.client.Call(ctx, common.Address{}, token, nil, data)
	if err != nil {
		if errors.Is(err, ErrExecutionReverted) {
			return nil, fmt.Errorf("%w: %s on %s: %w", ErrContractCall, method, token.Hex(), err)
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s on %s returned no data (not a token contract?)", ErrContractCall, method, token.Hex())
	}
	out, err := e.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrContractCall, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s returned no values", ErrContractCall, method)
	}
	return out, nil
}

func asBigInt(out []any, method string) (*big.Int, error) {
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unexpected type %T", ErrContractCall, method, out[0])
	}
	return v, nil
}
