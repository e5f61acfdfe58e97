package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// SwapKind selects the Router02 entry point.
type SwapKind string

const (
	TokensForETH    SwapKind = "tokens_for_eth"
	TokensForTokens SwapKind = "tokens_for_tokens"
	ETHForTokens    SwapKind = "eth_for_tokens"
)

// SwapCall carries the arguments of a single router swap.
type SwapCall struct {
	Kind         SwapKind
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	To           common.Address
	Deadline     *big.Int
}

// RouterV2 wraps a Uniswap V2 Router02 compatible deployment.
type RouterV2 struct {
	client  *Client
	address common.Address
	abi     abi.ABI
}

func NewRouterV2(client *Client, address common.Address) (*RouterV2, error) {
	parsed, err := abi.JSON(routerABIJSON())
	if err != nil {
		return nil, fmt.Errorf("parse router ABI: %w", err)
	}
	return &RouterV2{client: client, address: address, abi: parsed}, nil
}

func (r *RouterV2) Address() common.Address { return r.address }

// GetAmountsOut returns the amount at every hop of path for amountIn. A revert
// (no pool for some hop) is returned wrapped in ErrExecutionReverted.
func (r *RouterV2) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := r.abi.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	raw, err := r.client.Call(ctx, common.Address{}, r.address, nil, data)
	if err != nil {
		return nil, err
	}
	return r.unpackAmounts("getAmountsOut", raw)
}

// Pack encodes call, returning calldata and the native value to attach.
func (r *RouterV2) Pack(call SwapCall) ([]byte, *big.Int, error) {
	switch call.Kind {
	case TokensForETH, TokensForTokens:
		method := "swapExactTokensForETH"
		if call.Kind == TokensForTokens {
			method = "swapExactTokensForTokens"
		}
		data, err := r.abi.Pack(method, call.AmountIn, call.AmountOutMin, call.Path, call.To, call.Deadline)
		if err != nil {
			return nil, nil, fmt.Errorf("pack %s: %w", method, err)
		}
		return data, big.NewInt(0), nil
	case ETHForTokens:
		data, err := r.abi.Pack("swapExactETHForTokens", call.AmountOutMin, call.Path, call.To, call.Deadline)
		if err != nil {
			return nil, nil, fmt.Errorf("pack swapExactETHForTokens: %w", err)
		}
		return data, new(big.Int).Set(call.AmountIn), nil
	default:
		return nil, nil, fmt.Errorf("unknown swap kind %q", call.Kind)
	}
}

// Swap signs and broadcasts call from the given account. Returns the tx hash.
func (r *RouterV2) Swap(ctx context.Context, signer Signer, from common.Address, call SwapCall) (common.Hash, error) {
	data, value, err := r.Pack(call)
	if err != nil {
		return common.Hash{}, err
	}
	return r.client.Send(ctx, signer, from, r.address, value, data)
}

// SimulateSwap runs call through eth_call from the given account and returns
// the amounts the router would produce. Nothing is broadcast.
func (r *RouterV2) SimulateSwap(ctx context.Context, from common.Address, call SwapCall) ([]*big.Int, error) {
	data, value, err := r.Pack(call)
	if err != nil {
		return nil, err
	}
	raw, err := r.client.Call(ctx, from, r.address, value, data)
	if err != nil {
		return nil, err
	}
	method := map[SwapKind]string{
		TokensForETH:    "swapExactTokensForETH",
		TokensForTokens: "swapExactTokensForTokens",
		ETHForTokens:    "swapExactETHForTokens",
	}[call.Kind]
	return r.unpackAmounts(method, raw)
}

func (r *RouterV2) unpackAmounts(method string, raw []byte) ([]*big.Int, error) {
	out, err := r.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrContractCall, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s returned no values", ErrContractCall, method)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unexpected type %T", ErrContractCall, method, out[0])
	}
	return amounts, nil
}
