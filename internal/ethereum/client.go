package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of *ethclient.Client the rest of the module uses.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg geth.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

// BackendSource yields the transport for the currently selected chain. Wallet
// providers implement it so chain switches are picked up by every reader.
type BackendSource interface {
	Backend() Backend
}

type staticSource struct{ b Backend }

func (s staticSource) Backend() Backend { return s.b }

// StaticBackend pins a single backend.
func StaticBackend(b Backend) BackendSource { return staticSource{b: b} }

// Signer signs a transaction on behalf of account. Implementations may prompt
// the user and return a rejection error.
type Signer interface {
	SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type Options struct {
	GasLimit      uint64
	GasMultiplier float64
	PollInterval  time.Duration
}

type Client struct {
	src      BackendSource
	gasLimit uint64
	gasMul   float64
	poll     time.Duration
}

func Dial(rpcURL string) (*ethclient.Client, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	return rpc, nil
}

func NewClient(src BackendSource, opts Options) *Client {
	if opts.GasLimit == 0 {
		opts.GasLimit = 250000
	}
	if opts.GasMultiplier <= 0 {
		opts.GasMultiplier = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	return &Client{
		src:      src,
		gasLimit: opts.GasLimit,
		gasMul:   opts.GasMultiplier,
		poll:     opts.PollInterval,
	}
}

func (c *Client) backend() Backend { return c.src.Backend() }

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.backend().ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %w", ErrRPC, err)
	}
	return id, nil
}

func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.backend().BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: get balance: %w", ErrRPC, err)
	}
	return bal, nil
}

// HasCode reports whether a contract is deployed at addr.
func (c *Client) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.backend().CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("%w: get code: %w", ErrRPC, err)
	}
	return len(code) > 0, nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.backend().SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %w", ErrRPC, err)
	}
	// Apply multiplier
	mul := new(big.Float).SetFloat64(c.gasMul)
	adjusted := new(big.Float).Mul(new(big.Float).SetInt(price), mul)
	result, _ := adjusted.Int(nil)
	return result, nil
}

// Call performs a read-only eth_call against the latest block. Reverts are
// reported as ErrExecutionReverted, anything else as ErrRPC.
func (c *Client) Call(ctx context.Context, from, to common.Address, value *big.Int, data []byte) ([]byte, error) {
	msg := geth.CallMsg{From: from, To: &to, Value: value, Data: data}
	out, err := c.backend().CallContract(ctx, msg, nil)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %w", ErrExecutionReverted, err)
		}
		return nil, fmt.Errorf("%w: eth_call: %w", ErrRPC, err)
	}
	return out, nil
}

// Send builds, signs and broadcasts a legacy transaction, returning its hash.
func (c *Client) Send(ctx context.Context, signer Signer, from, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	b := c.backend()
	if value == nil {
		value = big.NewInt(0)
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := b.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: get nonce: %w", ErrRPC, err)
	}
	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	gas := c.gasLimit
	estimated, err := b.EstimateGas(ctx, geth.CallMsg{From: from, To: &to, Value: value, Data: data})
	switch {
	case err == nil:
		gas = estimated * 120 / 100 // 20% buffer
	case isRevert(err):
		return common.Hash{}, fmt.Errorf("%w: estimate gas: %w", ErrTransactionReverted, err)
	default:
		fmt.Printf("[CHAIN] Gas estimate failed, using limit %d: %v\n", gas, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := signer.SignTx(ctx, from, tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := b.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: send tx: %w", ErrRPC, err)
	}
	return signed.Hash(), nil
}

// WaitMined polls for the receipt of hash until it is mined or ctx ends.
// A context deadline surfaces as ErrTimedOut, a status-0 receipt as
// ErrTransactionReverted.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend().TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, hash.Hex())
			}
			return receipt, nil
		case errors.Is(err, geth.NotFound):
		case ctx.Err() == nil:
			fmt.Printf("[CHAIN] Receipt lookup for %s failed: %v\n", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrTimedOut, hash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
