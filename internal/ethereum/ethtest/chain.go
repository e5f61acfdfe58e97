// Package ethtest provides an in-memory ethereum.Backend with scriptable
// contracts for tests.
package ethtest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// RevertError mimics the JSON-RPC error geth returns for reverts.
type RevertError struct{ Reason string }

func (e *RevertError) Error() string  { return "execution reverted: " + e.Reason }
func (e *RevertError) ErrorCode() int { return 3 }

// Contract handles calldata sent to an address. commit is false for eth_call
// and gas estimation, true for mined transactions.
type Contract interface {
	Handle(from common.Address, value *big.Int, data []byte, commit bool) ([]byte, error)
}

// Chain is a single-block fake node. Zero value is not usable; use NewChain.
type Chain struct {
	mu sync.Mutex

	chainID   *big.Int
	balances  map[common.Address]*big.Int
	contracts map[common.Address]Contract
	receipts  map[common.Hash]*types.Receipt
	nonces    map[common.Address]uint64

	Sent []*types.Transaction

	// HoldReceipts leaves sent transactions pending forever.
	HoldReceipts bool

	BalanceErr error
	CallErr    error
	SendErr    error
	ChainIDErr error
}

func NewChain(chainID int64) *Chain {
	return &Chain{
		chainID:   big.NewInt(chainID),
		balances:  make(map[common.Address]*big.Int),
		contracts: make(map[common.Address]Contract),
		receipts:  make(map[common.Hash]*types.Receipt),
		nonces:    make(map[common.Address]uint64),
	}
}

func (c *Chain) SetChainID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chainID = big.NewInt(id)
}

func (c *Chain) SetBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = new(big.Int).Set(wei)
}

func (c *Chain) Deploy(addr common.Address, contract Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[addr] = contract
}

// SentCount returns how many transactions were broadcast.
func (c *Chain) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

func (c *Chain) ChainID(_ context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ChainIDErr != nil {
		return nil, c.ChainIDErr
	}
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	if bal, ok := c.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (c *Chain) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.contracts[account]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (c *Chain) CallContract(_ context.Context, msg geth.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return nil, c.CallErr
	}
	return c.dispatch(msg.From, msg.To, msg.Value, msg.Data, false)
}

func (c *Chain) EstimateGas(_ context.Context, msg geth.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.dispatch(msg.From, msg.To, msg.Value, msg.Data, false); err != nil {
		return 0, err
	}
	return 100000, nil
}

func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

func (c *Chain) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *Chain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}

	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	c.nonces[from]++
	c.Sent = append(c.Sent, tx)

	status := types.ReceiptStatusSuccessful
	if _, err := c.dispatch(from, tx.To(), tx.Value(), tx.Data(), true); err != nil {
		status = types.ReceiptStatusFailed
	}
	if !c.HoldReceipts {
		c.receipts[tx.Hash()] = &types.Receipt{
			Status:      status,
			TxHash:      tx.Hash(),
			BlockNumber: big.NewInt(int64(len(c.Sent))),
			GasUsed:     tx.Gas(),
		}
	}
	return nil
}

func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.receipts[hash]; ok {
		return r, nil
	}
	return nil, geth.NotFound
}

func (c *Chain) dispatch(from common.Address, to *common.Address, value *big.Int, data []byte, commit bool) ([]byte, error) {
	if to == nil {
		return nil, errors.New("contract creation not supported")
	}
	contract, ok := c.contracts[*to]
	if !ok {
		// Plain account: calls succeed with empty output.
		return nil, nil
	}
	if value == nil {
		value = big.NewInt(0)
	}
	return contract.Handle(from, value, data, commit)
}

// KeySigner signs with a raw key. Reject makes every signature fail with Err.
type KeySigner struct {
	Key    *ecdsa.PrivateKey
	Reject bool
	Err    error
}

func NewKeySigner() *KeySigner {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &KeySigner{Key: key}
}

func (s *KeySigner) Address() common.Address { return crypto.PubkeyToAddress(s.Key.PublicKey) }

func (s *KeySigner) SignTx(_ context.Context, _ common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s.Reject {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, errors.New("signature rejected")
	}
	return types.SignTx(tx, types.NewEIP155Signer(chainID), s.Key)
}
