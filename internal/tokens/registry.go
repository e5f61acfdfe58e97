// Package tokens resolves user token references to addresses and metadata.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownToken = errors.New("unknown token")

// Token is the metadata needed to build paths and format amounts. The native
// asset carries the wrapped-native address so it can sit at a path end.
type Token struct {
	ChainID  int64          `json:"chainId"`
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Native   bool           `json:"native,omitempty"`
}

// MetadataReader is satisfied by *ethereum.ERC20.
type MetadataReader interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	Symbol(ctx context.Context, token common.Address) (string, error)
}

// Cache stores looked-up metadata between runs.
type Cache interface {
	Get(chainID int64, addr common.Address) (Token, bool, error)
	Put(t Token) error
	Close() error
}

var mainnet = []Token{
	{ChainID: 1, Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH", Decimals: 18},
	{ChainID: 1, Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6},
	{ChainID: 1, Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Symbol: "USDT", Decimals: 6},
	{ChainID: 1, Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Symbol: "DAI", Decimals: 18},
}

var nativeSymbol = map[int64]string{137: "POL"}

type Registry struct {
	reader  MetadataReader
	cache   Cache
	wrapped map[int64]common.Address
	known   map[int64]map[string]Token
}

// NewRegistry wires the reader used for unknown addresses. wrapped maps a
// chain to its wrapped-native token (WETH on mainnet).
func NewRegistry(reader MetadataReader, cache Cache, wrapped map[int64]common.Address) *Registry {
	r := &Registry{
		reader:  reader,
		cache:   cache,
		wrapped: make(map[int64]common.Address),
		known:   make(map[int64]map[string]Token),
	}
	for _, t := range mainnet {
		r.Register(t)
	}
	for id, addr := range wrapped {
		r.wrapped[id] = addr
	}
	if _, ok := r.wrapped[1]; !ok {
		r.wrapped[1] = mainnet[0].Address
	}
	return r
}

// Register adds a symbol shortcut for a chain.
func (r *Registry) Register(t Token) {
	if r.known[t.ChainID] == nil {
		r.known[t.ChainID] = make(map[string]Token)
	}
	r.known[t.ChainID][strings.ToUpper(t.Symbol)] = t
}

// Native returns the chain's native asset.
func (r *Registry) Native(chainID int64) (Token, error) {
	addr, ok := r.wrapped[chainID]
	if !ok {
		return Token{}, fmt.Errorf("%w: no wrapped native token for chain %d", ErrUnknownToken, chainID)
	}
	sym := nativeSymbol[chainID]
	if sym == "" {
		sym = "ETH"
	}
	return Token{ChainID: chainID, Address: addr, Symbol: sym, Decimals: 18, Native: true}, nil
}

// Wrapped returns the wrapped-native token as an ERC20.
func (r *Registry) Wrapped(chainID int64) (Token, error) {
	n, err := r.Native(chainID)
	if err != nil {
		return Token{}, err
	}
	n.Native = false
	n.Symbol = "W" + n.Symbol
	if t, ok := r.byAddress(chainID, n.Address); ok {
		return t, nil
	}
	return n, nil
}

// Resolve accepts "ETH" (or the chain's native symbol), a registered symbol,
// or a 0x address. Unknown addresses are looked up on chain and cached.
func (r *Registry) Resolve(ctx context.Context, chainID int64, ref string) (Token, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Token{}, fmt.Errorf("%w: empty reference", ErrUnknownToken)
	}

	upper := strings.ToUpper(ref)
	if upper == "ETH" || upper == "NATIVE" || (nativeSymbol[chainID] != "" && upper == nativeSymbol[chainID]) {
		return r.Native(chainID)
	}
	if t, ok := r.known[chainID][upper]; ok {
		return t, nil
	}

	if !strings.HasPrefix(ref, "0x") && !strings.HasPrefix(ref, "0X") {
		return Token{}, fmt.Errorf("%w: %q on chain %d", ErrUnknownToken, ref, chainID)
	}
	if !common.IsHexAddress(ref) {
		return Token{}, fmt.Errorf("%w: invalid address %q", ErrUnknownToken, ref)
	}
	addr := common.HexToAddress(ref)

	if t, ok := r.byAddress(chainID, addr); ok {
		return t, nil
	}
	if r.cache != nil {
		t, ok, err := r.cache.Get(chainID, addr)
		if err != nil {
			fmt.Printf("[TOKENS] Cache read failed for %s: %v\n", addr.Hex(), err)
		} else if ok {
			return t, nil
		}
	}
	return r.lookup(ctx, chainID, addr)
}

func (r *Registry) byAddress(chainID int64, addr common.Address) (Token, bool) {
	for _, t := range r.known[chainID] {
		if t.Address == addr {
			return t, true
		}
	}
	return Token{}, false
}

func (r *Registry) lookup(ctx context.Context, chainID int64, addr common.Address) (Token, error) {
	if r.reader == nil {
		return Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	decimals, err := r.reader.Decimals(ctx, addr)
	if err != nil {
		return Token{}, fmt.Errorf("token decimals: %w", err)
	}
	symbol, err := r.reader.Symbol(ctx, addr)
	if err != nil {
		// Some tokens (MKR) return bytes32; decimals alone is enough.
		fmt.Printf("[TOKENS] symbol() failed for %s: %v\n", addr.Hex(), err)
		symbol = addr.Hex()[:8]
	}

	t := Token{ChainID: chainID, Address: addr, Symbol: symbol, Decimals: decimals}
	if r.cache != nil {
		if err := r.cache.Put(t); err != nil {
			fmt.Printf("[TOKENS] Cache write failed for %s: %v\n", addr.Hex(), err)
		}
	}
	fmt.Printf("[TOKENS] Resolved %s = %s (%d decimals)\n", addr.Hex(), symbol, decimals)
	return t, nil
}
