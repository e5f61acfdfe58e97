package tokens

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReader struct {
	decimals uint8
	symbol   string
	err      error
	calls    int
}

func (m *mockReader) Decimals(_ context.Context, _ common.Address) (uint8, error) {
	m.calls++
	return m.decimals, m.err
}

func (m *mockReader) Symbol(_ context.Context, _ common.Address) (string, error) {
	return m.symbol, nil
}

const pepe = "0x6982508145454Ce325dDbE47a25d4ec3d2311933"

func TestResolve_Native(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	tok, err := r.Resolve(context.Background(), 1, "eth")
	require.NoError(t, err)
	assert.True(t, tok.Native)
	assert.Equal(t, "ETH", tok.Symbol)
	assert.Equal(t, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), tok.Address)
}

func TestResolve_NativeOtherChain(t *testing.T) {
	wpol := common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270")
	r := NewRegistry(nil, nil, map[int64]common.Address{137: wpol})

	tok, err := r.Resolve(context.Background(), 137, "POL")
	require.NoError(t, err)
	assert.Equal(t, wpol, tok.Address)

	_, err = r.Resolve(context.Background(), 10, "ETH")
	require.ErrorIs(t, err, ErrUnknownToken)
}

func TestResolve_KnownSymbol(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	tok, err := r.Resolve(context.Background(), 1, "usdc")
	require.NoError(t, err)
	assert.Equal(t, uint8(6), tok.Decimals)

	// Same token by address, any case.
	byAddr, err := r.Resolve(context.Background(), 1, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	require.NoError(t, err)
	assert.Equal(t, tok, byAddr)
}

func TestResolve_Unknown(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	for _, ref := range []string{"", "SHIB", "0x1234", "0xZZ"} {
		_, err := r.Resolve(context.Background(), 1, ref)
		assert.ErrorIs(t, err, ErrUnknownToken, ref)
	}
}

func TestResolve_LookupCaches(t *testing.T) {
	reader := &mockReader{decimals: 18, symbol: "PEPE"}
	r := NewRegistry(reader, NewMemoryCache(), nil)

	tok, err := r.Resolve(context.Background(), 1, pepe)
	require.NoError(t, err)
	assert.Equal(t, "PEPE", tok.Symbol)

	_, err = r.Resolve(context.Background(), 1, pepe)
	require.NoError(t, err)
	assert.Equal(t, 1, reader.calls)
}

func TestResolve_LookupError(t *testing.T) {
	reader := &mockReader{err: errors.New("reverted")}
	r := NewRegistry(reader, NewMemoryCache(), nil)

	_, err := r.Resolve(context.Background(), 1, pepe)
	require.Error(t, err)
}

func TestWrapped(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	w, err := r.Wrapped(1)
	require.NoError(t, err)
	assert.Equal(t, "WETH", w.Symbol)
	assert.False(t, w.Native)
}

func TestBoltCache_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")
	tok := Token{ChainID: 1, Address: common.HexToAddress(pepe), Symbol: "PEPE", Decimals: 18}

	c, err := OpenBoltCache(path)
	require.NoError(t, err)
	require.NoError(t, c.Put(tok))
	require.NoError(t, c.Close())

	c, err = OpenBoltCache(path)
	require.NoError(t, err)
	defer c.Close()

	got, ok, err := c.Get(1, common.HexToAddress(pepe))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tok, got)

	_, ok, err = c.Get(137, common.HexToAddress(pepe))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
