package wallet

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-swap/internal/ethereum"
	"github.com/kjannette/trahn-swap/internal/ethereum/ethtest"
)

type mockApprover struct {
	mu     sync.Mutex
	answer bool
	calls  int
}

func (m *mockApprover) Approve(_ context.Context, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.answer, nil
}

func newKeyProvider(t *testing.T, approve bool) (*KeyProvider, *Networks, *mockApprover) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	nets := NewNetworks(1, ethtest.NewChain(1), nil, nil)
	approver := &mockApprover{answer: approve}
	return NewKeyProviderFromKey(key, nets, approver), nets, approver
}

func TestDiscover_NoneConfigured(t *testing.T) {
	_, err := Discover(Options{Networks: NewNetworks(1, ethtest.NewChain(1), nil, nil)})
	require.ErrorIs(t, err, ErrNoProviderFound)
}

func TestDiscover_PrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := common.Bytes2Hex(crypto.FromECDSA(key))

	p, err := Discover(Options{PrivateKey: "0x" + hexKey, Networks: NewNetworks(1, ethtest.NewChain(1), nil, nil)})
	require.NoError(t, err)
	kp, ok := p.(*KeyProvider)
	require.True(t, ok)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), kp.Address())
}

func TestDiscover_BadKey(t *testing.T) {
	_, err := Discover(Options{PrivateKey: "nothex", Networks: NewNetworks(1, ethtest.NewChain(1), nil, nil)})
	require.Error(t, err)
}

func TestConnector_NoProvider(t *testing.T) {
	c := NewConnector(nil)
	_, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrNoProviderFound)

	_, err = c.CurrentSession()
	require.ErrorIs(t, err, ErrUnconnected)
}

func TestConnector_Connect(t *testing.T) {
	p, _, approver := newKeyProvider(t, true)
	c := NewConnector(p)
	defer c.Close()

	s, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p.Address(), s.Address)
	assert.Equal(t, int64(1), s.ChainID)

	got, err := c.CurrentSession()
	require.NoError(t, err)
	assert.Equal(t, s, got)

	// A second connect does not prompt again.
	_, err = c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, approver.calls)
}

func TestConnector_UserRejected(t *testing.T) {
	p, _, _ := newKeyProvider(t, false)
	c := NewConnector(p)
	defer c.Close()

	_, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrUserRejected)
	_, err = c.CurrentSession()
	require.ErrorIs(t, err, ErrUnconnected)
}

func TestConnector_Disconnect(t *testing.T) {
	p, _, _ := newKeyProvider(t, true)
	c := NewConnector(p)
	defer c.Close()

	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	c.Disconnect()
	_, err = c.CurrentSession()
	require.ErrorIs(t, err, ErrUnconnected)
}

func TestConnector_RevokeClearsSession(t *testing.T) {
	p, _, _ := newKeyProvider(t, true)
	c := NewConnector(p)
	defer c.Close()

	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	p.Revoke()
	assert.Eventually(t, func() bool {
		_, err := c.CurrentSession()
		return err == ErrUnconnected
	}, time.Second, 5*time.Millisecond)

	accounts, err := p.Accounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestConnector_SwitchChain(t *testing.T) {
	p, nets, _ := newKeyProvider(t, true)
	polygon := ethtest.NewChain(137)
	nets.Add(137, polygon)
	c := NewConnector(p)
	defer c.Close()

	var mu sync.Mutex
	var seen []Event
	c.OnChange(func(ev Event) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})

	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.SwitchChain(context.Background(), 137))
	_, err = c.CurrentSession()
	require.ErrorIs(t, err, ErrUnconnected)
	assert.Same(t, polygon, p.Backend())

	s, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(137), s.ChainID)

	// The late chainChanged event must not clear the new session.
	assert.Never(t, func() bool {
		_, err := c.CurrentSession()
		return err != nil
	}, 50*time.Millisecond, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, ChainChanged, seen[0].Kind)
}

func TestConnector_SwitchUnknownChain(t *testing.T) {
	p, _, _ := newKeyProvider(t, true)
	c := NewConnector(p)
	defer c.Close()

	err := c.SwitchChain(context.Background(), 42161)
	require.ErrorIs(t, err, ErrUnknownChain)
}

func TestNetworks_DialsLazily(t *testing.T) {
	dialed := ""
	nets := NewNetworks(1, ethtest.NewChain(1), map[int64]string{8453: "https://base.example"},
		func(url string) (ethereum.Backend, error) {
			dialed = url
			return ethtest.NewChain(8453), nil
		})

	changed, err := nets.Switch(8453)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "https://base.example", dialed)
	assert.Equal(t, int64(8453), nets.Current())

	changed, err = nets.Switch(8453)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestKeyProvider_SignTx(t *testing.T) {
	p, _, approver := newKeyProvider(t, true)
	tx := types.NewTx(&types.LegacyTx{Nonce: 0, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(1), To: &common.Address{}})

	_, err := p.SignTx(context.Background(), p.Address(), tx, big.NewInt(1))
	require.ErrorIs(t, err, ErrUnconnected)

	_, err = p.RequestAccounts(context.Background())
	require.NoError(t, err)

	signed, err := p.SignTx(context.Background(), p.Address(), tx, big.NewInt(1))
	require.NoError(t, err)
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), signed)
	require.NoError(t, err)
	assert.Equal(t, p.Address(), from)

	approver.mu.Lock()
	approver.answer = false
	approver.mu.Unlock()
	_, err = p.SignTx(context.Background(), p.Address(), tx, big.NewInt(1))
	require.ErrorIs(t, err, ErrUserRejected)
}

func TestKeystoreProvider_SignTx(t *testing.T) {
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	acct, err := ks.NewAccount("pw")
	require.NoError(t, err)

	p := newKeystoreProvider(ks, "pw", NewNetworks(1, ethtest.NewChain(1), nil, nil), StaticApprover(true))
	defer p.Close()

	accounts, err := p.RequestAccounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, []common.Address{acct.Address}, accounts)

	tx := types.NewTx(&types.LegacyTx{Gas: 21000, GasPrice: big.NewInt(1), To: &common.Address{}})
	signed, err := p.SignTx(context.Background(), acct.Address, tx, big.NewInt(1))
	require.NoError(t, err)
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), signed)
	require.NoError(t, err)
	assert.Equal(t, acct.Address, from)
}

func TestWatcher_DetectsChainDrift(t *testing.T) {
	p, nets, _ := newKeyProvider(t, true)
	nets.Add(10, ethtest.NewChain(10))
	c := NewConnector(p)
	defer c.Close()

	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	w := NewWatcher(p, c, time.Hour)
	require.NoError(t, w.CheckNow(context.Background()))
	_, err = c.CurrentSession()
	require.NoError(t, err)

	// Switch underneath the provider so no event is pushed.
	_, err = nets.Switch(10)
	require.NoError(t, err)
	require.NoError(t, w.CheckNow(context.Background()))
	_, err = c.CurrentSession()
	require.ErrorIs(t, err, ErrUnconnected)
}

func TestWatcher_StartStop(t *testing.T) {
	p, _, _ := newKeyProvider(t, true)
	w := NewWatcher(p, NewConnector(p), time.Millisecond)
	w.Start()
	assert.True(t, w.Running())
	w.Stop()
	assert.False(t, w.Running())
}

func TestPromptApprover(t *testing.T) {
	cases := map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false}
	for in, want := range cases {
		var out bytes.Buffer
		a := NewPromptApprover(strings.NewReader(in), &out)
		got, err := a.Approve(context.Background(), "Connect?")
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %q", in)
		assert.Contains(t, out.String(), "Connect? [y/N]")
	}
}
