package risk

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type mockCounter struct {
	count int
	err   error
	calls int
}

func (m *mockCounter) CountToday(_ context.Context) (int, error) {
	m.calls++
	return m.count, m.err
}

// --- network ---

func TestPreSwapCheck_Network_Allowed(t *testing.T) {
	g := NewGuardian(Limits{ChainID: 1}, &mockCounter{})
	if err := g.PreSwapCheck(context.Background(), 1, 50); err != nil {
		t.Fatalf("expected swap to be allowed, got: %v", err)
	}
}

func TestPreSwapCheck_Network_Blocked(t *testing.T) {
	g := NewGuardian(Limits{ChainID: 1}, &mockCounter{})
	err := g.PreSwapCheck(context.Background(), 137, 50)
	if !errors.Is(err, ErrWrongNetwork) {
		t.Fatalf("expected ErrWrongNetwork, got: %v", err)
	}
	t.Logf("Correctly blocked: %v", err)
}

// --- slippage ---

func TestPreSwapCheck_Slippage_AtLimit(t *testing.T) {
	g := NewGuardian(Limits{MaxSlippagePercent: 5}, &mockCounter{})
	if err := g.PreSwapCheck(context.Background(), 1, 500); err != nil {
		t.Fatalf("500 bps should be allowed at 5%%, got: %v", err)
	}
}

func TestPreSwapCheck_Slippage_Blocked(t *testing.T) {
	g := NewGuardian(Limits{MaxSlippagePercent: 5}, &mockCounter{})
	err := g.PreSwapCheck(context.Background(), 1, 501)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got: %v", err)
	}
	t.Logf("Correctly blocked: %v", err)
}

func TestPreSwapCheck_Slippage_DisabledWhenZero(t *testing.T) {
	g := NewGuardian(Limits{}, &mockCounter{})
	if err := g.PreSwapCheck(context.Background(), 1, 9999); err != nil {
		t.Fatalf("zero limit should disable check, got: %v", err)
	}
}

// --- daily swaps ---

func TestPreSwapCheck_DailySwaps_Allowed(t *testing.T) {
	g := NewGuardian(Limits{MaxDailySwaps: 50}, &mockCounter{count: 49})
	if err := g.PreSwapCheck(context.Background(), 1, 50); err != nil {
		t.Fatalf("expected swap to be allowed (49/50), got: %v", err)
	}
}

func TestPreSwapCheck_DailySwaps_Blocked(t *testing.T) {
	g := NewGuardian(Limits{MaxDailySwaps: 50}, &mockCounter{count: 50})
	err := g.PreSwapCheck(context.Background(), 1, 50)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected swap to be blocked (50/50), got: %v", err)
	}
	t.Logf("Correctly blocked: %v", err)
}

func TestPreSwapCheck_DailySwaps_CounterError(t *testing.T) {
	g := NewGuardian(Limits{MaxDailySwaps: 50}, &mockCounter{err: fmt.Errorf("db down")})
	err := g.PreSwapCheck(context.Background(), 1, 50)
	if err == nil {
		t.Fatal("expected error when counter fails")
	}
	t.Logf("Correctly blocked on counter error: %v", err)
}

func TestPreSwapCheck_DailySwaps_DisabledWhenZero(t *testing.T) {
	c := &mockCounter{count: 9999}
	g := NewGuardian(Limits{MaxDailySwaps: 0}, c)
	if err := g.PreSwapCheck(context.Background(), 1, 50); err != nil {
		t.Fatalf("zero limit should disable check, got: %v", err)
	}
	if c.calls != 0 {
		t.Fatalf("counter should not be queried, got %d calls", c.calls)
	}
}

func TestPreSwapCheck_DailySwaps_NilCounter(t *testing.T) {
	g := NewGuardian(Limits{MaxDailySwaps: 1}, nil)
	if err := g.PreSwapCheck(context.Background(), 1, 50); err != nil {
		t.Fatalf("nil counter should skip the check, got: %v", err)
	}
}

func TestPreSwapCheck_NetworkFailsFirst(t *testing.T) {
	c := &mockCounter{count: 50}
	g := NewGuardian(Limits{ChainID: 1, MaxDailySwaps: 50, MaxSlippagePercent: 1}, c)

	err := g.PreSwapCheck(context.Background(), 5, 5000)
	if !errors.Is(err, ErrWrongNetwork) {
		t.Fatalf("expected network check first, got: %v", err)
	}
	if c.calls != 0 {
		t.Fatal("counter should not be queried after a network failure")
	}
}

func TestPreSwapCheck_AllDisabled(t *testing.T) {
	g := NewGuardian(Limits{}, &mockCounter{count: 9999})
	if err := g.PreSwapCheck(context.Background(), 42, 9999); err != nil {
		t.Fatalf("all-zero limits should allow everything, got: %v", err)
	}
}
