package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjannette/trahn-swap/internal/httputil"
	"github.com/kjannette/trahn-swap/internal/models"
	"github.com/kjannette/trahn-swap/internal/tokens"
)

const coingeckoBase = "https://api.coingecko.com/api/v3"

var ErrNoPrice = errors.New("no usd price")

// CoinGecko asset platform and native coin ids per chain.
var (
	platforms = map[int64]string{
		1:     "ethereum",
		10:    "optimistic-ethereum",
		137:   "polygon-pos",
		8453:  "base",
		42161: "arbitrum-one",
	}
	nativeIDs = map[int64]string{
		1:     "ethereum",
		10:    "ethereum",
		137:   "polygon-ecosystem-token",
		8453:  "ethereum",
		42161: "ethereum",
	}
)

// CoinGeckoClient prices tokens in USD for display. Valuation never feeds
// the swap computation.
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewCoinGeckoClient() *CoinGeckoClient {
	return NewCoinGeckoClientWithBase(coingeckoBase)
}

func NewCoinGeckoClientWithBase(base string) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		},
	}
}

// PriceUSD returns the USD price of one whole unit of t.
func (c *CoinGeckoClient) PriceUSD(ctx context.Context, t tokens.Token) (float64, error) {
	if t.Native {
		id, ok := nativeIDs[t.ChainID]
		if !ok {
			return 0, fmt.Errorf("%w: chain %d has no native id", ErrNoPrice, t.ChainID)
		}
		var data map[string]map[string]float64
		q := url.Values{"ids": {id}, "vs_currencies": {"usd"}}
		if err := c.get(ctx, "/simple/price", q, &data); err != nil {
			return 0, err
		}
		return positive(data[id]["usd"], id)
	}

	platform, ok := platforms[t.ChainID]
	if !ok {
		return 0, fmt.Errorf("%w: chain %d has no platform", ErrNoPrice, t.ChainID)
	}
	addr := strings.ToLower(t.Address.Hex())
	var data map[string]map[string]float64
	q := url.Values{"contract_addresses": {addr}, "vs_currencies": {"usd"}}
	if err := c.get(ctx, "/simple/token_price/"+platform, q, &data); err != nil {
		return 0, err
	}
	return positive(data[addr]["usd"], t.Symbol)
}

// ValueUSD prices amount of t.
func (c *CoinGeckoClient) ValueUSD(ctx context.Context, t tokens.Token, amount models.TokenAmount) (float64, error) {
	price, err := c.PriceUSD(ctx, t)
	if err != nil {
		return 0, err
	}
	v := new(big.Rat).Mul(amount.Rat(), new(big.Rat).SetFloat64(price))
	f, _ := v.Float64()
	return f, nil
}

func (c *CoinGeckoClient) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path + "?" + q.Encode()
	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("coingecko fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func positive(price float64, what string) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, what)
	}
	return price, nil
}
