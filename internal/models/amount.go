package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrTooPrecise    = errors.New("amount has more fractional digits than token decimals")
)

// TokenAmount is an integer quantity in a token's smallest unit. Display
// formatting is the only place decimals are applied.
type TokenAmount struct {
	Raw      *big.Int
	Decimals uint8
	Symbol   string
}

func NewTokenAmount(raw *big.Int, decimals uint8, symbol string) TokenAmount {
	if raw == nil {
		raw = new(big.Int)
	}
	return TokenAmount{Raw: new(big.Int).Set(raw), Decimals: decimals, Symbol: symbol}
}

// ParseTokenAmount converts a human decimal string ("1.5") to smallest units.
func ParseTokenAmount(s string, decimals uint8, symbol string) (TokenAmount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TokenAmount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return TokenAmount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return TokenAmount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if whole == "" {
		whole = "0"
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return TokenAmount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return TokenAmount{}, fmt.Errorf("%w: %q allows %d", ErrTooPrecise, s, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	raw, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return TokenAmount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return TokenAmount{Raw: raw, Decimals: decimals, Symbol: symbol}, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (a TokenAmount) IsPositive() bool { return a.Raw != nil && a.Raw.Sign() > 0 }

// Rat returns the decimal-adjusted value.
func (a TokenAmount) Rat() *big.Rat {
	raw := a.Raw
	if raw == nil {
		raw = new(big.Int)
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.Decimals)), nil)
	return new(big.Rat).SetFrac(raw, denom)
}

// Format renders the amount with all significant decimals and no trailing zeros.
func (a TokenAmount) Format() string {
	raw := a.Raw
	if raw == nil {
		raw = new(big.Int)
	}
	digits := raw.String()
	if a.Decimals == 0 {
		return digits
	}
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	d := int(a.Decimals)
	if len(digits) <= d {
		digits = strings.Repeat("0", d-len(digits)+1) + digits
	}
	whole, frac := digits[:len(digits)-d], strings.TrimRight(digits[len(digits)-d:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// FormatFixed renders the amount rounded to prec decimals.
func (a TokenAmount) FormatFixed(prec int) string {
	return a.Rat().FloatString(prec)
}

func (a TokenAmount) String() string {
	if a.Symbol == "" {
		return a.Format()
	}
	return a.Format() + " " + a.Symbol
}

type tokenAmountJSON struct {
	Raw      string `json:"raw"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol,omitempty"`
	Display  string `json:"display"`
}

func (a TokenAmount) MarshalJSON() ([]byte, error) {
	raw := "0"
	if a.Raw != nil {
		raw = a.Raw.String()
	}
	return json.Marshal(tokenAmountJSON{Raw: raw, Decimals: a.Decimals, Symbol: a.Symbol, Display: a.Format()})
}

func (a *TokenAmount) UnmarshalJSON(b []byte) error {
	var v tokenAmountJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	raw, ok := new(big.Int).SetString(v.Raw, 10)
	if !ok {
		return fmt.Errorf("%w: raw %q", ErrInvalidAmount, v.Raw)
	}
	*a = TokenAmount{Raw: raw, Decimals: v.Decimals, Symbol: v.Symbol}
	return nil
}
