package api

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/trahn-swap/internal/models"
	"github.com/kjannette/trahn-swap/internal/repository"
	"github.com/kjannette/trahn-swap/internal/swap"
)

type quoteResponse struct {
	*swap.Quote
	AmountOutMin models.TokenAmount `json:"amountOutMin"`
	SlippageBps  int64              `json:"slippageBps"`
	USD          *float64           `json:"usd,omitempty"`
}

type swapFailure struct {
	Error  string       `json:"error"`
	Result *swap.Result `json:"result,omitempty"`
}

// parseMode extracts the ?mode= query parameter.
// Returns a *bool: nil = all, true = dry runs, false = live.
func parseMode(r *http.Request) (*bool, error) {
	v := r.URL.Query().Get("mode")
	switch v {
	case "", "all":
		return nil, nil
	case "dry":
		b := true
		return &b, nil
	case "live":
		b := false
		return &b, nil
	default:
		return nil, fmt.Errorf("invalid mode %q, expected dry|live|all", v)
	}
}

func parseFilter(r *http.Request) (repository.Filter, error) {
	mode, err := parseMode(r)
	if err != nil {
		return repository.Filter{}, err
	}
	f := repository.Filter{
		State:  r.URL.Query().Get("state"),
		DryRun: mode,
		Limit:  uint64(parseLimit(r, 50)),
	}
	switch f.State {
	case "", models.StateQuoting, models.StateApproving, models.StateExecuting,
		models.StateConfirmed, models.StateFailed:
	default:
		return repository.Filter{}, fmt.Errorf("invalid state %q", f.State)
	}
	if v := r.URL.Query().Get("wallet"); v != "" {
		if !common.IsHexAddress(v) {
			return repository.Filter{}, fmt.Errorf("invalid wallet %q", v)
		}
		f.Wallet = common.HexToAddress(v).Hex()
	}
	return f, nil
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var p swap.Params
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()

	q, err := s.svc.Quote(ctx, p)
	if err != nil {
		writeFailure(w, "quote", err)
		return
	}
	bps := p.SlippageBps
	if bps == 0 {
		bps = s.svc.Config().SlippageBps()
	}
	minOut, err := swap.MinAmountOut(q.AmountOut.Raw, bps)
	if err != nil {
		writeFailure(w, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		Quote:        q,
		AmountOutMin: models.NewTokenAmount(minOut, q.TokenOut.Decimals, q.TokenOut.Symbol),
		SlippageBps:  bps,
		USD:          s.svc.ValueUSD(ctx, q.TokenOut, q.AmountOut),
	})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var p swap.Params
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.Execute(r.Context(), p)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			fmt.Printf("[API] swap: %v\n", err)
		}
		writeJSON(w, status, swapFailure{Error: err.Error(), Result: res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSwapHistory(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	attempts, err := s.svc.History(r.Context(), f)
	if err != nil {
		writeFailure(w, "swap history", err)
		return
	}
	if attempts == nil {
		attempts = []models.SwapAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleSwapStats(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := s.svc.Stats(r.Context(), f)
	if err != nil {
		writeFailure(w, "swap stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
