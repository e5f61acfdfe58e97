package api

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/trahn-swap/internal/models"
	"github.com/kjannette/trahn-swap/internal/tokens"
)

type balanceResponse struct {
	Owner   string             `json:"owner,omitempty"`
	Token   tokens.Token       `json:"token"`
	Balance models.TokenAmount `json:"balance"`
	USD     *float64           `json:"usd,omitempty"`
}

// ownerParam reads ?address=. Without it the connected session is used.
func ownerParam(r *http.Request) (*common.Address, bool) {
	v := r.URL.Query().Get("address")
	if v == "" {
		return nil, true
	}
	if !common.IsHexAddress(v) {
		return nil, false
	}
	a := common.HexToAddress(v)
	return &a, true
}

func (s *Server) handleNativeBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	ctx := r.Context()

	chainID, holder, err := s.holder(owner)
	if err != nil {
		writeFailure(w, "native balance", err)
		return
	}
	var bal models.TokenAmount
	if owner != nil {
		bal, err = s.svc.Balances.ReadNative(ctx, *owner)
	} else {
		bal, err = s.svc.Balances.SessionNative(ctx)
	}
	if err != nil {
		writeFailure(w, "native balance", err)
		return
	}
	tok, err := s.svc.Tokens.Native(chainID)
	if err != nil {
		writeFailure(w, "native balance", err)
		return
	}
	writeJSON(w, http.StatusOK, s.balanceBody(ctx, holder, tok, bal))
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	ref := r.PathValue("token")
	ctx := r.Context()

	chainID, holder, err := s.holder(owner)
	if err != nil {
		writeFailure(w, "token balance", err)
		return
	}
	tok, err := s.svc.Tokens.Resolve(ctx, chainID, ref)
	if err != nil {
		writeFailure(w, "token balance", err)
		return
	}

	var bal models.TokenAmount
	switch {
	case owner == nil:
		bal, err = s.svc.Balances.SessionToken(ctx, ref)
	case tok.Native:
		bal, err = s.svc.Balances.ReadNative(ctx, *owner)
	default:
		bal, err = s.svc.Balances.ReadToken(ctx, tok.Address, *owner)
	}
	if err != nil {
		writeFailure(w, "token balance", err)
		return
	}
	writeJSON(w, http.StatusOK, s.balanceBody(ctx, holder, tok, bal))
}

// holder returns the chain and address a balance is read for.
func (s *Server) holder(owner *common.Address) (int64, string, error) {
	if owner != nil {
		return s.svc.Networks.Current(), owner.Hex(), nil
	}
	sess, err := s.svc.Connector.CurrentSession()
	if err != nil {
		return 0, "", err
	}
	return sess.ChainID, sess.Address.Hex(), nil
}

func (s *Server) balanceBody(ctx context.Context, owner string, tok tokens.Token, bal models.TokenAmount) balanceResponse {
	return balanceResponse{
		Owner:   owner,
		Token:   tok,
		Balance: bal,
		USD:     s.svc.ValueUSD(ctx, tok, bal),
	}
}
