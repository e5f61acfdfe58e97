package api

import (
	"errors"
	"net/http"

	"github.com/kjannette/trahn-swap/internal/wallet"
)

type sessionResponse struct {
	Connected bool            `json:"connected"`
	Session   *wallet.Session `json:"session,omitempty"`
	Explorer  string          `json:"explorer,omitempty"`
}

type switchChainRequest struct {
	ChainID int64 `json:"chainId"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Connector.CurrentSession()
	if errors.Is(err, wallet.ErrUnconnected) {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	if err != nil {
		writeFailure(w, "session", err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionBody(sess))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Connect(r.Context())
	if err != nil {
		writeFailure(w, "connect", err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionBody(sess))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.svc.Disconnect()
	writeJSON(w, http.StatusOK, sessionResponse{})
}

func (s *Server) handleSwitchChain(w http.ResponseWriter, r *http.Request) {
	var req switchChainRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ChainID <= 0 {
		writeError(w, http.StatusBadRequest, "chainId must be positive")
		return
	}
	if err := s.svc.SwitchChain(r.Context(), req.ChainID); err != nil {
		writeFailure(w, "switch chain", err)
		return
	}
	// the session is cleared; the client reconnects
	writeJSON(w, http.StatusOK, map[string]any{"chainId": req.ChainID, "connected": false})
}

func (s *Server) sessionBody(sess wallet.Session) sessionResponse {
	return sessionResponse{
		Connected: true,
		Session:   &sess,
		Explorer:  explorerAddress(sess),
	}
}
