package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/trahn-swap/internal/ethereum"
	"github.com/kjannette/trahn-swap/internal/links"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

// handleLinks lists destinations for the session chain, or the configured
// chain when no wallet is connected.
func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Connector.CurrentSession()
	if err != nil {
		writeJSON(w, http.StatusOK, links.Static(int64(s.svc.Config().ChainID)))
		return
	}
	writeJSON(w, http.StatusOK, links.ForAddress(sess.ChainID, sess.Address))
}

func explorerAddress(sess wallet.Session) string {
	if sess.Address == (common.Address{}) {
		return ""
	}
	return ethereum.ExplorerAddressURL(sess.ChainID, sess.Address)
}
