package api

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Database string `json:"database"`
	Chain    string `json:"chain"`
	Wallet   string `json:"wallet"`
	DryRun   bool   `json:"dryRun"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "disabled"
	if s.pool != nil {
		dbStatus = "connected"
		if err := s.pool.Ping(ctx); err != nil {
			dbStatus = "disconnected"
		}
	}

	chainStatus := "connected"
	if _, err := s.svc.Client.ChainID(ctx); err != nil {
		chainStatus = "unreachable"
	}

	walletStatus := "none"
	if s.svc.Provider != nil {
		walletStatus = "disconnected"
		if _, err := s.svc.Connector.CurrentSession(); err == nil {
			walletStatus = "connected"
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services: healthServices{
			Database: dbStatus,
			Chain:    chainStatus,
			Wallet:   walletStatus,
			DryRun:   s.svc.Flow.DryRun(),
		},
	})
}
