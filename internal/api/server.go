package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-swap/internal/metrics"
	"github.com/kjannette/trahn-swap/internal/service"
)

const (
	maxQueryLimit = 500
	maxBodyBytes  = 1 << 16
)

type Server struct {
	svc        *service.Service
	pool       *pgxpool.Pool
	metrics    *metrics.Metrics
	httpServer *http.Server
	apiKey     string
}

// NewServer wires the routes. pool may be nil; /health then reports the
// database as disabled.
func NewServer(svc *service.Service, pool *pgxpool.Pool, port int, apiKey, corsOrigin string) *Server {
	s := &Server{
		svc:     svc,
		pool:    pool,
		metrics: svc.Metrics,
		apiKey:  apiKey,
	}

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     s.routes(corsOrigin),
		ReadTimeout: 10 * time.Second,
		// swaps block until the receipt arrives
		WriteTimeout: time.Duration(svc.Config().ConfirmTimeoutSeconds)*time.Second + 30*time.Second,
	}

	return s
}

func (s *Server) routes(corsOrigin string) http.Handler {
	mux := http.NewServeMux()

	// Session routes
	mux.HandleFunc("GET /v1/session", s.handleSession)
	mux.HandleFunc("POST /v1/session/connect", s.handleConnect)
	mux.HandleFunc("POST /v1/session/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /v1/session/chain", s.handleSwitchChain)

	// Balance routes
	mux.HandleFunc("GET /v1/balances/native", s.handleNativeBalance)
	mux.HandleFunc("GET /v1/balances/token/{token}", s.handleTokenBalance)

	// Swap routes
	mux.HandleFunc("POST /v1/quote", s.handleQuote)
	mux.HandleFunc("POST /v1/swaps", s.handleSwap)
	mux.HandleFunc("GET /v1/swaps", s.handleSwapHistory)
	mux.HandleFunc("GET /v1/swaps/stats", s.handleSwapStats)

	mux.HandleFunc("GET /v1/links", s.handleLinks)

	// No auth required
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.metricsMiddleware(s.authMiddleware(corsMiddleware(mux, corsOrigin)))
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	fmt.Printf("[API] REST API server started on http://localhost%s\n", s.httpServer.Addr)
	fmt.Printf("[API] Health check: http://localhost%s/health\n", s.httpServer.Addr)
	if s.apiKey != "" {
		fmt.Println("[API] Authentication: enabled (Bearer token)")
	} else {
		fmt.Println("[API] Authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func openPath(p string) bool { return p == "/health" || p == "/metrics" }

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || openPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware counts requests by route pattern and status.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// --- request helpers ---

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
