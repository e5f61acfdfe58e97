// Package metrics exposes Prometheus counters for the swap flow.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjannette/trahn-swap/internal/ethereum"
	"github.com/kjannette/trahn-swap/internal/models"
	"github.com/kjannette/trahn-swap/internal/swap"
	"github.com/kjannette/trahn-swap/internal/wallet"
)

type Metrics struct {
	registry *prometheus.Registry

	Transitions   *prometheus.CounterVec
	SwapsFinished *prometheus.CounterVec
	Quotes        *prometheus.CounterVec
	Session       prometheus.Gauge
	HTTPRequests  *prometheus.CounterVec
}

// New registers every metric on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trahn_swap"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "transitions_total",
			Help:      "Attempt state transitions by target state",
		}, []string{"state"}),
		SwapsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "attempts_finished_total",
			Help:      "Terminal attempts by venue, state and dry-run flag",
		}, []string{"venue", "state", "dry_run"}),
		Quotes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "quotes_total",
			Help:      "Quote requests by venue and result",
		}, []string{"venue", "result"}),
		Session: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "session_connected",
			Help:      "1 while a wallet session is held",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// Observer counts state-machine transitions.
func (m *Metrics) Observer() swap.Observer {
	return swap.ObserverFunc(func(n swap.Notification) {
		m.Transitions.WithLabelValues(string(n.NextState)).Inc()
	})
}

func (m *Metrics) SwapFinished(_ context.Context, ev models.SwapEvent) {
	dry := "false"
	if ev.DryRun {
		dry = "true"
	}
	m.SwapsFinished.WithLabelValues(ev.Venue, ev.State, dry).Inc()
}

// ObserveQuote records a quote outcome.
func (m *Metrics) ObserveQuote(venue string, err error) {
	m.Quotes.WithLabelValues(venue, Result(err)).Inc()
}

// SessionChanged tracks whether a session is held.
func (m *Metrics) SessionChanged(connected bool) {
	if connected {
		m.Session.Set(1)
		return
	}
	m.Session.Set(0)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Result maps an error to a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, swap.ErrInsufficientLiquidity):
		return "no_liquidity"
	case errors.Is(err, swap.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, swap.ErrWrongNetwork):
		return "wrong_network"
	case errors.Is(err, wallet.ErrUnconnected):
		return "unconnected"
	case errors.Is(err, ethereum.ErrRPC):
		return "rpc"
	default:
		return "error"
	}
}
