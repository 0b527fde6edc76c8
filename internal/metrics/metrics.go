// Package metrics exposes poll and transaction counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Amr-9/DevMint/pkg/dapp"
)

const namespace = "devmint"

// Metrics implements the recorder hooks of the reconciler and controller.
type Metrics struct {
	registry *prometheus.Registry
	ticks    *prometheus.CounterVec
	ops      *prometheus.CounterVec
	minted   prometheus.Gauge
	pending  prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Poll ticks by stream and result.",
		}, []string{"stream", "result"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Write operations by method and result.",
		}, []string{"method", "result"}),
		minted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "minted_tokens",
			Help:      "Last observed tokenIds() value.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_operation",
			Help:      "1 while a write is in flight.",
		}),
	}
	m.registry.MustRegister(m.ticks, m.ops, m.minted, m.pending)
	return m
}

// ObserveTick counts one poll tick.
func (m *Metrics) ObserveTick(stream dapp.Stream, err error) {
	m.ticks.WithLabelValues(string(stream), Result(err)).Inc()
}

// SetMinted records the latest mint count.
func (m *Metrics) SetMinted(n uint64) {
	m.minted.Set(float64(n))
}

// SetPending flips the pending-operation gauge.
func (m *Metrics) SetPending(pending bool) {
	if pending {
		m.pending.Set(1)
		return
	}
	m.pending.Set(0)
}

// ObserveOperation counts a finished write.
func (m *Metrics) ObserveOperation(method dapp.Method, err error) {
	m.ops.WithLabelValues(method.ContractMethod(), Result(err)).Inc()
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Result maps an error onto a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, dapp.ErrWrongNetwork):
		return "wrong_network"
	case errors.Is(err, dapp.ErrConnectionRejected):
		return "connection_rejected"
	case errors.Is(err, dapp.ErrUserRejected):
		return "user_rejected"
	case errors.Is(err, dapp.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, dapp.ErrTransactionReverted):
		return "reverted"
	case errors.Is(err, dapp.ErrOperationPending):
		return "pending"
	case errors.Is(err, dapp.ErrRemoteCall):
		return "remote_call"
	default:
		return "error"
	}
}
