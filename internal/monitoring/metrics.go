// Package monitoring exposes daemon metrics in Prometheus format.
package monitoring

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/daemon"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Gatekeeper metrics
	GatekeeperEvents *prometheus.CounterVec
	RedirectFailures prometheus.Counter

	// Session metrics
	SessionLocked      prometheus.Gauge
	SessionRemaining   prometheus.Gauge
	SessionsFinished   prometheus.Counter
	PersistenceRetries prometheus.Counter
}

// NewMetrics creates a collector set on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		GatekeeperEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "focuslock_gatekeeper_events_total",
				Help: "Foreground changes evaluated by the gatekeeper, by verdict",
			},
			[]string{"verdict"},
		),
		RedirectFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "focuslock_redirect_failures_total",
				Help: "Blocked apps the platform failed to send away",
			},
		),
		SessionLocked: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "focuslock_session_locked",
				Help: "1 while a focus session is locked",
			},
		),
		SessionRemaining: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "focuslock_session_remaining_seconds",
				Help: "Seconds until the current session ends",
			},
		),
		SessionsFinished: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "focuslock_sessions_finished_total",
				Help: "Sessions that ran to completion",
			},
		),
		PersistenceRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "focuslock_persistence_retries_total",
				Help: "Retried attempts to persist a finished session",
			},
		),
	}
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveVerdict records one gatekeeper evaluation.
func (m *Metrics) ObserveVerdict(verdict string) {
	m.GatekeeperEvents.WithLabelValues(verdict).Inc()
}

// RedirectFailed records a failed platform redirect.
func (m *Metrics) RedirectFailed() {
	m.RedirectFailures.Inc()
}

// SetLocked updates the lock gauge.
func (m *Metrics) SetLocked(locked bool) {
	if locked {
		m.SessionLocked.Set(1)
		return
	}
	m.SessionLocked.Set(0)
	m.SessionRemaining.Set(0)
}

// SetRemaining updates the remaining-time gauge.
func (m *Metrics) SetRemaining(d time.Duration) {
	if d < 0 {
		d = 0
	}
	m.SessionRemaining.Set(d.Seconds())
}

// SessionFinished counts a completed session.
func (m *Metrics) SessionFinished() {
	m.SessionsFinished.Inc()
}

// PersistenceRetry counts a retried finish write.
func (m *Metrics) PersistenceRetry() {
	m.PersistenceRetries.Inc()
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln, logger)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", zap.Error(err))
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

var (
	_ usecase.GatekeeperMetrics = (*Metrics)(nil)
	_ daemon.CountdownMetrics   = (*Metrics)(nil)
)
