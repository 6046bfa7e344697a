// Package metrics exposes operational counters for the poll loop and the
// command path.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "onhass_connectors",
		Help: "Connectors currently present in the reconciled view.",
	})
	PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "onhass_poll_duration_seconds",
		Help:    "Duration of one reconciliation cycle.",
		Buckets: prometheus.DefBuckets,
	})
	PollFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "onhass_poll_failures_total",
		Help: "Update cycles aborted by a failed active-session fetch.",
	})
	CommandFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "onhass_command_failures_total",
		Help: "Start/stop commands rejected by the API.",
	})
)

func init() {
	prometheus.MustRegister(ActiveSessions, PollDuration, PollFailures, CommandFailures)
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *logrus.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("Metrics listener ready")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
