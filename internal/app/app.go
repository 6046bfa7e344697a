package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"onhass/internal/bus"
	"onhass/internal/config"
	"onhass/internal/domain"
	"onhass/internal/metrics"
	"onhass/internal/session"
	"onhass/internal/transmission"
)

// Run launches the collector/scheduler pair and blocks until ctx is
// cancelled. One poll runs at a time; commands request out-of-band polls
// through the manager's refresh channel.
func Run(
	parentCtx context.Context,
	cfg *config.Config,
	manager *session.Manager,
	mqttTx *transmission.Transmitter,
	logger *logrus.Logger,
) {
	ctx, cancel := context.WithCancel(parentCtx)
	go func() {
		<-parentCtx.Done()
		cancel()
	}()

	messageBus := bus.New()
	grp, ctx := errgroup.WithContext(ctx)

	// Collector -----------------------------------------------------------
	grp.Go(func() error {
		poll := func() {
			start := time.Now()
			connectors, err := manager.Poll(ctx)
			metrics.PollDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.PollFailures.Inc()
				logger.WithError(err).Warn("collector: update cycle failed")
				return
			}
			metrics.ActiveSessions.Set(float64(len(connectors)))
			messageBus.Publish(&domain.Snapshot{Taken: time.Now(), Connectors: connectors})
		}

		// Initial poll so entities appear without waiting a full interval.
		poll()

		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				poll()
			case <-manager.RefreshRequests():
				poll()
			}
		}
	})

	// Scheduler -----------------------------------------------------------
	sub := messageBus.Subscribe()
	grp.Go(func() error {
		var latest *domain.Snapshot
		var lastSent *domain.Snapshot
		var lastSentAt time.Time

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case snap, ok := <-sub:
				if !ok {
					return nil
				}
				latest = snap
			case <-ticker.C:
				if latest == nil {
					continue
				}
				force := cfg.ForceUpdateInterval > 0 && time.Since(lastSentAt) >= cfg.ForceUpdateInterval
				if !force && !domain.Changed(lastSent, latest) {
					continue
				}
				if mqttTx == nil {
					logger.WithField("connectors", len(latest.Connectors)).Info("Reconciled view (no transmitter configured)")
					lastSent = latest
					lastSentAt = time.Now()
					continue
				}
				if err := mqttTx.Transmit(latest); err != nil {
					logger.WithError(err).Warn("MQTT transmit failed")
					// Clear lastSent so the next tick retries even if the
					// data has not changed since.
					lastSent = nil
					lastSentAt = time.Now()
				} else {
					lastSent = latest
					lastSentAt = time.Now()
				}
			}
		}
	})

	// Metrics -------------------------------------------------------------
	if cfg.MetricsAddr != "" {
		grp.Go(func() error {
			return metrics.Serve(ctx, cfg.MetricsAddr, logger)
		})
	}

	if err := grp.Wait(); err != nil && err != context.Canceled {
		logger.WithError(err).Warn("app: background group exited")
	}
}
