// Package telemetry periodically logs a stats snapshot of every
// registered handler.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/registry"
)

type Logger interface {
	Interval() time.Duration
	Close() error
}

type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.TelemetryCfg
	logger   *slog.Logger
	registry *registry.Registry
	interval time.Duration
}

func New(
	ctx context.Context,
	cfg *config.TelemetryCfg,
	logger *slog.Logger,
	reg *registry.Registry,
) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	interval := time.Duration(0)
	if cfg.Enabled() {
		interval = cfg.LogsInterval
	}
	return (&Logs{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		interval: interval,
	}).run()
}

func (l *Logs) Interval() time.Duration {
	return l.interval
}

func (l *Logs) Close() error {
	l.cancel()
	return nil
}

func (l *Logs) run() *Logs {
	if l.cfg.Enabled() && l.interval > 0 {
		go l.loop()
	}
	return l
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return

		case <-ticker.C:
			all, err := l.registry.AllStats(l.ctx)
			if err != nil {
				l.logger.Warn("stats snapshot incomplete", "error", err)
			}
			for _, s := range all {
				l.logger.Info("cache_handler",
					"interval", l.interval.String(),
					"name", s.Name,
					"tier", string(s.Tier),
					"entries", s.Count,
					"limit", s.Limit,
					"hits", int64(s.Hits),
					"misses", int64(s.Misses),
					"hit_ratio", s.HitRatio,
				)
			}
		}
	}
}
