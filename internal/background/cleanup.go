package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExpiredDeleter removes rows whose expiry has passed.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically removes expired refresh tokens and one-time
// link tokens from the database.
type CleanupManager struct {
	targets  map[string]ExpiredDeleter
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager. targets is keyed by a
// name used in log lines.
func NewCleanupManager(targets map[string]ExpiredDeleter, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		targets:  targets,
		logger:   logger,
		interval: interval,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. It blocks until Stop is called
// or ctx is cancelled.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce sweeps every target. A failing target does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) map[string]int64 {
	deleted := make(map[string]int64, len(cm.targets))

	for name, target := range cm.targets {
		cleanupCtx, cancel := context.WithTimeout(ctx, cm.timeout)
		rows, err := target.DeleteExpired(cleanupCtx)
		cancel()

		if err != nil {
			cm.logger.Error("expired token cleanup failed", slog.String("target", name), slog.Any("error", err))
			continue
		}

		deleted[name] = rows
		if rows > 0 {
			cm.logger.Info("expired token cleanup completed", slog.String("target", name), slog.Int64("rows_deleted", rows))
		}
	}

	return deleted
}

// Stop signals the cleanup manager to stop. It is safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
