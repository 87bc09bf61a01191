package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner removes revocation entries that no longer matter.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// StartRevocationPruner runs p every interval until ctx is done. The returned
// channel closes once the loop has exited. A non-positive interval disables it.
func StartRevocationPruner(ctx context.Context, p Pruner, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		logger.Info("revocation pruning disabled")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := p.Prune(ctx)
				if err != nil {
					logger.Warn("revocation prune failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					logger.Info("pruned expired revocations", zap.Int64("removed", removed))
				}
			}
		}
	}()
	return done
}
