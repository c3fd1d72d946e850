package challenge

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunJanitor purges expired challenges every interval until ctx is done.
// onPurged, if set, receives the number of rows removed by each sweep.
func RunJanitor(ctx context.Context, m *Manager, interval time.Duration, logger *zap.SugaredLogger, onPurged func(int64)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warnw("purge expired challenges failed", "err", err)
				}
				continue
			}
			if n > 0 {
				logger.Debugw("purged expired challenges", "count", n)
			}
			if onPurged != nil {
				onPurged(n)
			}
		}
	}
}
