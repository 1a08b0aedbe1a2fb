package stats

import (
	"context"
	"time"

	"github.com/xtrntr/otcexchange/internal/kst"
	"go.uber.org/zap"
)

// RunDaily saves the summary of each KST day right after it ends, until ctx
// is cancelled.
func (s *Service) RunDaily(ctx context.Context) {
	for {
		now := s.now()
		midnight := kst.NextMidnight(now)
		timer := time.NewTimer(midnight.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			// the day that just closed
			day := midnight.Add(-time.Minute)
			if _, err := s.SaveDayStats(ctx, day); err != nil {
				s.logger.Error("scheduled daily stats failed", zap.String("date", kst.DateString(day)), zap.Error(err))
			}
		}
	}
}
