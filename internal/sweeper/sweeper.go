package sweeper

import (
	"context"
	"time"

	"github.com/drover-sh/drover/internal/metrics"
	"github.com/drover-sh/drover/internal/models"
	"github.com/drover-sh/drover/pkg/db"
	"github.com/drover-sh/drover/pkg/env"
	"github.com/drover-sh/drover/pkg/log"
	"github.com/robfig/cron"
	"gorm.io/gorm"
)

// Sweeper periodically marks nodes offline when their heartbeat goes
// stale. It never touches leases or device state: an expired lease only
// withdraws write authorization (the lease authority enforces that), it
// does not roll state back.
type Sweeper struct {
	db           *gorm.DB
	offlineAfter time.Duration
	now          func() time.Time
}

func New(dbConn *gorm.DB, offlineAfter time.Duration) *Sweeper {
	if dbConn == nil {
		panic("sweeper requires a database connection")
	}
	return &Sweeper{
		db:           dbConn,
		offlineAfter: offlineAfter,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the sweeper's clock (for tests).
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// Sweep flips stale online nodes to offline and returns how many changed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.offlineAfter)

	result := s.db.WithContext(ctx).
		Model(&models.NodeHeartbeat{}).
		Where("online = ? AND updated_at < ?", true, cutoff).
		Update("online", false)
	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected > 0 {
		metrics.NodesMarkedOfflineTotal.Add(float64(result.RowsAffected))
		log.Info("nodes marked offline", "count", result.RowsAffected)
	}

	return result.RowsAffected, nil
}

// Start runs the sweep on the configured schedule until ctx is cancelled.
func Start(ctx context.Context) error {
	vars := env.Variables()
	sweeper := New(db.Connection(), vars.NodeOfflineAfter)

	c := cron.New()
	if err := c.AddFunc(vars.SweepSchedule, func() {
		if _, err := sweeper.Sweep(ctx); err != nil {
			log.Error("heartbeat sweep failure", "error", err)
		}
	}); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	c.Stop()

	return ctx.Err()
}
