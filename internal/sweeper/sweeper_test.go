package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/drover-sh/drover/internal/models"
	"github.com/drover-sh/drover/internal/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedHeartbeat(t *testing.T, db *gorm.DB, nodeID string, online bool, updatedAt time.Time) {
	t.Helper()

	require.NoError(t, db.Create(&models.NodeHeartbeat{
		NodeID:    nodeID,
		Online:    online,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}).Error)
}

func TestSweepMarksStaleNodesOffline(t *testing.T) {
	db := testutil.OpenTestDB(t)
	defer testutil.CloseDB(db)

	now := time.Now().UTC()
	seedHeartbeat(t, db, "node-fresh", true, now.Add(-30*time.Second))
	seedHeartbeat(t, db, "node-stale", true, now.Add(-5*time.Minute))
	seedHeartbeat(t, db, "node-gone", false, now.Add(-time.Hour))

	sweeper := New(db, 2*time.Minute).WithClock(func() time.Time { return now })

	changed, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), changed)

	var heartbeat models.NodeHeartbeat
	require.NoError(t, db.First(&heartbeat, "node_id = ?", "node-fresh").Error)
	require.True(t, heartbeat.Online)

	require.NoError(t, db.First(&heartbeat, "node_id = ?", "node-stale").Error)
	require.False(t, heartbeat.Online)
}

func TestSweepIsIdempotent(t *testing.T) {
	db := testutil.OpenTestDB(t)
	defer testutil.CloseDB(db)

	now := time.Now().UTC()
	seedHeartbeat(t, db, "node-stale", true, now.Add(-10*time.Minute))

	sweeper := New(db, 2*time.Minute).WithClock(func() time.Time { return now })

	changed, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), changed)

	changed, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, changed)
}
