package state

import (
	"context"
	"testing"
	"time"

	"github.com/drover-sh/drover/internal/models"
	"github.com/drover-sh/drover/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func seedRun(t *testing.T, store *Store) uuid.UUID {
	t.Helper()

	run := &models.Run{
		ID:              uuid.New(),
		Status:          models.RunStatusQueued,
		GlobalTimeoutMs: 300_000,
	}
	require.NoError(t, store.CreateRun(context.Background(), run))
	return run.ID
}

func TestRunLifecycle(t *testing.T) {
	db := testutil.OpenTestDB(t)
	defer testutil.CloseDB(db)

	ctx := context.Background()
	store := NewStore(db)
	runID := seedRun(t, store)

	require.NoError(t, store.StartRun(ctx, runID))

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusRunning, run.Status)
	require.NotNil(t, run.StartedAt)

	require.NoError(t, store.FinishRun(ctx, runID, 3, 0, 0))

	run, err = store.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusCompleted, run.Status)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, 3, run.SummarySucceeded)
}

func TestFinishRunWithFailures(t *testing.T) {
	db := testutil.OpenTestDB(t)
	defer testutil.CloseDB(db)

	ctx := context.Background()
	store := NewStore(db)

	cases := []struct {
		name                        string
		succeeded, failed, timedOut int
		expected                    models.RunStatus
	}{
		{"all succeeded", 4, 0, 0, models.RunStatusCompleted},
		{"one failed", 3, 1, 0, models.RunStatusCompletedWithErrors},
		{"one timed out", 3, 0, 1, models.RunStatusCompletedWithErrors},
		{"empty summary", 0, 0, 0, models.RunStatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runID := seedRun(t, store)
			require.NoError(t, store.FinishRun(ctx, runID, tc.succeeded, tc.failed, tc.timedOut))

			run, err := store.GetRun(ctx, runID)
			require.NoError(t, err)
			require.Equal(t, tc.expected, run.Status)
		})
	}
}

func TestDeviceTaskSingleAttemptRow(t *testing.T) {
	db := testutil.OpenTestDB(t)
	defer testutil.CloseDB(db)

	ctx := context.Background()
	store := NewStore(db)
	runID := seedRun(t, store)
	deviceIndex := 0

	require.NoError(t, store.UpsertDeviceTaskStarted(ctx, runID, "dev-1", "node-a", "rt-1", &deviceIndex))
	require.NoError(t, store.FinalizeDeviceTask(ctx, runID, "dev-1", "node-a", &deviceIndex, models.DeviceTaskStatusCompleted, "", ""))

	testutil.AssertCount(t, db, &models.DeviceTask{}, 1)

	task, err := store.GetDeviceTask(ctx, runID, "dev-1")
	require.NoError(t, err)
	require.Equal(t, models.DeviceTaskStatusCompleted, task.Status)
	require.NotNil(t, task.FinishedAt)
}

func TestFinalizeDeviceTaskWithoutStart(t *testing.T) {
	db := testutil.OpenTestDB(t)
	defer testutil.CloseDB(db)

	ctx := context.Background()
	store := NewStore(db)
	runID := seedRun(t, store)

	// callbacks may reorder; the finish must create the row
	require.NoError(t, store.FinalizeDeviceTask(ctx, runID, "dev-1", "node-a", nil, models.DeviceTaskStatusFailed, models.FailureReasonDeviceOffline, "unreachable"))

	task, err := store.GetDeviceTask(ctx, runID, "dev-1")
	require.NoError(t, err)
	require.Equal(t, models.DeviceTaskStatusFailed, task.Status)
	require.Equal(t, models.FailureReasonDeviceOffline, task.FailureReason)
}

func TestUpsertRunStepLastWriteWins(t *testing.T) {
	db := testutil.OpenTestDB(t)
	defer testutil.CloseDB(db)

	ctx := context.Background()
	store := NewStore(db)
	runID := seedRun(t, store)

	require.NoError(t, store.UpsertRunStep(ctx, &models.RunStep{
		RunID:       runID,
		DeviceIndex: 0,
		StepIndex:   2,
		StepID:      "tap-like",
		Status:      "running",
	}))
	require.NoError(t, store.UpsertRunStep(ctx, &models.RunStep{
		RunID:       runID,
		DeviceIndex: 0,
		StepIndex:   2,
		StepID:      "tap-like",
		Status:      "succeeded",
	}))

	testutil.AssertCount(t, db, &models.RunStep{}, 1)

	var step models.RunStep
	require.NoError(t, db.First(&step, "run_id = ? AND device_index = ? AND step_index = ?", runID, 0, 2).Error)
	require.Equal(t, "succeeded", step.Status)
}

func TestTouchDeviceLastSeenClearsError(t *testing.T) {
	db := testutil.OpenTestDB(t)
	defer testutil.CloseDB(db)

	ctx := context.Background()
	store := NewStore(db)
	runID := seedRun(t, store)

	require.NoError(t, db.Create(&models.RunDeviceState{
		RunID:       runID,
		DeviceIndex: 0,
		Status:      models.DeviceStateStatusRunning,
		LastError:   "flaky adb",
	}).Error)

	at := time.Now().UTC()
	require.NoError(t, store.TouchDeviceLastSeen(ctx, runID, 0, at))

	deviceState, err := store.GetDeviceState(ctx, runID, 0)
	require.NoError(t, err)
	require.NotNil(t, deviceState.LastSeen)
	require.Empty(t, deviceState.LastError)
}

func TestUpsertNodeHeartbeatOverwrites(t *testing.T) {
	db := testutil.OpenTestDB(t)
	defer testutil.CloseDB(db)

	ctx := context.Background()
	store := NewStore(db)

	require.NoError(t, store.UpsertNodeHeartbeat(ctx, "node-a", map[string]interface{}{"devices": float64(4)}))
	require.NoError(t, store.UpsertNodeHeartbeat(ctx, "node-a", map[string]interface{}{"devices": float64(6)}))

	testutil.AssertCount(t, db, &models.NodeHeartbeat{}, 1)

	var heartbeat models.NodeHeartbeat
	require.NoError(t, db.First(&heartbeat, "node_id = ?", "node-a").Error)
	require.True(t, heartbeat.Online)
	require.Equal(t, float64(6), heartbeat.Payload["devices"])
}

func TestUpsertVideoByExternalID(t *testing.T) {
	db := testutil.OpenTestDB(t)
	defer testutil.CloseDB(db)

	ctx := context.Background()
	store := NewStore(db)

	first, err := store.UpsertVideo(ctx, "yt-abc123", "first title", "chan-1")
	require.NoError(t, err)

	second, err := store.UpsertVideo(ctx, "yt-abc123", "updated title", "chan-1")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "updated title", second.Title)
	testutil.AssertCount(t, db, &models.Video{}, 1)
}
