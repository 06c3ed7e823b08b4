package state

import (
	"context"
	"time"

	"github.com/drover-sh/drover/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps the mutable projections callback events fold into: run
// status, per-device task status, per-device-per-step status, plus the
// immutable artifact and heartbeat records.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	if db == nil {
		panic("state store requires a database connection")
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the store's clock (for tests).
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// DB exposes the underlying connection for read-side queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// CreateRun persists a new run row.
func (s *Store) CreateRun(ctx context.Context, run *models.Run) error {
	return s.db.WithContext(ctx).Create(run).Error
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	var run models.Run
	if err := s.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// StartRun marks a run running.
func (s *Store) StartRun(ctx context.Context, runID uuid.UUID) error {
	now := s.now()
	return s.db.WithContext(ctx).
		Model(&models.Run{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":     models.RunStatusRunning,
			"started_at": &now,
		}).Error
}

// FinishRun records the run's terminal status from the reported summary:
// completed_with_errors when any device failed or timed out, completed
// otherwise.
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, succeeded, failed, timeout int) error {
	status := models.RunStatusCompleted
	if failed+timeout > 0 {
		status = models.RunStatusCompletedWithErrors
	}

	now := s.now()
	return s.db.WithContext(ctx).
		Model(&models.Run{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":            status,
			"finished_at":       &now,
			"summary_succeeded": succeeded,
			"summary_failed":    failed,
			"summary_timeout":   timeout,
		}).Error
}

// UpsertDeviceTaskStarted creates or refreshes the single attempt row for
// (run, device) and moves it to running.
func (s *Store) UpsertDeviceTaskStarted(ctx context.Context, runID uuid.UUID, deviceID, nodeID, runtimeID string, deviceIndex *int) error {
	now := s.now()
	task := &models.DeviceTask{
		ID:          uuid.New(),
		RunID:       runID,
		DeviceID:    deviceID,
		NodeID:      nodeID,
		DeviceIndex: deviceIndex,
		RuntimeID:   runtimeID,
		Status:      models.DeviceTaskStatusRunning,
		StartedAt:   &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "run_id"}, {Name: "device_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"node_id":      nodeID,
				"device_index": deviceIndex,
				"runtime_id":   runtimeID,
				"status":       models.DeviceTaskStatusRunning,
				"started_at":   &now,
				"updated_at":   now,
			}),
		}).
		Create(task).Error
}

// FinalizeDeviceTask records the terminal outcome of a device attempt. The
// row is created if task_started never arrived; callbacks may reorder.
func (s *Store) FinalizeDeviceTask(ctx context.Context, runID uuid.UUID, deviceID, nodeID string, deviceIndex *int, status models.DeviceTaskStatus, failureReason, errMsg string) error {
	now := s.now()
	task := &models.DeviceTask{
		ID:            uuid.New(),
		RunID:         runID,
		DeviceID:      deviceID,
		NodeID:        nodeID,
		DeviceIndex:   deviceIndex,
		Status:        status,
		FailureReason: failureReason,
		Error:         errMsg,
		FinishedAt:    &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "run_id"}, {Name: "device_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"node_id":        nodeID,
				"status":         status,
				"failure_reason": failureReason,
				"error":          errMsg,
				"finished_at":    &now,
				"updated_at":     now,
			}),
		}).
		Create(task).Error
}

// GetDeviceTask loads the attempt row for (run, device).
func (s *Store) GetDeviceTask(ctx context.Context, runID uuid.UUID, deviceID string) (*models.DeviceTask, error) {
	var task models.DeviceTask
	err := s.db.WithContext(ctx).
		First(&task, "run_id = ? AND device_id = ?", runID, deviceID).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateDeviceState applies a strong update to a device slot. Callers must
// hold a validated lease for the slot; this method does not re-check.
func (s *Store) UpdateDeviceState(ctx context.Context, runID uuid.UUID, deviceIndex int, updates map[string]interface{}) error {
	updates["updated_at"] = s.now()
	return s.db.WithContext(ctx).
		Model(&models.RunDeviceState{}).
		Where("run_id = ? AND device_index = ?", runID, deviceIndex).
		Updates(updates).Error
}

// TouchDeviceLastSeen records a device heartbeat and clears its last error.
// Heartbeats are informational, not lease-gated.
func (s *Store) TouchDeviceLastSeen(ctx context.Context, runID uuid.UUID, deviceIndex int, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.RunDeviceState{}).
		Where("run_id = ? AND device_index = ?", runID, deviceIndex).
		Updates(map[string]interface{}{
			"last_seen":  &at,
			"last_error": "",
			"updated_at": s.now(),
		}).Error
}

// GetDeviceState loads one device slot.
func (s *Store) GetDeviceState(ctx context.Context, runID uuid.UUID, deviceIndex int) (*models.RunDeviceState, error) {
	var deviceState models.RunDeviceState
	err := s.db.WithContext(ctx).
		First(&deviceState, "run_id = ? AND device_index = ?", runID, deviceIndex).Error
	if err != nil {
		return nil, err
	}
	return &deviceState, nil
}

// UpsertRunStep writes the step record for (run, device slot, step index).
// Step indices arrive non-decreasing per device, so the last write for a
// key wins.
func (s *Store) UpsertRunStep(ctx context.Context, step *models.RunStep) error {
	now := s.now()
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	step.CreatedAt = now
	step.UpdatedAt = now

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "run_id"}, {Name: "device_index"}, {Name: "step_index"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"step_id":     step.StepID,
				"step_type":   step.StepType,
				"status":      step.Status,
				"probability": step.Probability,
				"decision":    step.Decision,
				"error":       step.Error,
				"started_at":  step.StartedAt,
				"finished_at": step.FinishedAt,
				"updated_at":  now,
			}),
		}).
		Create(step).Error
}

// InsertArtifact records an immutable artifact pointer.
func (s *Store) InsertArtifact(ctx context.Context, artifact *models.Artifact) error {
	if artifact.ID == uuid.Nil {
		artifact.ID = uuid.New()
	}
	artifact.CreatedAt = s.now()
	return s.db.WithContext(ctx).Create(artifact).Error
}

// UpsertNodeHeartbeat overwrites the single heartbeat row for a node.
func (s *Store) UpsertNodeHeartbeat(ctx context.Context, nodeID string, payload datatypes.JSONMap) error {
	now := s.now()
	record := &models.NodeHeartbeat{
		NodeID:    nodeID,
		Payload:   payload,
		Online:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "node_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"payload":    payload,
				"online":     true,
				"updated_at": now,
			}),
		}).
		Create(record).Error
}

// UpdateScanJob sets a scan job's status and detail, creating the row when
// the scan was started by a node the coordinator has not seen yet.
func (s *Store) UpdateScanJob(ctx context.Context, scanJobID uuid.UUID, nodeID, status string, detail datatypes.JSONMap) error {
	now := s.now()
	record := &models.ScanJob{
		ID:        scanJobID,
		NodeID:    nodeID,
		Status:    status,
		Detail:    detail,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"node_id":    nodeID,
				"status":     status,
				"detail":     detail,
				"updated_at": now,
			}),
		}).
		Create(record).Error
}

// UpsertVideo creates or returns the video row keyed by the provider's
// external identifier.
func (s *Store) UpsertVideo(ctx context.Context, externalID, title, channelID string) (*models.Video, error) {
	now := s.now()
	video := &models.Video{
		ID:         uuid.New(),
		ExternalID: externalID,
		Title:      title,
		ChannelID:  channelID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"title":      title,
				"channel_id": channelID,
				"updated_at": now,
			}),
		}).
		Create(video).Error
	if err != nil {
		return nil, err
	}

	var persisted models.Video
	if err := s.db.WithContext(ctx).First(&persisted, "external_id = ?", externalID).Error; err != nil {
		return nil, err
	}
	return &persisted, nil
}
