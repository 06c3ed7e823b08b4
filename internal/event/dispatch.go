package event

import (
	"context"
	"time"

	"github.com/drover-sh/drover/internal/lease"
	"github.com/drover-sh/drover/internal/metrics"
	"github.com/drover-sh/drover/internal/models"
	"github.com/drover-sh/drover/internal/state"
	"github.com/drover-sh/drover/pkg/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dispatcher routes an admitted event to the one handler for its kind.
// Dispatch runs strictly after ledger admission: whatever happens here, the
// event is acknowledged and will not be redelivered, so handlers drop bad
// updates instead of erroring back to the node.
type Dispatcher struct {
	store  *state.Store
	leases *lease.Authority
}

func NewDispatcher(db *gorm.DB) *Dispatcher {
	if db == nil {
		panic("event dispatcher requires a database connection")
	}
	return &Dispatcher{
		store:  state.NewStore(db),
		leases: lease.NewAuthority(db),
	}
}

// WithStore overrides the state store (for tests).
func (d *Dispatcher) WithStore(store *state.Store) *Dispatcher {
	if store != nil {
		d.store = store
	}
	return d
}

// WithAuthority overrides the lease authority (for tests).
func (d *Dispatcher) WithAuthority(authority *lease.Authority) *Dispatcher {
	if authority != nil {
		d.leases = authority
	}
	return d
}

// Dispatch parses the envelope's payload and applies its effect. A nil
// return means the effect landed; a non-nil return means it was dropped or
// partially dropped. Either way the caller acknowledges the event.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) error {
	payload, err := Parse(env)
	if err != nil {
		metrics.EventsDroppedTotal.WithLabelValues(env.Type, "malformed").Inc()
		log.Warn("malformed event payload dropped",
			"event_id", env.EventID,
			"type", env.Type,
			"error", err,
		)
		return err
	}

	switch p := payload.(type) {
	case DeviceHeartbeatPayload:
		return d.handleDeviceHeartbeat(ctx, p)
	case RunStepUpdatePayload:
		return d.handleRunStepUpdate(ctx, p)
	case ArtifactCreatedPayload:
		return d.handleArtifactCreated(ctx, p)
	case ScanProgressPayload:
		return d.handleScanProgress(ctx, p)
	case NodeHeartbeatPayload:
		return d.handleNodeHeartbeat(ctx, p)
	case RunStartedPayload:
		return d.handleRunStarted(ctx, p)
	case TaskStartedPayload:
		return d.handleTaskStarted(ctx, p)
	case TaskFinishedPayload:
		return d.handleTaskFinished(ctx, p)
	case RunFinishedPayload:
		return d.handleRunFinished(ctx, p)
	case UnknownPayload:
		log.Debug("unknown event type acknowledged", "event_id", env.EventID, "type", p.Type)
		return nil
	}

	return nil
}

func (d *Dispatcher) handleDeviceHeartbeat(ctx context.Context, p DeviceHeartbeatPayload) error {
	at := time.Now().UTC()
	if p.Timestamp != nil {
		at = p.Timestamp.UTC()
	}

	if p.DeviceIndex != nil {
		return d.store.TouchDeviceLastSeen(ctx, p.RunID, *p.DeviceIndex, at)
	}
	return d.store.UpsertNodeHeartbeat(ctx, p.NodeID, nil)
}

func (d *Dispatcher) handleRunStepUpdate(ctx context.Context, p RunStepUpdatePayload) error {
	if !d.leases.Validate(ctx, p.RunID, *p.DeviceIndex, p.NodeID, p.LeaseToken) {
		metrics.EventsDroppedTotal.WithLabelValues(string(KindRunStepUpdate), "lease").Inc()
		log.Warn("step update skipped, lease invalid",
			"run_id", p.RunID,
			"device_index", *p.DeviceIndex,
			"node_id", p.NodeID,
		)
		return nil
	}

	step := &models.RunStep{
		RunID:       p.RunID,
		DeviceIndex: *p.DeviceIndex,
		StepIndex:   *p.StepIndex,
		StepID:      p.StepID,
		StepType:    p.StepType,
		Status:      p.Status,
		Probability: p.Probability,
		Decision:    p.Decision,
		Error:       p.Error,
	}

	now := time.Now().UTC()
	switch p.Status {
	case "running", "started":
		step.StartedAt = &now
	case "succeeded", "failed", "skipped", "timeout":
		step.FinishedAt = &now
	}

	if err := d.store.UpsertRunStep(ctx, step); err != nil {
		return err
	}

	return d.store.UpdateDeviceState(ctx, p.RunID, *p.DeviceIndex, map[string]interface{}{
		"current_step": *p.StepIndex,
	})
}

func (d *Dispatcher) handleArtifactCreated(ctx context.Context, p ArtifactCreatedPayload) error {
	return d.store.InsertArtifact(ctx, &models.Artifact{
		RunID:       p.RunID,
		NodeID:      p.NodeID,
		DeviceID:    p.DeviceID,
		DeviceIndex: p.DeviceIndex,
		Kind:        p.ArtifactKind,
		StoragePath: p.StoragePath,
		PublicURL:   p.PublicURL,
	})
}

func (d *Dispatcher) handleScanProgress(ctx context.Context, p ScanProgressPayload) error {
	return d.store.UpdateScanJob(ctx, p.ScanJobID, p.NodeID, p.Status, datatypes.JSONMap(p.Detail))
}

func (d *Dispatcher) handleNodeHeartbeat(ctx context.Context, p NodeHeartbeatPayload) error {
	return d.store.UpsertNodeHeartbeat(ctx, p.NodeID, datatypes.JSONMap(p.Payload))
}

func (d *Dispatcher) handleRunStarted(ctx context.Context, p RunStartedPayload) error {
	return d.store.StartRun(ctx, p.RunID)
}

func (d *Dispatcher) handleTaskStarted(ctx context.Context, p TaskStartedPayload) error {
	if err := d.store.UpsertDeviceTaskStarted(ctx, p.RunID, p.DeviceID, p.NodeID, p.RuntimeID, p.DeviceIndex); err != nil {
		return err
	}

	if p.DeviceIndex == nil {
		return nil
	}

	if !d.leases.Validate(ctx, p.RunID, *p.DeviceIndex, p.NodeID, p.LeaseToken) {
		metrics.EventsDroppedTotal.WithLabelValues(string(KindTaskStarted), "lease").Inc()
		log.Warn("device state update skipped, lease invalid",
			"run_id", p.RunID,
			"device_index", *p.DeviceIndex,
			"node_id", p.NodeID,
		)
		return nil
	}

	return d.store.UpdateDeviceState(ctx, p.RunID, *p.DeviceIndex, map[string]interface{}{
		"status": models.DeviceStateStatusRunning,
	})
}

func (d *Dispatcher) handleTaskFinished(ctx context.Context, p TaskFinishedPayload) error {
	taskStatus := models.DeviceTaskStatusFailed
	deviceStatus := models.DeviceStateStatusFailed
	if succeededStatus(p.Status) {
		taskStatus = models.DeviceTaskStatusCompleted
		deviceStatus = models.DeviceStateStatusSucceeded
	}

	if err := d.store.FinalizeDeviceTask(ctx, p.RunID, p.DeviceID, p.NodeID, p.DeviceIndex, taskStatus, p.FailureReason, p.Error); err != nil {
		return err
	}

	if p.Artifact != nil && p.Artifact.StoragePath != "" {
		artifact := &models.Artifact{
			RunID:       p.RunID,
			NodeID:      p.NodeID,
			DeviceID:    p.DeviceID,
			DeviceIndex: p.DeviceIndex,
			Kind:        p.Artifact.Kind,
			StoragePath: p.Artifact.StoragePath,
			PublicURL:   p.Artifact.PublicURL,
		}
		if task, err := d.store.GetDeviceTask(ctx, p.RunID, p.DeviceID); err == nil {
			artifact.DeviceTaskID = &task.ID
		}
		if err := d.store.InsertArtifact(ctx, artifact); err != nil {
			return err
		}
	}

	if p.DeviceIndex == nil {
		return nil
	}

	if !d.leases.Validate(ctx, p.RunID, *p.DeviceIndex, p.NodeID, p.LeaseToken) {
		metrics.EventsDroppedTotal.WithLabelValues(string(KindTaskFinished), "lease").Inc()
		log.Warn("device state update skipped, lease invalid",
			"run_id", p.RunID,
			"device_index", *p.DeviceIndex,
			"node_id", p.NodeID,
		)
		return nil
	}

	return d.store.UpdateDeviceState(ctx, p.RunID, *p.DeviceIndex, map[string]interface{}{
		"status":     deviceStatus,
		"last_error": p.Error,
	})
}

func (d *Dispatcher) handleRunFinished(ctx context.Context, p RunFinishedPayload) error {
	return d.store.FinishRun(ctx, p.RunID, p.Summary.Succeeded, p.Summary.Failed, p.Summary.Timeout)
}

func succeededStatus(status string) bool {
	switch status {
	case "succeeded", "success", "completed":
		return true
	}
	return false
}
