package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of event types nodes emit. Types outside this set
// parse into UnknownPayload and are acknowledged as no-ops so that newer
// protocol versions do not break older coordinators.
type Kind string

const (
	KindDeviceHeartbeat Kind = "device_heartbeat"
	KindRunStepUpdate   Kind = "run_step_update"
	KindArtifactCreated Kind = "artifact_created"
	KindScanProgress    Kind = "scan_progress"
	KindNodeHeartbeat   Kind = "node_heartbeat"
	KindRunStarted      Kind = "run_started"
	KindTaskStarted     Kind = "task_started"
	KindTaskFinished    Kind = "task_finished"
	KindRunFinished     Kind = "run_finished"
)

// Envelope is the uniform wrapper every callback carries.
type Envelope struct {
	EventID string          `json:"event_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Validate checks the envelope shape. Failures here happen before ledger
// admission and are safe for the node to retry with the same event id.
func (e *Envelope) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id"}
	}
	if e.Type == "" {
		return &ValidationError{Field: "type"}
	}
	return nil
}

// ValidationError marks a payload that does not make sense, separate from
// whether the sender holds a valid lease.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid field: %s", e.Field)
}

// Payload is the sealed interface over typed event payloads.
type Payload interface {
	Kind() Kind
}

// UnknownPayload is the acknowledged no-op variant for event types this
// coordinator does not know.
type UnknownPayload struct {
	Type string
}

func (UnknownPayload) Kind() Kind { return "" }

// DeviceHeartbeatPayload refreshes a device slot's last-seen mark, or a
// node's heartbeat when only the node id is present.
type DeviceHeartbeatPayload struct {
	RunID       uuid.UUID  `json:"run_id"`
	DeviceIndex *int       `json:"device_index"`
	NodeID      string     `json:"node_id"`
	Timestamp   *time.Time `json:"timestamp"`
}

func (DeviceHeartbeatPayload) Kind() Kind { return KindDeviceHeartbeat }

// RunStepUpdatePayload upserts one step record for a device slot.
type RunStepUpdatePayload struct {
	RunID       uuid.UUID `json:"run_id"`
	NodeID      string    `json:"node_id"`
	DeviceIndex *int      `json:"device_index"`
	StepIndex   *int      `json:"step_index"`
	StepID      string    `json:"step_id"`
	StepType    string    `json:"step_type"`
	Status      string    `json:"status"`
	Probability *float64  `json:"probability"`
	Decision    string    `json:"decision"`
	Error       string    `json:"error"`
	LeaseToken  string    `json:"lease_token"`
}

func (RunStepUpdatePayload) Kind() Kind { return KindRunStepUpdate }

// ArtifactCreatedPayload records an immutable artifact pointer.
type ArtifactCreatedPayload struct {
	RunID        uuid.UUID `json:"run_id"`
	NodeID       string    `json:"node_id"`
	DeviceID     string    `json:"device_id"`
	DeviceIndex  *int      `json:"device_index"`
	ArtifactKind string    `json:"kind"`
	StoragePath  string    `json:"storage_path"`
	PublicURL    string    `json:"public_url"`
}

func (ArtifactCreatedPayload) Kind() Kind { return KindArtifactCreated }

// ScanProgressPayload updates a device-scan job's status.
type ScanProgressPayload struct {
	ScanJobID uuid.UUID              `json:"scan_job_id"`
	NodeID    string                 `json:"node_id"`
	Status    string                 `json:"status"`
	Detail    map[string]interface{} `json:"detail"`
}

func (ScanProgressPayload) Kind() Kind { return KindScanProgress }

// NodeHeartbeatPayload overwrites the single heartbeat row for a node.
type NodeHeartbeatPayload struct {
	NodeID  string                 `json:"node_id"`
	Payload map[string]interface{} `json:"payload"`
}

func (NodeHeartbeatPayload) Kind() Kind { return KindNodeHeartbeat }

// RunStartedPayload moves a run to running.
type RunStartedPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

func (RunStartedPayload) Kind() Kind { return KindRunStarted }

// TaskStartedPayload marks a device attempt running, and its slot when the
// device index is known.
type TaskStartedPayload struct {
	RunID       uuid.UUID `json:"run_id"`
	NodeID      string    `json:"node_id"`
	DeviceID    string    `json:"device_id"`
	DeviceIndex *int      `json:"device_index"`
	RuntimeID   string    `json:"runtime_id"`
	LeaseToken  string    `json:"lease_token"`
}

func (TaskStartedPayload) Kind() Kind { return KindTaskStarted }

// TaskFinishedPayload finalizes a device attempt and, lease permitting, its
// slot.
type TaskFinishedPayload struct {
	RunID         uuid.UUID        `json:"run_id"`
	NodeID        string           `json:"node_id"`
	DeviceID      string           `json:"device_id"`
	DeviceIndex   *int             `json:"device_index"`
	Status        string           `json:"status"`
	FailureReason string           `json:"failure_reason"`
	Error         string           `json:"error"`
	LeaseToken    string          `json:"lease_token"`
	Artifact      *InlineArtifact `json:"artifact"`
}

// InlineArtifact is an artifact reported inside task_finished rather than
// through its own artifact_created event.
type InlineArtifact struct {
	Kind        string `json:"kind"`
	StoragePath string `json:"storage_path"`
	PublicURL   string `json:"public_url"`
}

func (TaskFinishedPayload) Kind() Kind { return KindTaskFinished }

// RunFinishedPayload closes a run with the node-reported summary.
type RunFinishedPayload struct {
	RunID   uuid.UUID  `json:"run_id"`
	Summary RunSummary `json:"summary"`
}

// RunSummary tallies per-device outcomes for a finished run.
type RunSummary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Timeout   int `json:"timeout"`
}

func (RunFinishedPayload) Kind() Kind { return KindRunFinished }

// Parse decodes and validates the payload for the envelope's declared
// type. Unknown types yield UnknownPayload with a nil error; a non-nil
// error means the payload is malformed and its effect must be dropped.
func Parse(env Envelope) (Payload, error) {
	switch Kind(env.Type) {
	case KindDeviceHeartbeat:
		var p DeviceHeartbeatPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.DeviceIndex == nil && p.NodeID == "" {
			return nil, &ValidationError{Field: "device_index or node_id"}
		}
		if p.DeviceIndex != nil && p.RunID == uuid.Nil {
			return nil, &ValidationError{Field: "run_id"}
		}
		return p, nil

	case KindRunStepUpdate:
		var p RunStepUpdatePayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		switch {
		case p.RunID == uuid.Nil:
			return nil, &ValidationError{Field: "run_id"}
		case p.NodeID == "":
			return nil, &ValidationError{Field: "node_id"}
		case p.DeviceIndex == nil:
			return nil, &ValidationError{Field: "device_index"}
		case p.StepIndex == nil:
			return nil, &ValidationError{Field: "step_index"}
		case p.StepID == "":
			return nil, &ValidationError{Field: "step_id"}
		}
		return p, nil

	case KindArtifactCreated:
		var p ArtifactCreatedPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		switch {
		case p.RunID == uuid.Nil:
			return nil, &ValidationError{Field: "run_id"}
		case p.ArtifactKind == "":
			return nil, &ValidationError{Field: "kind"}
		case p.StoragePath == "":
			return nil, &ValidationError{Field: "storage_path"}
		}
		return p, nil

	case KindScanProgress:
		var p ScanProgressPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		switch {
		case p.ScanJobID == uuid.Nil:
			return nil, &ValidationError{Field: "scan_job_id"}
		case p.Status == "":
			return nil, &ValidationError{Field: "status"}
		}
		return p, nil

	case KindNodeHeartbeat:
		var p NodeHeartbeatPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.NodeID == "" {
			return nil, &ValidationError{Field: "node_id"}
		}
		return p, nil

	case KindRunStarted:
		var p RunStartedPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.RunID == uuid.Nil {
			return nil, &ValidationError{Field: "run_id"}
		}
		return p, nil

	case KindTaskStarted:
		var p TaskStartedPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		switch {
		case p.RunID == uuid.Nil:
			return nil, &ValidationError{Field: "run_id"}
		case p.NodeID == "":
			return nil, &ValidationError{Field: "node_id"}
		case p.DeviceID == "":
			return nil, &ValidationError{Field: "device_id"}
		}
		return p, nil

	case KindTaskFinished:
		var p TaskFinishedPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		switch {
		case p.RunID == uuid.Nil:
			return nil, &ValidationError{Field: "run_id"}
		case p.NodeID == "":
			return nil, &ValidationError{Field: "node_id"}
		case p.DeviceID == "":
			return nil, &ValidationError{Field: "device_id"}
		case p.Status == "":
			return nil, &ValidationError{Field: "status"}
		}
		return p, nil

	case KindRunFinished:
		var p RunFinishedPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.RunID == uuid.Nil {
			return nil, &ValidationError{Field: "run_id"}
		}
		return p, nil

	default:
		return UnknownPayload{Type: env.Type}, nil
	}
}

func decode(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return &ValidationError{Field: "payload"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ValidationError{Field: "payload"}
	}
	return nil
}
