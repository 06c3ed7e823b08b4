package run

import (
	"context"
	"errors"
	"time"

	"github.com/drover-sh/drover/internal/metrics"
	"github.com/drover-sh/drover/internal/models"
	"github.com/drover-sh/drover/internal/state"
	"github.com/drover-sh/drover/pkg/db"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrSourceNotFound is returned when neither the playbook nor the workflow
// reference resolves to a known record.
var ErrSourceNotFound = errors.New("run source not found")

// Timeout bounds. Caller-supplied values outside these ranges are clamped,
// not rejected.
const (
	MinStepTimeoutMs   = 5_000
	MaxStepTimeoutMs   = 600_000
	MinGlobalTimeoutMs = 60_000
	MaxGlobalTimeoutMs = 1_800_000
)

// Service creates, fetches and lists runs.
type Service interface {
	WithDatabase(*gorm.DB) Service
	Create(req *CreateRequest) (*models.Run, error)
	Get(runID uuid.UUID) (*Detail, error)
	List(filter ListFilter) ([]*Item, error)
}

// CreateRequest carries the run-creation wire shape.
type CreateRequest struct {
	Mode             string                 `json:"mode"`
	Target           map[string]interface{} `json:"target"`
	Defaults         map[string]interface{} `json:"defaults"`
	Trigger          string                 `json:"trigger"`
	WorkflowID       string                 `json:"workflow_id"`
	PlaybookID       string                 `json:"playbook_id"`
	Params           map[string]interface{} `json:"params"`
	TimeoutOverrides map[string]int64       `json:"timeoutOverrides"`
	GlobalTimeoutMs  int64                  `json:"globalTimeoutMs"`
	YoutubeVideoID   string                 `json:"youtubeVideoId"`
	Title            string                 `json:"title"`
	ChannelID        string                 `json:"channel_id"`
}

// ListFilter narrows the listing window.
type ListFilter struct {
	Status string
	Window time.Duration
}

// Counts tallies per-run device progress.
type Counts struct {
	Running        int `json:"running"`
	Done           int `json:"done"`
	Error          int `json:"error"`
	Waiting        int `json:"waiting"`
	SkippedOffline int `json:"skipped_offline"`
}

// Item is one row of the run listing.
type Item struct {
	RunID     uuid.UUID  `json:"run_id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Counts    Counts     `json:"counts"`
}

// Detail is the single-run view with its device states and steps.
type Detail struct {
	Run          *models.Run             `json:"run"`
	DeviceStates []models.RunDeviceState `json:"device_states"`
	DeviceTasks  []models.DeviceTask     `json:"device_tasks"`
	Steps        []models.RunStep        `json:"steps"`
}

type runService struct {
	ctx   context.Context
	store *state.Store
}

func New(ctx context.Context) Service {
	return &runService{ctx: ctx}
}

func (r *runService) storage() *state.Store {
	if r.store == nil {
		r.store = state.NewStore(db.Connection())
	}
	return r.store
}

// Create resolves the run's executable source, clamps timeouts and
// persists the queued run. Playbook takes priority when both references
// are present.
func (r *runService) Create(req *CreateRequest) (*models.Run, error) {
	run := &models.Run{
		ID:              uuid.New(),
		Status:          models.RunStatusQueued,
		Trigger:         req.Trigger,
		Mode:            req.Mode,
		Params:          datatypes.JSONMap(req.Params),
		Target:          datatypes.JSONMap(req.Target),
		GlobalTimeoutMs: clamp(req.GlobalTimeoutMs, MinGlobalTimeoutMs, MaxGlobalTimeoutMs),
	}

	if scope, ok := req.Target["scope"].(string); ok {
		run.Scope = scope
	}

	if len(req.TimeoutOverrides) > 0 {
		overrides := datatypes.JSONMap{}
		for stepID, ms := range req.TimeoutOverrides {
			overrides[stepID] = clamp(ms, MinStepTimeoutMs, MaxStepTimeoutMs)
		}
		run.TimeoutOverrides = overrides
	}

	if err := r.resolveSource(req, run); err != nil {
		return nil, err
	}

	if req.YoutubeVideoID != "" {
		video, err := r.storage().UpsertVideo(r.ctx, req.YoutubeVideoID, req.Title, req.ChannelID)
		if err != nil {
			return nil, err
		}
		run.VideoID = &video.ID
	}

	if err := r.storage().CreateRun(r.ctx, run); err != nil {
		return nil, err
	}

	metrics.RunsCreatedTotal.Inc()
	return run, nil
}

func (r *runService) resolveSource(req *CreateRequest, run *models.Run) error {
	conn := r.storage().DB().WithContext(r.ctx)

	if req.PlaybookID != "" {
		var playbook models.Playbook
		query := conn.Where("alias = ?", req.PlaybookID)
		if id, err := uuid.Parse(req.PlaybookID); err == nil {
			query = conn.Where("id = ?", id)
		}
		if err := query.First(&playbook).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSourceNotFound
			}
			return err
		}
		run.PlaybookID = &playbook.ID
		return nil
	}

	if req.WorkflowID != "" {
		var workflow models.Workflow
		query := conn.Where("name = ?", req.WorkflowID)
		if id, err := uuid.Parse(req.WorkflowID); err == nil {
			query = conn.Where("id = ?", id)
		}
		if err := query.First(&workflow).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSourceNotFound
			}
			return err
		}
		run.WorkflowID = &workflow.ID
		return nil
	}

	return ErrSourceNotFound
}

// Get loads one run with its device projections.
func (r *runService) Get(runID uuid.UUID) (*Detail, error) {
	run, err := r.storage().GetRun(r.ctx, runID)
	if err != nil {
		return nil, err
	}

	detail := &Detail{Run: run}
	conn := r.storage().DB().WithContext(r.ctx)

	if err := conn.Where("run_id = ?", runID).Order("device_index asc").Find(&detail.DeviceStates).Error; err != nil {
		return nil, err
	}
	if err := conn.Where("run_id = ?", runID).Order("device_id asc").Find(&detail.DeviceTasks).Error; err != nil {
		return nil, err
	}
	if err := conn.Where("run_id = ?", runID).Order("device_index asc, step_index asc").Find(&detail.Steps).Error; err != nil {
		return nil, err
	}

	return detail, nil
}

// List returns the runs inside the filter window with per-run progress
// counts. RunDeviceState is authoritative for any device that holds a
// slot; DeviceTask rows contribute only for devices that never acquired
// one, so a device is never tallied twice.
func (r *runService) List(filter ListFilter) ([]*Item, error) {
	conn := r.storage().DB().WithContext(r.ctx)

	window := filter.Window
	if window <= 0 {
		window = 24 * time.Hour
	}

	query := conn.Model(&models.Run{}).
		Where("created_at >= ?", time.Now().UTC().Add(-window)).
		Order("created_at desc")
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var runs []models.Run
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return []*Item{}, nil
	}

	runIDs := make([]uuid.UUID, 0, len(runs))
	for _, run := range runs {
		runIDs = append(runIDs, run.ID)
	}

	var states []models.RunDeviceState
	if err := conn.Where("run_id IN ?", runIDs).Find(&states).Error; err != nil {
		return nil, err
	}

	var tasks []models.DeviceTask
	if err := conn.Where("run_id IN ?", runIDs).Find(&tasks).Error; err != nil {
		return nil, err
	}

	countsByRun := tally(states, tasks)

	items := make([]*Item, 0, len(runs))
	for _, run := range runs {
		items = append(items, &Item{
			RunID:     run.ID,
			Status:    string(run.Status),
			CreatedAt: run.CreatedAt,
			StartedAt: run.StartedAt,
			Counts:    countsByRun[run.ID],
		})
	}

	return items, nil
}

type slotKey struct {
	runID uuid.UUID
	index int
}

func tally(states []models.RunDeviceState, tasks []models.DeviceTask) map[uuid.UUID]Counts {
	counts := map[uuid.UUID]Counts{}

	offlineSlots := map[slotKey]bool{}
	slotted := map[slotKey]bool{}
	for _, task := range tasks {
		if task.DeviceIndex == nil {
			continue
		}
		key := slotKey{runID: task.RunID, index: *task.DeviceIndex}
		if task.FailureReason == models.FailureReasonDeviceOffline {
			offlineSlots[key] = true
		}
	}

	for _, deviceState := range states {
		key := slotKey{runID: deviceState.RunID, index: deviceState.DeviceIndex}
		slotted[key] = true

		c := counts[deviceState.RunID]
		switch {
		case offlineSlots[key]:
			c.SkippedOffline++
		case deviceState.Status == models.DeviceStateStatusRunning:
			c.Running++
		case deviceState.Status == models.DeviceStateStatusSucceeded,
			deviceState.Status == models.DeviceStateStatusStopped:
			c.Done++
		case deviceState.Status == models.DeviceStateStatusFailed:
			c.Error++
		default:
			c.Waiting++
		}
		counts[deviceState.RunID] = c
	}

	for _, task := range tasks {
		if task.DeviceIndex != nil && slotted[slotKey{runID: task.RunID, index: *task.DeviceIndex}] {
			continue
		}

		c := counts[task.RunID]
		switch {
		case task.FailureReason == models.FailureReasonDeviceOffline:
			c.SkippedOffline++
		case task.Status == models.DeviceTaskStatusRunning:
			c.Running++
		case task.Status == models.DeviceTaskStatusCompleted:
			c.Done++
		case task.Status == models.DeviceTaskStatusFailed:
			c.Error++
		default:
			c.Waiting++
		}
		counts[task.RunID] = c
	}

	return counts
}

func clamp(value, min, max int64) int64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// WithDatabase allows tests to override the database backing the service.
func (r *runService) WithDatabase(conn *gorm.DB) Service {
	if conn == nil {
		return r
	}
	r.store = state.NewStore(conn)
	return r
}
