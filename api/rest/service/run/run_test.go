package run

import (
	"context"
	"testing"
	"time"

	"github.com/drover-sh/drover/internal/models"
	"github.com/drover-sh/drover/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type RunSuite struct {
	suite.Suite
	db  *gorm.DB
	svc Service
}

func TestRunSuite(t *testing.T) {
	suite.Run(t, new(RunSuite))
}

func (s *RunSuite) SetupTest() {
	s.db = testutil.OpenTestDB(s.T())
	s.svc = New(context.Background()).WithDatabase(s.db)
}

func (s *RunSuite) TearDownTest() {
	testutil.CloseDB(s.db)
}

func (s *RunSuite) seedWorkflow(name string) uuid.UUID {
	workflow := &models.Workflow{ID: uuid.New(), Name: name}
	s.Require().NoError(s.db.Create(workflow).Error)
	return workflow.ID
}

func (s *RunSuite) seedPlaybook(alias string) uuid.UUID {
	playbook := &models.Playbook{
		ID:         uuid.New(),
		Alias:      alias,
		Definition: "apiVersion: v1",
		StepCount:  1,
	}
	s.Require().NoError(s.db.Create(playbook).Error)
	return playbook.ID
}

func (s *RunSuite) TestCreateResolvesWorkflowByName() {
	workflowID := s.seedWorkflow("warmup")

	run, err := s.svc.Create(&CreateRequest{WorkflowID: "warmup"})
	s.Require().NoError(err)

	s.Equal(models.RunStatusQueued, run.Status)
	s.Require().NotNil(run.WorkflowID)
	s.Equal(workflowID, *run.WorkflowID)
	s.Nil(run.PlaybookID)
}

func (s *RunSuite) TestCreatePlaybookTakesPriority() {
	s.seedWorkflow("warmup")
	playbookID := s.seedPlaybook("pb-warmup")

	run, err := s.svc.Create(&CreateRequest{
		WorkflowID: "warmup",
		PlaybookID: "pb-warmup",
	})
	s.Require().NoError(err)

	s.Require().NotNil(run.PlaybookID)
	s.Equal(playbookID, *run.PlaybookID)
	s.Nil(run.WorkflowID)
}

func (s *RunSuite) TestCreateResolvesPlaybookByID() {
	playbookID := s.seedPlaybook("pb-warmup")

	run, err := s.svc.Create(&CreateRequest{PlaybookID: playbookID.String()})
	s.Require().NoError(err)

	s.Require().NotNil(run.PlaybookID)
	s.Equal(playbookID, *run.PlaybookID)
}

func (s *RunSuite) TestCreateUnknownSource() {
	_, err := s.svc.Create(&CreateRequest{PlaybookID: "no-such-playbook"})
	s.Require().ErrorIs(err, ErrSourceNotFound)

	_, err = s.svc.Create(&CreateRequest{})
	s.Require().ErrorIs(err, ErrSourceNotFound)

	testutil.AssertCount(s.T(), s.db, &models.Run{}, 0)
}

func (s *RunSuite) TestCreateClampsTimeouts() {
	s.seedWorkflow("warmup")

	run, err := s.svc.Create(&CreateRequest{
		WorkflowID:      "warmup",
		GlobalTimeoutMs: 10,
		TimeoutOverrides: map[string]int64{
			"too-small": 10,
			"too-big":   5_000_000,
			"in-range":  30_000,
		},
	})
	s.Require().NoError(err)

	s.Equal(int64(MinGlobalTimeoutMs), run.GlobalTimeoutMs)
	s.Equal(int64(MinStepTimeoutMs), run.TimeoutOverrides["too-small"])
	s.Equal(int64(MaxStepTimeoutMs), run.TimeoutOverrides["too-big"])
	s.Equal(int64(30_000), run.TimeoutOverrides["in-range"])
}

func (s *RunSuite) TestCreateClampsGlobalUpperBound() {
	s.seedWorkflow("warmup")

	run, err := s.svc.Create(&CreateRequest{
		WorkflowID:      "warmup",
		GlobalTimeoutMs: 5_000_000,
	})
	s.Require().NoError(err)
	s.Equal(int64(MaxGlobalTimeoutMs), run.GlobalTimeoutMs)
}

func (s *RunSuite) TestCreateAttachesVideo() {
	s.seedWorkflow("warmup")

	run, err := s.svc.Create(&CreateRequest{
		WorkflowID:     "warmup",
		YoutubeVideoID: "yt-abc123",
		Title:          "launch teaser",
		ChannelID:      "chan-1",
	})
	s.Require().NoError(err)
	s.Require().NotNil(run.VideoID)

	var video models.Video
	s.Require().NoError(s.db.First(&video, "external_id = ?", "yt-abc123").Error)
	s.Equal(video.ID, *run.VideoID)
}

func (s *RunSuite) TestCreateCapturesTargetScope() {
	s.seedWorkflow("warmup")

	run, err := s.svc.Create(&CreateRequest{
		WorkflowID: "warmup",
		Target:     map[string]interface{}{"scope": "all", "group": "rack-7"},
	})
	s.Require().NoError(err)
	s.Equal("all", run.Scope)
}

func (s *RunSuite) TestGetAggregatesProjections() {
	s.seedWorkflow("warmup")
	run, err := s.svc.Create(&CreateRequest{WorkflowID: "warmup"})
	s.Require().NoError(err)

	s.Require().NoError(s.db.Create(&models.RunDeviceState{
		RunID:       run.ID,
		DeviceIndex: 0,
		Status:      models.DeviceStateStatusRunning,
	}).Error)
	s.Require().NoError(s.db.Create(&models.RunStep{
		ID:          uuid.New(),
		RunID:       run.ID,
		DeviceIndex: 0,
		StepIndex:   1,
		StepID:      "watch",
		Status:      "running",
	}).Error)

	detail, err := s.svc.Get(run.ID)
	s.Require().NoError(err)
	s.Equal(run.ID, detail.Run.ID)
	s.Len(detail.DeviceStates, 1)
	s.Len(detail.Steps, 1)
}

func (s *RunSuite) TestGetMissingRun() {
	_, err := s.svc.Get(uuid.New())
	s.Require().ErrorIs(err, gorm.ErrRecordNotFound)
}

func (s *RunSuite) TestListCountsDeviceStates() {
	s.seedWorkflow("warmup")
	run, err := s.svc.Create(&CreateRequest{WorkflowID: "warmup"})
	s.Require().NoError(err)

	states := []models.RunDeviceState{
		{RunID: run.ID, DeviceIndex: 0, Status: models.DeviceStateStatusRunning},
		{RunID: run.ID, DeviceIndex: 1, Status: models.DeviceStateStatusSucceeded},
		{RunID: run.ID, DeviceIndex: 2, Status: models.DeviceStateStatusStopped},
		{RunID: run.ID, DeviceIndex: 3, Status: models.DeviceStateStatusFailed},
		{RunID: run.ID, DeviceIndex: 4, Status: models.DeviceStateStatusQueued},
	}
	for i := range states {
		s.Require().NoError(s.db.Create(&states[i]).Error)
	}

	items, err := s.svc.List(ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(items, 1)

	s.Equal(1, items[0].Counts.Running)
	s.Equal(2, items[0].Counts.Done) // succeeded + stopped
	s.Equal(1, items[0].Counts.Error)
	s.Equal(1, items[0].Counts.Waiting)
	s.Equal(0, items[0].Counts.SkippedOffline)
}

func (s *RunSuite) TestListOfflineDeviceCountedOnce() {
	s.seedWorkflow("warmup")
	run, err := s.svc.Create(&CreateRequest{WorkflowID: "warmup"})
	s.Require().NoError(err)

	// slot exists AND the task failed as offline: one skipped_offline, no
	// double count from the failed slot status
	deviceIndex := 0
	s.Require().NoError(s.db.Create(&models.RunDeviceState{
		RunID:       run.ID,
		DeviceIndex: deviceIndex,
		Status:      models.DeviceStateStatusFailed,
	}).Error)
	s.Require().NoError(s.db.Create(&models.DeviceTask{
		ID:            uuid.New(),
		RunID:         run.ID,
		DeviceID:      "dev-1",
		NodeID:        "node-a",
		DeviceIndex:   &deviceIndex,
		Status:        models.DeviceTaskStatusFailed,
		FailureReason: models.FailureReasonDeviceOffline,
	}).Error)

	items, err := s.svc.List(ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(items, 1)

	s.Equal(1, items[0].Counts.SkippedOffline)
	s.Equal(0, items[0].Counts.Error)
	s.Equal(0, items[0].Counts.Waiting)
}

func (s *RunSuite) TestListCountsUnslottedTasks() {
	s.seedWorkflow("warmup")
	run, err := s.svc.Create(&CreateRequest{WorkflowID: "warmup"})
	s.Require().NoError(err)

	// a device that never acquired a slot still shows up through its task
	s.Require().NoError(s.db.Create(&models.DeviceTask{
		ID:       uuid.New(),
		RunID:    run.ID,
		DeviceID: "dev-9",
		NodeID:   "node-a",
		Status:   models.DeviceTaskStatusCompleted,
	}).Error)

	items, err := s.svc.List(ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(1, items[0].Counts.Done)
}

func (s *RunSuite) TestListStatusFilterAndWindow() {
	s.seedWorkflow("warmup")

	queued, err := s.svc.Create(&CreateRequest{WorkflowID: "warmup"})
	s.Require().NoError(err)

	stale, err := s.svc.Create(&CreateRequest{WorkflowID: "warmup"})
	s.Require().NoError(err)
	s.Require().NoError(s.db.Model(&models.Run{}).
		Where("id = ?", stale.ID).
		Update("created_at", time.Now().UTC().Add(-48*time.Hour)).Error)

	items, err := s.svc.List(ListFilter{Status: string(models.RunStatusQueued)})
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(queued.ID, items[0].RunID)

	items, err = s.svc.List(ListFilter{Status: string(models.RunStatusRunning)})
	s.Require().NoError(err)
	s.Empty(items)
}
