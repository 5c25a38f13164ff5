// Package service is the caller-facing API over the dispatcher and scheduler.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"taf/internal/common"
	"taf/internal/server/dao"
	"taf/internal/server/discovery"
	"taf/internal/server/dispatcher"
	"taf/internal/server/envconfig"
	"taf/internal/server/model"
	"taf/internal/server/scheduler"
)

// ReportFile is the robot log page inside an artifact directory.
const ReportFile = "log.html"

type TriggerMode string

const (
	ModeImmediate TriggerMode = "immediate"
	ModeOnce      TriggerMode = "once"
	ModeDaily     TriggerMode = "daily"
	ModeWeekly    TriggerMode = "weekly"
)

type TriggerRequest struct {
	Mode        TriggerMode
	Environment string
	Selection   string
	TargetURL   *string
	FireAt      *time.Time // once
	Time        string     // daily/weekly, HH:MM
	DayOfWeek   string     // weekly
}

// TriggerResult carries the run id for immediate and once triggers, the
// schedule key for recurring ones.
type TriggerResult struct {
	RunID       uint
	ScheduleKey string
}

type Stats struct {
	Total    int64
	ByStatus map[model.RunStatus]int64
}

type RunService struct {
	runs          dao.RunDao
	dispatcher    *dispatcher.Dispatcher
	scheduler     *scheduler.Scheduler
	envs          *envconfig.Loader
	catalog       *discovery.Catalog
	artifactsRoot string
	logger        *zap.Logger
	now           func() time.Time
}

func NewRunService(
	runs dao.RunDao,
	d *dispatcher.Dispatcher,
	s *scheduler.Scheduler,
	envs *envconfig.Loader,
	catalog *discovery.Catalog,
	artifactsRoot string,
	logger *zap.Logger,
) *RunService {
	return &RunService{
		runs:          runs,
		dispatcher:    d,
		scheduler:     s,
		envs:          envs,
		catalog:       catalog,
		artifactsRoot: artifactsRoot,
		logger:        logger.Named("service"),
		now:           time.Now,
	}
}

func (s *RunService) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	if err := s.validateEnvironment(req.Environment); err != nil {
		return nil, err
	}
	if req.TargetURL != nil && *req.TargetURL == "" {
		req.TargetURL = nil
	}
	params := dispatcher.RunParams{
		Environment: req.Environment,
		Selection:   req.Selection,
		TargetURL:   req.TargetURL,
	}

	switch req.Mode {
	case ModeImmediate, "":
		id, err := s.dispatcher.RunNow(ctx, params)
		if err != nil {
			return nil, common.NewErrNoMsg(common.TriggerFail, err.Error())
		}
		return &TriggerResult{RunID: id}, nil

	case ModeOnce:
		if req.FireAt == nil {
			return nil, common.NewErrNoMsg(common.ScheduleInvalid, "once trigger needs a fire time")
		}
		run, err := s.dispatcher.CreateScheduled(ctx, params, *req.FireAt)
		if err != nil {
			return nil, common.NewErrNoMsg(common.TriggerFail, err.Error())
		}
		s.scheduler.ScheduleOnce(run.ID, *req.FireAt)
		return &TriggerResult{RunID: run.ID}, nil

	case ModeDaily, ModeWeekly:
		if req.Time == "" {
			return nil, common.NewErrNoMsg(common.ScheduleInvalid, "recurring trigger needs a time")
		}
		hour, minute, err := common.ParseClock(req.Time)
		if err != nil {
			return nil, common.NewErrNoMsg(common.ScheduleInvalid, err.Error())
		}
		kind := model.ScheduleDaily
		if req.Mode == ModeWeekly {
			kind = model.ScheduleWeekly
		}
		key, err := s.scheduler.ScheduleRecurring(ctx, scheduler.RecurringSpec{
			Kind:        kind,
			Environment: req.Environment,
			Selection:   req.Selection,
			TargetURL:   req.TargetURL,
			Hour:        hour,
			Minute:      minute,
			DayOfWeek:   req.DayOfWeek,
		})
		if err != nil {
			return nil, err
		}
		return &TriggerResult{ScheduleKey: key}, nil

	default:
		return nil, common.NewErrNoMsg(common.RequestInvalid, fmt.Sprintf("unknown trigger mode %q", req.Mode))
	}
}

// validateEnvironment only checks against config files when there are any.
func (s *RunService) validateEnvironment(name string) error {
	if name == "" {
		return common.NewErrNoMsg(common.RequestInvalid, "environment is required")
	}
	envs, err := s.envs.List()
	if err != nil {
		s.logger.Warn("fail to list environments, skipping validation", zap.Error(err))
		return nil
	}
	if len(envs) == 0 {
		return nil
	}
	for _, e := range envs {
		if e.Name == name {
			return nil
		}
	}
	return common.NewErrNoMsg(common.EnvNotExists, name)
}

// Cancel withdraws a run that has not fired yet.
func (s *RunService) Cancel(ctx context.Context, id uint) error {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run.Status != model.StatusScheduled {
		return common.NewErrNo(common.RunNotCancellable)
	}

	// the trigger stays registered until the store says the run is cancelled;
	// a trigger firing in between finds the run no longer scheduled
	now := s.now()
	ok, err := s.runs.TransitionStatus(ctx, id, []model.RunStatus{model.StatusScheduled}, dao.StatusUpdate{
		Status:     model.StatusCancelled,
		FinishedAt: &now,
	})
	if err != nil {
		return err
	}
	s.scheduler.Cancel(id)
	if !ok {
		// fired between the read and the update
		return common.NewErrNo(common.RunNotCancellable)
	}
	s.logger.Info("run cancelled", zap.Uint("run_id", id))
	return nil
}

func (s *RunService) Rerun(ctx context.Context, id uint) (uint, error) {
	newID, err := s.dispatcher.Rerun(ctx, id)
	if err != nil {
		if common.IsErrNo(err, common.RunNotExists) {
			return 0, err
		}
		return 0, common.NewErrNoMsg(common.TriggerFail, err.Error())
	}
	return newID, nil
}

func (s *RunService) GetStatus(ctx context.Context, id uint) (*model.Run, error) {
	return s.runs.GetByID(ctx, id)
}

func (s *RunService) List(ctx context.Context, opts dao.ListOptions) ([]*model.Run, error) {
	return s.runs.List(ctx, opts)
}

func (s *RunService) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.runs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{ByStatus: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (s *RunService) Schedules() []scheduler.RecurringEntry {
	return s.scheduler.Recurring()
}

func (s *RunService) RemoveSchedule(ctx context.Context, key string) error {
	ok, err := s.scheduler.RemoveRecurring(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return common.NewErrNo(common.ScheduleNotExists)
	}
	return nil
}

func (s *RunService) Environments() ([]envconfig.Environment, error) {
	return s.envs.List()
}

func (s *RunService) Tests() (*discovery.Result, error) {
	return s.catalog.Discover()
}

func (s *RunService) UploadTest(name string, r io.Reader) error {
	dst, err := s.catalog.Save(name, r)
	if err != nil {
		return common.NewErrNoMsg(common.RequestInvalid, err.Error())
	}
	s.logger.Info("test file uploaded", zap.String("path", dst))
	return nil
}

// ReportPath locates the log page of a run's artifact.
func (s *RunService) ReportPath(ctx context.Context, id uint) (string, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if run.ArtifactRef == nil || *run.ArtifactRef == "" {
		return "", common.NewErrNo(common.ReportNotExists)
	}
	path := filepath.Join(s.artifactsRoot, filepath.Base(*run.ArtifactRef), ReportFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", common.NewErrNo(common.ReportNotExists)
		}
		return "", err
	}
	return path, nil
}
