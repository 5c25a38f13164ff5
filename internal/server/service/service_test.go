package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"taf/internal/common"
	"taf/internal/server/dao"
	"taf/internal/server/dao/daotest"
	"taf/internal/server/discovery"
	"taf/internal/server/dispatcher"
	"taf/internal/server/envconfig"
	"taf/internal/server/model"
	"taf/internal/server/outcome"
	"taf/internal/server/scheduler"
	"taf/internal/task_executor/runner"
)

type stubExecutor struct {
	result *runner.Result
}

func (e stubExecutor) Execute(context.Context, runner.Request) (*runner.Result, error) {
	return e.result, nil
}

type fixture struct {
	svc        *RunService
	runs       dao.RunDao
	dispatcher *dispatcher.Dispatcher
	scheduler  *scheduler.Scheduler
	root       string
}

func newFixture(t *testing.T, envs ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"config", "tests", "resources", "artifacts"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	for _, env := range envs {
		require.NoError(t, os.WriteFile(filepath.Join(root, "config", env+".yaml"), []byte("base_url: http://"+env+"\n"), 0o644))
	}

	logger := zaptest.NewLogger(t)
	db := daotest.NewTestDB(t)
	runs := dao.NewRunDao(db)
	artifacts := filepath.Join(root, "artifacts")

	d := dispatcher.New(runs, stubExecutor{result: &runner.Result{ExitCode: 0}}, outcome.NewInterpreter(artifacts, logger), logger)
	t.Cleanup(d.Wait)
	s := scheduler.New(d, runs, dao.NewScheduleDao(db), logger, scheduler.WithLocation(time.UTC))

	svc := NewRunService(runs, d, s,
		envconfig.NewLoader(filepath.Join(root, "config"), logger),
		discovery.NewCatalog(filepath.Join(root, "tests"), filepath.Join(root, "resources")),
		artifacts, logger)
	return &fixture{svc: svc, runs: runs, dispatcher: d, scheduler: s, root: root}
}

func TestTriggerImmediate(t *testing.T) {
	f := newFixture(t, "dev")
	ctx := context.Background()

	empty := ""
	res, err := f.svc.Trigger(ctx, TriggerRequest{Mode: ModeImmediate, Environment: "dev", Selection: "smoke", TargetURL: &empty})
	require.NoError(t, err)
	require.NotZero(t, res.RunID)
	f.dispatcher.Wait()

	run, err := f.svc.GetStatus(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, run.Status)
	assert.Nil(t, run.TargetURL, "empty override is dropped")
}

func TestTriggerValidation(t *testing.T) {
	f := newFixture(t, "dev")
	ctx := context.Background()

	_, err := f.svc.Trigger(ctx, TriggerRequest{Mode: ModeImmediate, Environment: "prod"})
	assert.True(t, common.IsErrNo(err, common.EnvNotExists))

	_, err = f.svc.Trigger(ctx, TriggerRequest{Mode: ModeImmediate})
	assert.True(t, common.IsErrNo(err, common.RequestInvalid))

	_, err = f.svc.Trigger(ctx, TriggerRequest{Mode: ModeOnce, Environment: "dev"})
	assert.True(t, common.IsErrNo(err, common.ScheduleInvalid))

	_, err = f.svc.Trigger(ctx, TriggerRequest{Mode: ModeDaily, Environment: "dev"})
	assert.True(t, common.IsErrNo(err, common.ScheduleInvalid))

	_, err = f.svc.Trigger(ctx, TriggerRequest{Mode: ModeWeekly, Environment: "dev", Time: "09:00"})
	assert.True(t, common.IsErrNo(err, common.ScheduleInvalid))

	_, err = f.svc.Trigger(ctx, TriggerRequest{Mode: "hourly", Environment: "dev"})
	assert.True(t, common.IsErrNo(err, common.RequestInvalid))

	runs, err := f.svc.List(ctx, dao.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, runs, "rejected triggers create no runs")
}

func TestAnyEnvironmentWithoutConfigs(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Trigger(context.Background(), TriggerRequest{Environment: "whatever"})
	require.NoError(t, err)
	assert.NotZero(t, res.RunID)
}

func TestTriggerOnceAndCancel(t *testing.T) {
	f := newFixture(t, "dev")
	ctx := context.Background()

	fireAt := time.Now().Add(time.Hour)
	res, err := f.svc.Trigger(ctx, TriggerRequest{Mode: ModeOnce, Environment: "dev", FireAt: &fireAt})
	require.NoError(t, err)

	run, err := f.svc.GetStatus(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, run.Status)
	assert.Contains(t, f.scheduler.Pending(), res.RunID)

	require.NoError(t, f.svc.Cancel(ctx, res.RunID))
	run, err = f.svc.GetStatus(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, run.Status)
	assert.NotNil(t, run.FinishedAt)
	assert.NotContains(t, f.scheduler.Pending(), res.RunID)

	err = f.svc.Cancel(ctx, res.RunID)
	assert.True(t, common.IsErrNo(err, common.RunNotCancellable))

	err = f.svc.Cancel(ctx, 4242)
	assert.True(t, common.IsErrNo(err, common.RunNotExists))
}

func TestCancelWithoutTrigger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// scheduled in the store but the trigger is already gone
	run, err := f.dispatcher.CreateScheduled(ctx, dispatcher.RunParams{Environment: "dev"}, time.Now())
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, run.ID))
	got, err := f.svc.GetStatus(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
}

// brokenTransitions fails every conditional status update.
type brokenTransitions struct {
	dao.RunDao
}

func (brokenTransitions) TransitionStatus(context.Context, uint, []model.RunStatus, dao.StatusUpdate) (bool, error) {
	return false, errors.New("database is locked")
}

func TestCancelStoreErrorKeepsTrigger(t *testing.T) {
	f := newFixture(t, "dev")
	ctx := context.Background()

	fireAt := time.Now().Add(time.Hour)
	res, err := f.svc.Trigger(ctx, TriggerRequest{Mode: ModeOnce, Environment: "dev", FireAt: &fireAt})
	require.NoError(t, err)

	f.svc.runs = brokenTransitions{RunDao: f.runs}
	require.Error(t, f.svc.Cancel(ctx, res.RunID))

	assert.Contains(t, f.scheduler.Pending(), res.RunID)
	run, err := f.runs.GetByID(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, run.Status)
}

func TestCancelRunningRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run := &model.Run{Environment: "dev", Status: model.StatusRunning, TriggerType: model.TriggerImmediate}
	require.NoError(t, f.runs.Create(ctx, run))

	err := f.svc.Cancel(ctx, run.ID)
	assert.True(t, common.IsErrNo(err, common.RunNotCancellable))
}

func TestTriggerRecurringAndRemove(t *testing.T) {
	f := newFixture(t, "dev")
	ctx := context.Background()

	res, err := f.svc.Trigger(ctx, TriggerRequest{Mode: ModeWeekly, Environment: "dev", Selection: "regression", Time: "07:45", DayOfWeek: "sun"})
	require.NoError(t, err)
	assert.Zero(t, res.RunID)
	assert.Equal(t, "recurring-weekly-dev-regression", res.ScheduleKey)

	entries := f.svc.Schedules()
	require.Len(t, entries, 1)
	assert.Equal(t, 7, entries[0].Spec.Hour)
	assert.Equal(t, 45, entries[0].Spec.Minute)
	assert.Equal(t, time.Sunday, entries[0].Next.Weekday())

	require.NoError(t, f.svc.RemoveSchedule(ctx, res.ScheduleKey))
	assert.Empty(t, f.svc.Schedules())

	err = f.svc.RemoveSchedule(ctx, res.ScheduleKey)
	assert.True(t, common.IsErrNo(err, common.ScheduleNotExists))
}

func TestRerunAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Trigger(ctx, TriggerRequest{Environment: "dev", Selection: "smoke"})
	require.NoError(t, err)
	f.dispatcher.Wait()

	newID, err := f.svc.Rerun(ctx, res.RunID)
	require.NoError(t, err)
	assert.NotEqual(t, res.RunID, newID)
	f.dispatcher.Wait()

	_, err = f.svc.Rerun(ctx, 999)
	assert.True(t, common.IsErrNo(err, common.RunNotExists))

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.ByStatus[model.StatusFinished])
}

func TestReportPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref := "20240101T000000Z_cafebabe"
	withReport := &model.Run{Environment: "dev", Status: model.StatusFinished, TriggerType: model.TriggerImmediate, ArtifactRef: &ref}
	require.NoError(t, f.runs.Create(ctx, withReport))
	noArtifact := &model.Run{Environment: "dev", Status: model.StatusError, TriggerType: model.TriggerImmediate}
	require.NoError(t, f.runs.Create(ctx, noArtifact))

	_, err := f.svc.ReportPath(ctx, withReport.ID)
	assert.True(t, common.IsErrNo(err, common.ReportNotExists))

	dir := filepath.Join(f.root, "artifacts", ref)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ReportFile), []byte("<html/>"), 0o644))

	path, err := f.svc.ReportPath(ctx, withReport.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ReportFile), path)

	_, err = f.svc.ReportPath(ctx, noArtifact.ID)
	assert.True(t, common.IsErrNo(err, common.ReportNotExists))
}

func TestEnvironmentsAndTests(t *testing.T) {
	f := newFixture(t, "dev", "staging")

	envs, err := f.svc.Environments()
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, "http://dev", envs[0].BaseURL)

	require.NoError(t, f.svc.UploadTest("checkout.robot", strings.NewReader("*** Test Cases ***\nBuy\n    [Tags]    smoke\n    Log    ok\n")))
	err = f.svc.UploadTest("notes.txt", strings.NewReader(""))
	assert.True(t, common.IsErrNo(err, common.RequestInvalid))

	tests, err := f.svc.Tests()
	require.NoError(t, err)
	assert.Equal(t, []string{"checkout.robot"}, tests.Suites["smoke"])
}
