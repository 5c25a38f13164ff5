// Package dispatcher creates run records and drives each run through the
// executor on its own goroutine.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"taf/internal/server/dao"
	"taf/internal/server/metrics"
	"taf/internal/server/model"
	"taf/internal/server/outcome"
	"taf/internal/task_executor/runner"
)

// completeTimeout bounds the store write that records a run's outcome.
const completeTimeout = 30 * time.Second

type RunParams struct {
	Environment string
	Selection   string
	TargetURL   *string
	TriggerType model.TriggerType
	ScheduleKey string
}

type Dispatcher struct {
	runs        dao.RunDao
	executor    runner.Executor
	interpreter *outcome.Interpreter
	logger      *zap.Logger
	metrics     *metrics.Metrics
	sem         *semaphore.Weighted
	now         func() time.Time

	// workers run under ctx, not the caller's request context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Dispatcher)

// WithMaxConcurrency bounds concurrent executor invocations; n <= 0 is unbounded.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func New(runs dao.RunDao, executor runner.Executor, interpreter *outcome.Interpreter, logger *zap.Logger, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		runs:        runs,
		executor:    executor,
		interpreter: interpreter,
		logger:      logger.Named("dispatcher"),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunNow records a running run and starts it without waiting for the executor.
func (d *Dispatcher) RunNow(ctx context.Context, p RunParams) (uint, error) {
	if p.TriggerType == "" {
		p.TriggerType = model.TriggerImmediate
	}
	run := &model.Run{
		Environment: p.Environment,
		Selection:   p.Selection,
		TargetURL:   p.TargetURL,
		Status:      model.StatusRunning,
		TriggerType: p.TriggerType,
		ScheduleKey: p.ScheduleKey,
		CreatedAt:   d.now(),
	}
	if err := d.runs.Create(ctx, run); err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	d.launch(run)
	return run.ID, nil
}

// CreateScheduled records a one-off run that waits for its trigger.
func (d *Dispatcher) CreateScheduled(ctx context.Context, p RunParams, fireAt time.Time) (*model.Run, error) {
	run := &model.Run{
		Environment:  p.Environment,
		Selection:    p.Selection,
		TargetURL:    p.TargetURL,
		Status:       model.StatusScheduled,
		TriggerType:  model.TriggerOnce,
		CreatedAt:    d.now(),
		ScheduledFor: &fireAt,
	}
	if err := d.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create scheduled run: %w", err)
	}
	return run, nil
}

// StartScheduled moves a scheduled run to running and launches it. It reports
// false when the run is no longer scheduled, e.g. cancelled before firing.
func (d *Dispatcher) StartScheduled(ctx context.Context, id uint) (bool, error) {
	ok, err := d.runs.TransitionStatus(ctx, id, []model.RunStatus{model.StatusScheduled}, dao.StatusUpdate{Status: model.StatusRunning})
	if err != nil {
		return false, fmt.Errorf("start scheduled run %d: %w", id, err)
	}
	if !ok {
		d.logger.Info("scheduled run no longer pending, skipping", zap.Uint("run_id", id))
		return false, nil
	}

	run, err := d.runs.GetByID(ctx, id)
	if err != nil {
		// already running in the store, do not leave it there forever
		if cerr := d.Complete(ctx, id, nil, err); cerr != nil {
			d.logger.Error("fail to complete run", zap.Uint("run_id", id), zap.Error(cerr))
		}
		return true, fmt.Errorf("load scheduled run %d: %w", id, err)
	}
	d.launch(run)
	return true, nil
}

// Rerun starts a new run with the parameters of an existing one, whatever its status.
func (d *Dispatcher) Rerun(ctx context.Context, id uint) (uint, error) {
	src, err := d.runs.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return d.RunNow(ctx, RunParams{
		Environment: src.Environment,
		Selection:   src.Selection,
		TargetURL:   src.TargetURL,
		TriggerType: model.TriggerRerun,
	})
}

// Complete records the outcome of an executor call on a running run. Any
// executor error makes the run an error without artifact.
func (d *Dispatcher) Complete(ctx context.Context, id uint, res *runner.Result, execErr error) error {
	_, err := d.complete(ctx, id, res, execErr)
	return err
}

func (d *Dispatcher) complete(ctx context.Context, id uint, res *runner.Result, execErr error) (model.RunStatus, error) {
	now := d.now()
	update := dao.StatusUpdate{Status: model.StatusError, FinishedAt: &now}

	switch {
	case execErr != nil:
		var launchErr *runner.LaunchError
		if errors.As(execErr, &launchErr) {
			d.logger.Error("test runner failed to launch", zap.Uint("run_id", id), zap.Error(execErr))
		} else {
			d.logger.Error("test runner failed", zap.Uint("run_id", id), zap.Error(execErr))
		}
	case res == nil:
		d.logger.Error("executor returned no result", zap.Uint("run_id", id))
	default:
		exitCode := res.ExitCode
		update.ExitCode = &exitCode
		update.ArtifactRef = res.ArtifactRef
		update.Status = d.interpreter.Interpret(res.ExitCode, res.ArtifactRef)
	}

	ok, err := d.runs.TransitionStatus(ctx, id, []model.RunStatus{model.StatusRunning}, update)
	if err != nil {
		return update.Status, fmt.Errorf("complete run %d: %w", id, err)
	}
	if !ok {
		d.logger.Warn("run not running, outcome dropped", zap.Uint("run_id", id), zap.String("status", string(update.Status)))
		return update.Status, nil
	}
	d.logger.Info("run completed", zap.Uint("run_id", id), zap.String("status", string(update.Status)))
	return update.Status, nil
}

func (d *Dispatcher) launch(run *model.Run) {
	d.wg.Add(1)
	go d.execute(run)
}

func (d *Dispatcher) execute(run *model.Run) {
	defer d.wg.Done()

	start := d.now()
	d.metrics.RunStarted(string(run.TriggerType))

	var (
		res *runner.Result
		err error
	)
	if d.sem != nil {
		err = d.sem.Acquire(d.ctx, 1)
		if err == nil {
			defer d.sem.Release(1)
		}
	}
	if err == nil {
		d.logger.Info("run started",
			zap.Uint("run_id", run.ID),
			zap.String("env", run.Environment),
			zap.String("selection", run.Selection),
			zap.String("trigger", string(run.TriggerType)))
		res, err = d.safeExecute(runner.Request{
			Environment: run.Environment,
			Selection:   run.Selection,
			TargetURL:   run.TargetURL,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	status, cerr := d.complete(ctx, run.ID, res, err)
	if cerr != nil {
		d.logger.Error("fail to record run outcome", zap.Uint("run_id", run.ID), zap.Error(cerr))
	}
	d.metrics.RunFinished(string(status), d.now().Sub(start))
}

func (d *Dispatcher) safeExecute(req runner.Request) (res *runner.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("executor panic: %v", r)
		}
	}()
	return d.executor.Execute(d.ctx, req)
}

// Wait blocks until every launched run has completed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown waits for in-flight runs. When ctx expires first the remaining
// executions are killed and recorded before it returns ctx's error.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
