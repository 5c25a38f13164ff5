// Package scheduler owns the pending one-off triggers and the recurring
// daily/weekly schedules, and fires them into the dispatcher.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"taf/internal/common"
	"taf/internal/server/dao"
	"taf/internal/server/dispatcher"
	"taf/internal/server/metrics"
	"taf/internal/server/model"
)

const fireTimeout = 30 * time.Second

// Dispatcher is what the scheduler fires into.
type Dispatcher interface {
	RunNow(ctx context.Context, p dispatcher.RunParams) (uint, error)
	StartScheduled(ctx context.Context, id uint) (bool, error)
}

type RecurringSpec struct {
	Kind        model.ScheduleKind
	Environment string
	Selection   string
	TargetURL   *string
	Hour        int
	Minute      int
	DayOfWeek   string // weekly only: sun..sat, full names or 0-6 with 0 = Sunday
}

type RecurringEntry struct {
	Key  string
	Spec RecurringSpec
	Next time.Time
}

type recurringJob struct {
	id       cron.EntryID
	spec     RecurringSpec
	schedule cron.Schedule
}

type Scheduler struct {
	dispatcher Dispatcher
	runs       dao.RunDao
	schedules  dao.ScheduleDao
	logger     *zap.Logger
	metrics    *metrics.Metrics

	tick time.Duration
	loc  *time.Location
	now  func() time.Time
	cron *cron.Cron

	// mu serialises every registration change
	mu        sync.Mutex
	pending   map[uint]time.Time
	recurring map[string]*recurringJob

	// started and stopped are guarded by mu
	started bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(d Dispatcher, runs dao.RunDao, schedules dao.ScheduleDao, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		dispatcher: d,
		runs:       runs,
		schedules:  schedules,
		logger:     logger.Named("scheduler"),
		tick:       time.Second,
		loc:        time.Local,
		now:        time.Now,
		pending:    make(map[uint]time.Time),
		recurring:  make(map[string]*recurringJob),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithLocation(s.loc))
	return s
}

// Start re-registers persisted schedules and still-pending one-off runs, then
// begins firing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.start(ctx); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Scheduler) start(ctx context.Context) error {
	schedules, err := s.schedules.List(ctx)
	if err != nil {
		return fmt.Errorf("load recurring schedules: %w", err)
	}
	for _, sc := range schedules {
		spec := RecurringSpec{
			Kind:        sc.Kind,
			Environment: sc.Environment,
			Selection:   sc.Selection,
			TargetURL:   sc.TargetURL,
			Hour:        sc.Hour,
			Minute:      sc.Minute,
			DayOfWeek:   sc.DayOfWeek,
		}
		s.mu.Lock()
		_, err := s.register(spec)
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("skip invalid recurring schedule", zap.String("key", sc.Key), zap.Error(err))
		}
	}

	scheduled, err := s.runs.List(ctx, dao.ListOptions{Status: model.StatusScheduled})
	if err != nil {
		return fmt.Errorf("load scheduled runs: %w", err)
	}
	for _, run := range scheduled {
		fireAt := s.now()
		if run.ScheduledFor != nil {
			fireAt = *run.ScheduledFor
		}
		s.ScheduleOnce(run.ID, fireAt)
	}

	s.cron.Start()
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("scheduler started",
		zap.Int("recurring", len(schedules)),
		zap.Int("pending", len(scheduled)),
		zap.Duration("tick", s.tick),
		zap.String("tz", s.loc.String()))
	return nil
}

// Stop halts the tick loop and waits for running cron jobs. Only the first
// call after Start does anything.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// ScheduleOnce registers the one-off trigger of a scheduled run, replacing any
// earlier trigger for the same run. Past fire times fire on the next tick.
func (s *Scheduler) ScheduleOnce(runID uint, fireAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[runID] = fireAt
	s.metrics.SetPendingTriggers(len(s.pending))
	s.logger.Info("one-off trigger registered", zap.Uint("run_id", runID), zap.Time("fire_at", fireAt))
}

// Cancel removes a pending one-off trigger and reports whether one existed.
func (s *Scheduler) Cancel(runID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[runID]
	delete(s.pending, runID)
	s.metrics.SetPendingTriggers(len(s.pending))
	return ok
}

func (s *Scheduler) Pending() map[uint]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint]time.Time, len(s.pending))
	for id, at := range s.pending {
		out[id] = at
	}
	return out
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.fireDue()
		}
	}
}

func (s *Scheduler) fireDue() {
	now := s.now()

	s.mu.Lock()
	var due []uint
	for id, at := range s.pending {
		if !at.After(now) {
			due = append(due, id)
			delete(s.pending, id)
		}
	}
	s.metrics.SetPendingTriggers(len(s.pending))
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	for _, id := range due {
		ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
		started, err := s.dispatcher.StartScheduled(ctx, id)
		cancel()
		if err != nil {
			s.logger.Error("fail to start scheduled run", zap.Uint("run_id", id), zap.Error(err))
			continue
		}
		if started {
			s.logger.Info("scheduled run fired", zap.Uint("run_id", id))
		}
	}
}

// keyPart escapes the separator so that distinct triples never share a key.
// Slashes are escaped too, the key travels as a single path segment.
var keyPart = strings.NewReplacer("%", "%25", "-", "%2D", "/", "%2F")

// RecurringKey identifies a recurring schedule; one schedule per
// (kind, environment, selection).
func RecurringKey(kind model.ScheduleKind, env, selection string) string {
	return fmt.Sprintf("recurring-%s-%s-%s", keyPart.Replace(string(kind)), keyPart.Replace(env), keyPart.Replace(selection))
}

// ScheduleRecurring registers or replaces a daily/weekly schedule, persists it
// and returns its key.
func (s *Scheduler) ScheduleRecurring(ctx context.Context, spec RecurringSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.register(spec)
	if err != nil {
		return "", err
	}
	job := s.recurring[key]
	if err := s.schedules.Upsert(ctx, &model.Schedule{
		Key:         key,
		Kind:        job.spec.Kind,
		Environment: job.spec.Environment,
		Selection:   job.spec.Selection,
		TargetURL:   job.spec.TargetURL,
		Hour:        job.spec.Hour,
		Minute:      job.spec.Minute,
		DayOfWeek:   job.spec.DayOfWeek,
	}); err != nil {
		// keep memory and store in step
		s.cron.Remove(job.id)
		delete(s.recurring, key)
		s.metrics.SetRecurringSchedules(len(s.recurring))
		return "", fmt.Errorf("persist recurring schedule %s: %w", key, err)
	}
	return key, nil
}

// register adds the cron entry, replacing an existing one with the same key.
// Callers hold mu.
func (s *Scheduler) register(spec RecurringSpec) (string, error) {
	expr, spec, err := cronExpr(spec)
	if err != nil {
		return "", err
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return "", common.NewErrNoMsg(common.ScheduleInvalid, err.Error())
	}

	key := RecurringKey(spec.Kind, spec.Environment, spec.Selection)
	if old, ok := s.recurring[key]; ok {
		s.cron.Remove(old.id)
		s.logger.Info("replacing recurring schedule", zap.String("key", key))
	}

	trigger := model.TriggerDaily
	if spec.Kind == model.ScheduleWeekly {
		trigger = model.TriggerWeekly
	}
	params := dispatcher.RunParams{
		Environment: spec.Environment,
		Selection:   spec.Selection,
		TargetURL:   spec.TargetURL,
		TriggerType: trigger,
		ScheduleKey: key,
	}
	id := s.cron.Schedule(schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
		defer cancel()
		runID, err := s.dispatcher.RunNow(ctx, params)
		if err != nil {
			s.logger.Error("fail to start recurring run", zap.String("key", key), zap.Error(err))
			return
		}
		s.logger.Info("recurring run fired", zap.String("key", key), zap.Uint("run_id", runID))
	}))

	s.recurring[key] = &recurringJob{id: id, spec: spec, schedule: schedule}
	s.metrics.SetRecurringSchedules(len(s.recurring))
	s.logger.Info("recurring schedule registered", zap.String("key", key), zap.String("cron", expr))
	return key, nil
}

// RemoveRecurring drops a recurring schedule from memory and the store.
func (s *Scheduler) RemoveRecurring(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, found := s.recurring[key]
	if found {
		s.cron.Remove(job.id)
		delete(s.recurring, key)
		s.metrics.SetRecurringSchedules(len(s.recurring))
	}
	deleted, err := s.schedules.Delete(ctx, key)
	if err != nil {
		return found, fmt.Errorf("delete recurring schedule %s: %w", key, err)
	}
	return found || deleted, nil
}

func (s *Scheduler) Recurring() []RecurringEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.loc)
	entries := make([]RecurringEntry, 0, len(s.recurring))
	for key, job := range s.recurring {
		entries = append(entries, RecurringEntry{
			Key:  key,
			Spec: job.spec,
			Next: job.schedule.Next(now),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

var weekdays = map[string]int{
	"sun": 0, "sunday": 0,
	"mon": 1, "monday": 1,
	"tue": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
}

var weekdayNames = []string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// ParseWeekday accepts day names or 0-6 with 0 = Sunday.
func ParseWeekday(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdays[s]; ok {
		return d, nil
	}
	d, err := strconv.Atoi(s)
	if err != nil || d < 0 || d > 6 {
		return 0, common.NewErrNoMsg(common.ScheduleInvalid, fmt.Sprintf("unknown day of week %q", s))
	}
	return d, nil
}

// cronExpr validates spec and returns its five-field cron expression along
// with the normalised spec.
func cronExpr(spec RecurringSpec) (string, RecurringSpec, error) {
	if spec.Hour < 0 || spec.Hour > 23 || spec.Minute < 0 || spec.Minute > 59 {
		return "", spec, common.NewErrNoMsg(common.ScheduleInvalid, fmt.Sprintf("invalid time %02d:%02d", spec.Hour, spec.Minute))
	}
	switch spec.Kind {
	case model.ScheduleDaily:
		spec.DayOfWeek = ""
		return fmt.Sprintf("%d %d * * *", spec.Minute, spec.Hour), spec, nil
	case model.ScheduleWeekly:
		if spec.DayOfWeek == "" {
			return "", spec, common.NewErrNoMsg(common.ScheduleInvalid, "weekly schedule needs a day of week")
		}
		day, err := ParseWeekday(spec.DayOfWeek)
		if err != nil {
			return "", spec, err
		}
		spec.DayOfWeek = weekdayNames[day]
		return fmt.Sprintf("%d %d * * %d", spec.Minute, spec.Hour, day), spec, nil
	default:
		return "", spec, common.NewErrNoMsg(common.ScheduleInvalid, fmt.Sprintf("unknown schedule kind %q", spec.Kind))
	}
}
