// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/hearth/internal/logging"
	"github.com/tomtom215/hearth/internal/metrics"
)

// Well-known job names. The API enqueues these by name.
const (
	JobLibrarySync = "library-sync"
	JobDueNotify   = "due-notify"
)

// Trigger labels recorded against each job run.
const (
	TriggerInterval = "interval"
	TriggerCron     = "cron"
	TriggerManual   = "manual"
)

// Run outcomes.
const (
	resultSuccess = "success"
	resultError   = "error"
	resultPanic   = "panic"
)

// queueCapacity bounds pending runs. The queue only ever holds a handful
// of entries; a full queue means a job is wedged.
const queueCapacity = 16

// historyCapacity bounds the in-memory run history served over the API.
const historyCapacity = 50

// defaultJobTimeout caps a single job execution.
const defaultJobTimeout = 10 * time.Minute

var (
	// ErrUnknownJob is returned when enqueueing a name that was never
	// registered.
	ErrUnknownJob = errors.New("unknown job")

	// ErrQueueFull is returned when the run queue cannot accept another
	// entry.
	ErrQueueFull = errors.New("job queue full")
)

// JobFunc is the unit of schedulable work.
type JobFunc func(ctx context.Context) error

// job is one registered job with its triggers.
type job struct {
	name       string
	fn         JobFunc
	interval   time.Duration // 0 means no interval trigger
	startDelay time.Duration
	cron       *CronExpression // nil means no cron trigger
	cronExpr   string
}

// queuedRun is one pending execution.
type queuedRun struct {
	name    string
	trigger string
}

// JobRun records one completed execution.
type JobRun struct {
	Job        string    `json:"job"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Result     string    `json:"result"`
	Error      string    `json:"error,omitempty"`
}

// JobInfo describes one registered job for the API.
type JobInfo struct {
	Name        string     `json:"name"`
	Interval    string     `json:"interval,omitempty"`
	Cron        string     `json:"cron,omitempty"`
	NextCronRun *time.Time `json:"next_cron_run,omitempty"`
}

// Scheduler owns the process-wide job queue. All executions, whether
// triggered by interval, cron, or an API request, flow through one worker,
// so two jobs never run concurrently. That serialization is what lets the
// sync job truncate-and-reinsert without coordinating with the notifier.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	history []JobRun

	queue      chan queuedRun
	jobTimeout time.Duration
	logger     zerolog.Logger
}

// New creates an empty scheduler. Register jobs before calling Serve.
func New() *Scheduler {
	return &Scheduler{
		jobs:       make(map[string]*job),
		queue:      make(chan queuedRun, queueCapacity),
		jobTimeout: defaultJobTimeout,
		logger:     logging.Logger().With().Str("component", "scheduler").Logger(),
	}
}

// RegisterInterval registers a job that runs every interval, with the
// first run scheduled startDelay after Serve begins.
func (s *Scheduler) RegisterInterval(name string, fn JobFunc, interval, startDelay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.register(&job{name: name, fn: fn, interval: interval, startDelay: startDelay})
}

// RegisterCron registers a job driven by a 5-field cron expression,
// evaluated in UTC.
func (s *Scheduler) RegisterCron(name string, fn JobFunc, expr string) error {
	cron, err := ParseCron(expr)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	// Field-valid expressions can still name impossible dates (April 31).
	// Reject them here rather than letting the trigger spin on a zero time.
	if cron.NextRun(time.Now(), nil).IsZero() {
		return fmt.Errorf("register %s: cron expression %q never matches", name, expr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.register(&job{name: name, fn: fn, cron: cron, cronExpr: expr})
	return nil
}

// register merges triggers when the name already exists, so a job can carry
// both an interval and a cron trigger.
func (s *Scheduler) register(j *job) {
	existing, ok := s.jobs[j.name]
	if !ok {
		s.jobs[j.name] = j
		s.order = append(s.order, j.name)
		return
	}
	if j.interval > 0 {
		existing.interval = j.interval
		existing.startDelay = j.startDelay
	}
	if j.cron != nil {
		existing.cron = j.cron
		existing.cronExpr = j.cronExpr
	}
	if existing.fn == nil {
		existing.fn = j.fn
	}
}

// Enqueue requests an ad-hoc run of a registered job. It never blocks;
// callers on the request path get an immediate answer.
func (s *Scheduler) Enqueue(name string) error {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	select {
	case s.queue <- queuedRun{name: name, trigger: TriggerManual}:
		metrics.JobQueueDepth.Set(float64(len(s.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// enqueueTrigger is the non-blocking enqueue used by timer goroutines. A
// full queue drops the run; the next trigger fires anyway.
func (s *Scheduler) enqueueTrigger(name, trigger string) {
	select {
	case s.queue <- queuedRun{name: name, trigger: trigger}:
		metrics.JobQueueDepth.Set(float64(len(s.queue)))
	default:
		s.logger.Warn().Str("job", name).Str("trigger", trigger).Msg("Job queue full, dropping run")
	}
}

// Jobs returns the registered jobs in registration order.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	infos := make([]JobInfo, 0, len(s.order))
	for _, name := range s.order {
		j := s.jobs[name]
		info := JobInfo{Name: j.name}
		if j.interval > 0 {
			info.Interval = j.interval.String()
		}
		if j.cron != nil {
			info.Cron = j.cronExpr
			next := j.cron.NextRun(now, nil)
			info.NextCronRun = &next
		}
		infos = append(infos, info)
	}
	return infos
}

// History returns recent runs, newest first.
func (s *Scheduler) History() []JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]JobRun, len(s.history))
	for i, run := range s.history {
		runs[len(s.history)-1-i] = run
	}
	return runs
}

// Serve runs the trigger timers and the single worker until the context is
// canceled. It satisfies the supervisor's service contract.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.order))
	for _, name := range s.order {
		jobs = append(jobs, s.jobs[name])
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, j := range jobs {
		if j.interval > 0 {
			wg.Add(1)
			go func(j *job) {
				defer wg.Done()
				s.runIntervalTrigger(ctx, j)
			}(j)
		}
		if j.cron != nil {
			wg.Add(1)
			go func(j *job) {
				defer wg.Done()
				s.runCronTrigger(ctx, j)
			}(j)
		}
	}

	s.logger.Info().Int("jobs", len(jobs)).Msg("Scheduler started")

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.logger.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case run := <-s.queue:
			metrics.JobQueueDepth.Set(float64(len(s.queue)))
			s.runJob(ctx, run)
		}
	}
}

// runIntervalTrigger fires after the start delay, then on every interval.
func (s *Scheduler) runIntervalTrigger(ctx context.Context, j *job) {
	delay := time.NewTimer(j.startDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		return
	case <-delay.C:
		s.enqueueTrigger(j.name, TriggerInterval)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueueTrigger(j.name, TriggerInterval)
		}
	}
}

// runCronTrigger sleeps until each next cron match.
func (s *Scheduler) runCronTrigger(ctx context.Context, j *job) {
	for {
		next := j.cron.NextRun(time.Now(), nil)
		if next.IsZero() {
			// A zero time would arm a hugely negative timer and busy-loop.
			s.logger.Error().Str("job", j.name).Str("cron", j.cronExpr).
				Msg("Cron expression never matches, disabling trigger")
			return
		}
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.enqueueTrigger(j.name, TriggerCron)
		}
	}
}

// runJob executes one queued run with a timeout and panic containment.
func (s *Scheduler) runJob(ctx context.Context, run queuedRun) {
	s.mu.Lock()
	j, ok := s.jobs[run.name]
	s.mu.Unlock()
	if !ok {
		return
	}

	logger := s.logger.With().Str("job", run.name).Str("trigger", run.trigger).Logger()
	logger.Info().Msg("Running job")

	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	record := JobRun{Job: run.name, Trigger: run.trigger, StartedAt: start}

	func() {
		defer func() {
			if r := recover(); r != nil {
				record.Result = resultPanic
				record.Error = fmt.Sprintf("panic: %v", r)
				logger.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("Job panicked")
			}
		}()

		if err := j.fn(jobCtx); err != nil {
			record.Result = resultError
			record.Error = err.Error()
			logger.Error().Err(err).Msg("Job failed")
			return
		}
		record.Result = resultSuccess
	}()

	record.DurationMS = time.Since(start).Milliseconds()
	metrics.JobsExecuted.WithLabelValues(run.name, run.trigger, record.Result).Inc()

	if record.Result == resultSuccess {
		logger.Info().Int64("duration_ms", record.DurationMS).Msg("Job finished")
	}

	s.mu.Lock()
	s.history = append(s.history, record)
	if len(s.history) > historyCapacity {
		s.history = s.history[len(s.history)-historyCapacity:]
	}
	s.mu.Unlock()
}
