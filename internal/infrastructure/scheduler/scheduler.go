// Package scheduler runs background jobs on fixed schedules. Each job runs
// at most once at a time; a run that overlaps the next due time is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/attendance-tracker/internal/infrastructure/metrics"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
)

var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
	ErrSchedulerNotRunning     = errors.New("scheduler not running")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobAlreadyExists        = errors.New("job already registered")
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of background work.
type Job interface {
	// Name is unique within a scheduler and is used as a metric label.
	Name() string

	// Run executes the job. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

// Schedule decides when a job runs next.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// JobResult describes one run.
type JobResult struct {
	JobName   string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains scheduler settings.
type Config struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	// Tick is how often due jobs are checked (default: 1s).
	Tick time.Duration

	// RunOnStart runs every job once right after Start.
	RunOnStart bool
}

type scheduledJob struct {
	job      Job
	schedule Schedule
	nextRun  time.Time
	running  bool
	last     *JobResult
}

// Scheduler runs registered jobs until stopped.
type Scheduler struct {
	config Config
	logger *logger.Logger

	mu      sync.Mutex
	jobs    map[string]*scheduledJob
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Scheduler.
func New(config Config) *Scheduler {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Tick <= 0 {
		config.Tick = time.Second
	}
	return &Scheduler{
		config: config,
		logger: config.Logger.With(logger.Component("scheduler")),
		jobs:   make(map[string]*scheduledJob),
	}
}

// Register adds a job. Jobs can be registered before or after Start.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	s.jobs[name] = &scheduledJob{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now()),
	}
	s.logger.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
	)
	return nil
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	if s.config.RunOnStart {
		for _, sj := range s.jobs {
			sj.nextRun = time.Time{}
		}
	}
	count := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", logger.Int("jobs", count))

	s.wg.Add(1)
	go s.loop()
	if s.config.RunOnStart {
		s.runDue(time.Now())
	}
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.runDue(now)
		}
	}
}

// runDue starts every due job that is not already running.
func (s *Scheduler) runDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	for _, sj := range s.jobs {
		if sj.running || now.Before(sj.nextRun) {
			continue
		}
		sj.running = true
		sj.nextRun = sj.schedule.Next(now)
		s.wg.Add(1)
		go s.run(s.ctx, sj)
	}
}

func (s *Scheduler) run(ctx context.Context, sj *scheduledJob) {
	defer s.wg.Done()
	result := s.execute(ctx, sj.job)

	s.mu.Lock()
	sj.running = false
	sj.last = &result
	s.mu.Unlock()
}

// execute runs a job once and records the outcome.
func (s *Scheduler) execute(ctx context.Context, job Job) JobResult {
	name := job.Name()
	started := time.Now()

	err := runSafely(ctx, job)
	result := JobResult{JobName: name, StartedAt: started, Duration: time.Since(started), Err: err}

	if err != nil {
		s.config.Metrics.ObserveJob(name, "failure")
		s.logger.Error("job failed",
			logger.String("job", name),
			logger.Duration("duration", result.Duration),
			logger.Err(err),
		)
	} else {
		s.config.Metrics.ObserveJob(name, "success")
		s.logger.Debug("job completed",
			logger.String("job", name),
			logger.Duration("duration", result.Duration),
		)
	}
	return result
}

func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}

// RunNow executes a job immediately, ignoring its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (JobResult, error) {
	s.mu.Lock()
	sj, ok := s.jobs[jobName]
	s.mu.Unlock()
	if !ok {
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	result := s.execute(ctx, sj.job)

	s.mu.Lock()
	sj.last = &result
	s.mu.Unlock()
	return result, nil
}

// JobInfo is a snapshot of a registered job.
type JobInfo struct {
	Name     string
	Schedule string
	NextRun  time.Time
	Running  bool
	LastRun  *JobResult
}

// Jobs lists registered jobs by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		info := JobInfo{
			Name:     name,
			Schedule: sj.schedule.String(),
			NextRun:  sj.nextRun,
			Running:  sj.running,
		}
		if sj.last != nil {
			last := *sj.last
			info.LastRun = &last
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
