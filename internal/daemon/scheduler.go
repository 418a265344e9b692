package daemon

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single job run
const jobTimeout = 30 * time.Minute

// Job is a named task run on a cron schedule
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name     string
	Schedule string
	NextRun  time.Time
	PrevRun  time.Time
}

// Scheduler runs jobs on cron schedules
type Scheduler struct {
	logger  *log.Logger
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	specs   map[string]*Job
	jobsMu  sync.RWMutex
	ctx     context.Context
	running bool
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *log.Logger) *Scheduler {
	parser := cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	cl := cronLogger{logger: logger}

	return &Scheduler{
		logger: logger,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:  make(map[string]cron.EntryID),
		specs: make(map[string]*Job),
		ctx:   context.Background(),
	}
}

// Start starts the scheduler. Jobs run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if s.running {
		return
	}
	s.ctx = ctx
	s.cron.Start()
	s.running = true

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop stops the scheduler and waits up to 10s for running jobs
func (s *Scheduler) Stop() {
	s.jobsMu.Lock()
	if !s.running {
		s.jobsMu.Unlock()
		return
	}
	s.running = false
	s.jobsMu.Unlock()

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		s.logger.Info().Msg("scheduler stopped")
	case <-time.After(10 * time.Second):
		s.logger.Warn().Msg("scheduler stop timeout, some jobs may still be running")
	}
}

// AddJob schedules job. A job with the same name is replaced.
func (s *Scheduler) AddJob(job *Job) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.Name)
	}

	id, err := s.cron.AddFunc(job.Schedule, func() { s.runJob(job) })
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	if old, exists := s.jobs[job.Name]; exists {
		s.cron.Remove(old)
	}
	s.jobs[job.Name] = id
	s.specs[job.Name] = job

	s.logger.Info().
		Str("job", job.Name).
		Str("schedule", job.Schedule).
		Str("next_run", s.cron.Entry(id).Next.Format(time.RFC3339)).
		Msg("job added")
	return nil
}

// RemoveJob removes a job from the scheduler
func (s *Scheduler) RemoveJob(name string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	id, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	s.cron.Remove(id)
	delete(s.jobs, name)
	delete(s.specs, name)

	s.logger.Info().Str("job", name).Msg("job removed")
	return nil
}

// GetNextRun returns the next run time for a job. It is zero until the
// scheduler has started.
func (s *Scheduler) GetNextRun(name string) (time.Time, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	id, exists := s.jobs[name]
	if !exists {
		return time.Time{}, fmt.Errorf("job %s not found", name)
	}

	return s.cron.Entry(id).Next, nil
}

// ListJobs returns information about all jobs sorted by name
func (s *Scheduler) ListJobs() []JobInfo {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	jobs := make([]JobInfo, 0, len(s.jobs))
	for name, id := range s.jobs {
		entry := s.cron.Entry(id)
		jobs = append(jobs, JobInfo{
			Name:     name,
			Schedule: s.specs[name].Schedule,
			NextRun:  entry.Next,
			PrevRun:  entry.Prev,
		})
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// TriggerJob runs a job immediately and returns its error
func (s *Scheduler) TriggerJob(name string) error {
	s.jobsMu.RLock()
	job, exists := s.specs[name]
	s.jobsMu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	s.logger.Info().Str("job", name).Msg("manually triggering job")
	return s.runJob(job)
}

func (s *Scheduler) runJob(job *Job) error {
	s.jobsMu.RLock()
	parent := s.ctx
	s.jobsMu.RUnlock()

	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	startTime := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(startTime).Round(time.Millisecond).String()

	if err != nil {
		s.logger.Error().Err(err).Str("job", job.Name).Str("elapsed", elapsed).Msg("job failed")
		return err
	}
	s.logger.Info().Str("job", job.Name).Str("elapsed", elapsed).Msg("job completed")
	return nil
}

// cronLogger routes cron's own messages through the structured logger
type cronLogger struct {
	logger *log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("details", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("details", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}
