package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is the work a scheduled job performs.
type JobFunc func(ctx context.Context) error

// Job is a named maintenance task with a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      JobFunc
}

// Execution records one run of a job.
type Execution struct {
	Job       string     `json:"job"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

const (
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusSkipped   = "skipped"
)

// historyLimit bounds the in-memory execution history.
const historyLimit = 200

// Scheduler runs the background maintenance jobs: session sweeps,
// pattern analysis, compliance checks, reports and retention.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.Mutex
	jobs    map[string]*Job
	entries map[string]cron.EntryID
	running map[string]bool
	history []Execution
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		logger:  logger,
		jobs:    make(map[string]*Job),
		entries: make(map[string]cron.EntryID),
		running: make(map[string]bool),
	}
}

// Register adds a job to the schedule. Registering an existing name
// replaces its schedule.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[job.Name]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, job.Name)
	}

	j := job
	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		s.execute(&j)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression for %s: %w", job.Name, err)
	}

	s.jobs[job.Name] = &j
	s.entries[job.Name] = entryID

	s.logger.Info("scheduled job", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// Start begins firing the registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.mu.Lock()
	count := len(s.jobs)
	s.mu.Unlock()
	s.logger.Info("scheduler started", "jobs", count)
}

// Stop halts scheduling. The returned context completes when in-flight
// jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunNow fires a registered job outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job: %s", name)
	}
	go s.execute(job)
	return nil
}

// NextRun reports when a job fires next.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return time.Time{}, false
	}
	return entry.Next, true
}

// Jobs returns the registered job names in sorted order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// History returns the most recent executions, newest first.
func (s *Scheduler) History(limit int) []Execution {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]Execution, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// execute runs one job. A fire that overlaps a still-running instance
// of the same job is recorded as skipped.
func (s *Scheduler) execute(job *Job) {
	s.mu.Lock()
	if s.running[job.Name] {
		s.appendHistoryLocked(Execution{
			Job:       job.Name,
			Status:    statusSkipped,
			StartedAt: time.Now(),
		})
		s.mu.Unlock()
		s.logger.Warn("job still running, skipping fire", "job", job.Name)
		return
	}
	s.running[job.Name] = true
	s.mu.Unlock()

	started := time.Now()
	s.logger.Info("executing job", "job", job.Name)

	err := job.Run(context.Background())
	ended := time.Now()

	exec := Execution{
		Job:       job.Name,
		StartedAt: started,
		EndedAt:   &ended,
	}
	if err != nil {
		exec.Status = statusFailed
		exec.Error = err.Error()
		s.logger.Error("job execution failed",
			"job", job.Name,
			"error", err,
			"duration", ended.Sub(started))
	} else {
		exec.Status = statusCompleted
		s.logger.Info("job execution completed",
			"job", job.Name,
			"duration", ended.Sub(started))
	}

	s.mu.Lock()
	s.running[job.Name] = false
	s.appendHistoryLocked(exec)
	s.mu.Unlock()
}

func (s *Scheduler) appendHistoryLocked(exec Execution) {
	s.history = append(s.history, exec)
	if over := len(s.history) - historyLimit; over > 0 {
		s.history = s.history[over:]
	}
}
