package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"crenors/guildbot/internal/logging"
	"crenors/guildbot/internal/metrics"
)

// Job is one periodic sweep
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a plain function to Job
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (f JobFunc) Name() string                  { return f.JobName }
func (f JobFunc) Run(ctx context.Context) error { return f.Fn(ctx) }

// JobStatus is what the ops API reports per job
type JobStatus struct {
	Name      string     `json:"name"`
	Interval  string     `json:"interval"`
	Runs      int64      `json:"runs"`
	Failures  int64      `json:"failures"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

type entry struct {
	job      Job
	interval time.Duration

	// running guards against a manual trigger overlapping a tick
	running sync.Mutex

	mu        sync.Mutex
	runs      int64
	failures  int64
	lastRun   time.Time
	lastError string
}

// Scheduler fires every registered job on its own ticker. A tick that
// arrives while the previous run is still going is dropped, never queued.
type Scheduler struct {
	metrics *metrics.MetricsRegistry

	mu      sync.Mutex
	entries map[string]*entry
	started bool
}

func NewScheduler(m *metrics.MetricsRegistry) *Scheduler {
	return &Scheduler{metrics: m, entries: make(map[string]*entry)}
}

// Every registers job to run each interval once Start is called. Registering
// after Start or twice under the same name is an error.
func (s *Scheduler) Every(interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("job %s: scheduler already started", job.Name())
	}
	if _, dup := s.entries[job.Name()]; dup {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	s.entries[job.Name()] = &entry{job: job, interval: interval}
	return nil
}

// Start launches one goroutine per job. They stop when ctx is cancelled;
// the returned WaitGroup is done once all of them returned.
func (s *Scheduler) Start(ctx context.Context) *sync.WaitGroup {
	s.mu.Lock()
	s.started = true
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			s.loop(ctx, e)
		}(e)
	}
	return &wg
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	logging.Info("Scheduled job started", "job", e.job.Name(), "interval", e.interval.String())
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !e.running.TryLock() {
				logging.Warn("Skipping tick, previous run still in progress", "job", e.job.Name())
				continue
			}
			s.execute(ctx, e)
			e.running.Unlock()
		case <-ctx.Done():
			logging.Info("Scheduled job shutting down", "job", e.job.Name())
			return
		}
	}
}

// RunNow runs the named job once, waiting for an in-flight tick to finish first.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	e.running.Lock()
	defer e.running.Unlock()
	return s.execute(ctx, e)
}

func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	name := e.job.Name()
	start := time.Now()
	err := e.job.Run(ctx)
	s.metrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	e.mu.Lock()
	e.runs++
	e.lastRun = start
	e.lastError = ""
	if err != nil {
		e.failures++
		e.lastError = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		s.metrics.JobErrorsTotal.WithLabelValues(name).Inc()
		logging.Error("Scheduled job failed", "job", name, "duration_ms", time.Since(start).Milliseconds(), "error", err)
	}
	return err
}

// Status lists every job sorted by name
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		st := JobStatus{
			Name:      e.job.Name(),
			Interval:  e.interval.String(),
			Runs:      e.runs,
			Failures:  e.failures,
			LastError: e.lastError,
		}
		if !e.lastRun.IsZero() {
			at := e.lastRun
			st.LastRun = &at
		}
		e.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
