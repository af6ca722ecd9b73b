// Package sched drives periodic adapter runs from a YAML job file. Each job
// names a registered source; its cadence defaults to the adapter's own
// schedule when the file leaves it unset.
package sched

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/venwatch/venwatch/internal/adapter"
)

// Job is one scheduled adapter run.
type Job struct {
	Name         string `yaml:"name"`
	Source       string `yaml:"source"`
	EverySecs    int    `yaml:"every_secs"`    // 0 uses the adapter's frequency
	LookbackSecs int    `yaml:"lookback_secs"` // 0 uses the adapter's lookback
	Enabled      bool   `yaml:"enabled"`
}

// Config is the scheduler job file.
type Config struct {
	Jobs []Job `yaml:"jobs"`
	// TickSecs is the scheduling resolution. Default 30s.
	TickSecs int `yaml:"tick_secs"`
}

// LoadConfig reads and validates the job file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse job file: %w", err)
	}
	if cfg.TickSecs <= 0 {
		cfg.TickSecs = 30
	}
	seen := make(map[string]bool)
	for _, j := range cfg.Jobs {
		if j.Name == "" || j.Source == "" {
			return nil, fmt.Errorf("job needs name and source, got %+v", j)
		}
		if seen[j.Name] {
			return nil, fmt.Errorf("duplicate job name %q", j.Name)
		}
		seen[j.Name] = true
	}
	return &cfg, nil
}

// JobResult records one job execution.
type JobResult struct {
	Job       string        `json:"job"`
	Source    string        `json:"source"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Events    int           `json:"events"`
	DryRun    bool          `json:"dry_run"`
	Err       error         `json:"-"`
}

// Scheduler runs jobs against the adapter registry.
type Scheduler struct {
	cfg      *Config
	registry *adapter.Registry
	dryRun   bool

	mu      sync.Mutex
	lastRun map[string]time.Time
	nowFn   func() time.Time
}

// New builds a scheduler. In dry-run mode jobs resolve and log their window
// but never call the adapter, so no store or queue is touched.
func New(cfg *Config, registry *adapter.Registry, dryRun bool) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		registry: registry,
		dryRun:   dryRun,
		lastRun:  make(map[string]time.Time),
		nowFn:    time.Now,
	}
}

// interval resolves a job's cadence, falling back to the adapter schedule.
func (s *Scheduler) interval(j Job) (time.Duration, error) {
	if j.EverySecs > 0 {
		return time.Duration(j.EverySecs) * time.Second, nil
	}
	a, ok := s.registry.Get(j.Source)
	if !ok {
		return 0, fmt.Errorf("job %s: unknown source %q", j.Name, j.Source)
	}
	return a.Schedule().Frequency, nil
}

func (s *Scheduler) lookback(j Job) time.Duration {
	if j.LookbackSecs > 0 {
		return time.Duration(j.LookbackSecs) * time.Second
	}
	if a, ok := s.registry.Get(j.Source); ok {
		return a.Schedule().DefaultLookback
	}
	return 0
}

// RunOnce executes every enabled job whose interval has elapsed. Returns
// the results of jobs that ran; single-job failures never stop the sweep.
func (s *Scheduler) RunOnce(ctx context.Context) []JobResult {
	now := s.nowFn().UTC()
	var results []JobResult
	for _, j := range s.cfg.Jobs {
		if !j.Enabled {
			continue
		}
		iv, err := s.interval(j)
		if err != nil {
			log.Warn().Err(err).Str("job", j.Name).Msg("job skipped")
			results = append(results, JobResult{Job: j.Name, Source: j.Source, StartedAt: now, Err: err})
			continue
		}
		s.mu.Lock()
		last := s.lastRun[j.Name]
		due := last.IsZero() || now.Sub(last) >= iv
		if due {
			s.lastRun[j.Name] = now
		}
		s.mu.Unlock()
		if !due {
			continue
		}
		results = append(results, s.runJob(ctx, j, now))
	}
	return results
}

// RunJob executes one named job immediately, ignoring its interval.
func (s *Scheduler) RunJob(ctx context.Context, name string) (*JobResult, error) {
	for _, j := range s.cfg.Jobs {
		if j.Name != name {
			continue
		}
		res := s.runJob(ctx, j, s.nowFn().UTC())
		return &res, res.Err
	}
	return nil, fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) runJob(ctx context.Context, j Job, now time.Time) JobResult {
	start := now.Add(-s.lookback(j))
	res := JobResult{Job: j.Name, Source: j.Source, StartedAt: now, DryRun: s.dryRun}

	if s.dryRun {
		log.Info().Str("job", j.Name).Str("source", j.Source).
			Time("window_start", start).Time("window_end", now).
			Msg("dry run, adapter not invoked")
		return res
	}

	rr, err := s.registry.Run(ctx, j.Source, start, now)
	res.Duration = time.Since(now)
	if err != nil {
		log.Warn().Err(err).Str("job", j.Name).Msg("job run failed")
		res.Err = err
		return res
	}
	res.Events = rr.Events
	log.Info().Str("job", j.Name).Int("events", rr.Events).Dur("took", rr.Duration).Msg("job completed")
	return res
}

// Start loops RunOnce at the configured tick until the context ends.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Int("jobs", len(s.cfg.Jobs)).Bool("dry_run", s.dryRun).Msg("scheduler starting")
	ticker := time.NewTicker(time.Duration(s.cfg.TickSecs) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
