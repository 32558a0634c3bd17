// Package scheduler runs named periodic jobs on cron specs. A job never
// overlaps itself, and with a Lease it runs on at most one replica at a time.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"

	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/common/metrics"
	"habit-tracker/internal/common/observability"
)

type Job func(ctx context.Context) error

// Lease grants exclusive execution of a named job across processes.
type Lease interface {
	// Acquire reports ok=false when another holder owns name. release must be
	// called once the run ends.
	Acquire(ctx context.Context, name string) (release func(), ok bool, err error)
}

type runState struct {
	mu      sync.Mutex
	running bool
}

func (s *runState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *runState) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

type jobDef struct {
	name    string
	spec    string
	timeout time.Duration
	run     Job
	state   runState
	entryID cron.EntryID
}

type Runner struct {
	mu     sync.Mutex
	c      *cron.Cron
	parser cron.Parser
	jobs   map[string]*jobDef
	lease  Lease
	obs    *observability.Observability
	logger logger.Logger
}

type Option func(*Runner)

func WithLease(l Lease) Option {
	return func(r *Runner) { r.lease = l }
}

func WithObservability(o *observability.Observability) Option {
	return func(r *Runner) { r.obs = o }
}

func NewRunner(log logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   make(map[string]*jobDef),
		logger: log.WithFields(map[string]interface{}{"component": "scheduler"}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.c = cron.New(
		cron.WithParser(r.parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(logger.CronLogger{L: r.logger})),
	)
	return r
}

// AddJob schedules run under spec. A zero timeout leaves runs unbounded.
func (r *Runner) AddJob(name, spec string, timeout time.Duration, run Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	def := &jobDef{name: name, spec: spec, timeout: timeout, run: run}
	id, err := r.c.AddFunc(spec, func() {
		_, _ = r.execute(context.Background(), def)
	})
	if err != nil {
		return fmt.Errorf("schedule %q with spec %q: %w", name, spec, err)
	}
	def.entryID = id
	r.jobs[name] = def

	r.logger.Info("Job scheduled", map[string]interface{}{
		"job":  name,
		"spec": spec,
	})
	return nil
}

// RunNow executes name immediately, under the same overlap and lease rules
// as a scheduled run. It reports whether the job actually ran.
func (r *Runner) RunNow(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	def, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("job %q not registered", name)
	}
	return r.execute(ctx, def)
}

// Next returns the next scheduled time of name, or zero before Start.
func (r *Runner) Next(name string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.jobs[name]
	if !ok {
		return time.Time{}
	}
	return r.c.Entry(def.entryID).Next
}

func (r *Runner) Start() {
	r.c.Start()
	r.logger.Info("Scheduler started", map[string]interface{}{"jobs": len(r.jobs)})
}

// Stop halts scheduling and waits for in-flight runs, or for ctx.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.c.Stop().Done()
	select {
	case <-done:
		r.logger.Info("Scheduler stopped", nil)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) execute(ctx context.Context, def *jobDef) (bool, error) {
	if !def.state.tryAcquire() {
		metrics.SchedulerRunsSkipped.WithLabelValues(def.name).Inc()
		r.logger.Debug("Job skipped, previous run still active", map[string]interface{}{"job": def.name})
		return false, nil
	}
	defer def.state.release()

	if def.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, def.timeout)
		defer cancel()
	}

	if r.lease != nil {
		release, ok, err := r.lease.Acquire(ctx, def.name)
		if err != nil {
			r.logger.WithError(err).Warn("Job skipped, lease unavailable", map[string]interface{}{"job": def.name})
			metrics.SchedulerRunsSkipped.WithLabelValues(def.name).Inc()
			return false, err
		}
		if !ok {
			r.logger.Debug("Job skipped, held by another replica", map[string]interface{}{"job": def.name})
			metrics.SchedulerRunsSkipped.WithLabelValues(def.name).Inc()
			return false, nil
		}
		defer release()
	}

	end := func(error) {}
	if r.obs != nil {
		ctx, end = r.obs.StartSpan(ctx, "scheduler."+def.name, attribute.String("job", def.name))
	}

	start := time.Now()
	err := def.run(ctx)
	elapsed := time.Since(start)
	end(err)

	status := "success"
	if err != nil {
		status = "failed"
		r.logger.WithError(err).Error("Job failed", map[string]interface{}{
			"job":      def.name,
			"duration": elapsed.String(),
		})
	}
	if r.obs != nil {
		r.obs.RecordJobRun(ctx, def.name, status)
		r.obs.RecordJobDuration(ctx, def.name, elapsed, status)
	}

	return true, err
}
