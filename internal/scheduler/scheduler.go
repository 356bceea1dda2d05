// Package scheduler runs named jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ryosukesatoh/autumn/internal/logger"
)

// Job is a named handler fired on a standard 5-field cron spec.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Entry describes a registered job.
type Entry struct {
	Name string
	Spec string
	Next time.Time
}

// Scheduler owns the cron instance and the context handed to jobs. A job that
// is still running when its next trigger fires is skipped for that trigger.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]registered

	ctx    context.Context
	cancel context.CancelFunc
}

type registered struct {
	job Job
	id  cron.EntryID
}

// New creates a Scheduler that fires jobs in loc and logs through l.
func New(loc *time.Location, l *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if l == nil {
		l = zap.NewNop()
	}
	cl := logger.Cron(l)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: l,
		jobs:   make(map[string]registered),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("scheduler: job %q already registered", job.Name)
	}
	id, err := s.cron.AddFunc(job.Spec, func() { s.execute(s.ctx, job) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for job %q: %w", job.Spec, job.Name, err)
	}
	s.jobs[job.Name] = registered{job: job, id: id}
	s.logger.Info("Scheduled job", zap.String("job", job.Name), zap.String("spec", job.Spec))
	return nil
}

// RunNow runs the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	reg, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.execute(ctx, reg.job)
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	log := s.logger.With(zap.String("job", job.Name))
	log.Info("Job started")
	start := time.Now()

	err := job.Run(ctx)
	if err != nil {
		log.Error("Job failed", zap.Duration("took", time.Since(start)), zap.Error(err))
		return err
	}
	log.Info("Job finished", zap.Duration("took", time.Since(start)))
	return nil
}

// Entries lists the registered jobs sorted by name. Next is zero until the
// scheduler has been started.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.jobs))
	for name, reg := range s.jobs {
		out = append(out, Entry{
			Name: name,
			Spec: reg.job.Spec,
			Next: s.cron.Entry(reg.id).Next,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels the job context and waits for running jobs to return or for
// ctx to end, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: jobs still running at shutdown: %w", ctx.Err())
	}
}
