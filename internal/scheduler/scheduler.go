// Package scheduler runs the periodic sweeps of the helpdesk: approval expiry and SLA breach scans.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled sweep. It returns how many items it processed.
type Job func(ctx context.Context) (int, error)

// Sweeper is the slice of the ticket service the built-in jobs call.
type Sweeper interface {
	HandleExpiredApprovals(ctx context.Context) (int, error)
	ScanSLABreaches(ctx context.Context) (int, error)
}

// Built-in job names.
const (
	JobApprovalExpiry = "approval_expiry"
	JobSLABreach      = "sla_breach"
)

type options struct {
	logger   *zap.Logger
	cron     *cron.Cron
	location *time.Location
	timeout  time.Duration
}

// Option applies configuration to the scheduler service.
type Option func(*options)

// WithLogger injects the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCron supplies a preconfigured cron instance.
func WithCron(c *cron.Cron) Option {
	return func(o *options) {
		o.cron = c
	}
}

// WithLocation sets the timezone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// WithJobTimeout bounds a single job run.
func WithJobTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Service owns the cron loop and the registered jobs.
type Service struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.RWMutex
	jobs    map[string]Job
	entries map[string]cron.EntryID
	rootCtx context.Context

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewService builds a scheduler. Overlapping runs of the same job are skipped.
func NewService(opts ...Option) *Service {
	o := options{location: time.UTC, timeout: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.cron == nil {
		o.cron = cron.New(
			cron.WithLocation(o.location),
			cron.WithChain(cron.Recover(cronLogger{o.logger}), cron.SkipIfStillRunning(cronLogger{o.logger})),
		)
	}
	return &Service{
		cron:    o.cron,
		logger:  o.logger,
		timeout: o.timeout,
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		rootCtx: context.Background(),
	}
}

// Register schedules job under name using a standard cron spec or descriptor such as "@every 5m".
func (s *Service) Register(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %s already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.execute(name) })
	if err != nil {
		return fmt.Errorf("scheduler: schedule %s (%q): %w", name, spec, err)
	}
	s.jobs[name] = job
	s.entries[name] = id
	return nil
}

// RegisterSweeps schedules the approval expiry and SLA breach jobs.
func (s *Service) RegisterSweeps(sweeper Sweeper, approvalSpec, slaSpec string) error {
	if err := s.Register(JobApprovalExpiry, approvalSpec, sweeper.HandleExpiredApprovals); err != nil {
		return err
	}
	return s.Register(JobSLABreach, slaSpec, sweeper.ScanSLABreaches)
}

// Jobs lists registered job names.
func (s *Service) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next reports when the named job runs next. It is zero before Run starts the loop.
func (s *Service) Next(name string) time.Time {
	s.mu.RLock()
	id, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for running jobs.
func (s *Service) Run(ctx context.Context) error {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.rootCtx = ctx
		s.mu.Unlock()
		s.cron.Start()
		s.logger.Info("scheduler started", zap.Strings("jobs", s.Jobs()))
	})

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop halts the loop and waits for in-flight jobs.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		s.logger.Info("scheduler stopped")
	})
}

// RunNow executes the named job synchronously.
func (s *Service) RunNow(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("scheduler: unknown job %s", name)
	}
	return s.run(ctx, name, job)
}

func (s *Service) execute(name string) {
	s.mu.RLock()
	job := s.jobs[name]
	parent := s.rootCtx
	s.mu.RUnlock()
	if job == nil {
		return
	}
	_, _ = s.run(parent, name, job)
}

func (s *Service) run(parent context.Context, name string, job Job) (int, error) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	processed, err := job(ctx)
	fields := []zap.Field{
		zap.String("job", name),
		zap.Int("processed", processed),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Error("scheduled job failed", append(fields, zap.Error(err))...)
		return processed, err
	}
	if processed > 0 {
		s.logger.Info("scheduled job finished", fields...)
	} else {
		s.logger.Debug("scheduled job finished", fields...)
	}
	return processed, nil
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
