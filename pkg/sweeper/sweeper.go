package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/lmsauthz/pkg/audit"
	"github.com/platinummonkey/lmsauthz/pkg/observability"
)

// DefaultSchedule runs a sweep every fifteen minutes
const DefaultSchedule = "*/15 * * * *"

// Purger deletes assignments that lapsed at or before now
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// Sweeper runs Purger on a cron schedule
type Sweeper struct {
	purger  Purger
	cron    *cron.Cron
	now     func() time.Time
	timeout time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	audit   audit.Logger
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTimeout bounds a single scheduled sweep
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithAuditLogger records sweeps that removed something or failed
func WithAuditLogger(l audit.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.audit = l
		}
	}
}

// New creates a sweeper for a standard five-field cron schedule or a
// descriptor such as "@every 10m". Overlapping runs are skipped.
func New(purger Purger, schedule string, opts ...Option) (*Sweeper, error) {
	if purger == nil {
		return nil, fmt.Errorf("sweeper: nil purger")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}

	s := &Sweeper{
		purger:  purger,
		now:     time.Now,
		timeout: time.Minute,
		logger:  observability.NopLogger(),
		audit:   audit.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(schedule, s.scheduled); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) scheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	// failures are logged and counted by RunOnce
	_, _ = s.RunOnce(ctx)
}

// RunOnce purges immediately and returns the number of removed assignments
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	n, err := s.purger.PurgeExpired(ctx, now)
	if err != nil {
		s.metrics.StoreError("purge_expired")
		s.logger.WithError(err).Error("expired assignment sweep failed")
		event := audit.NewEvent(audit.EventTypeAssignmentsPurged, audit.EventStatusFailure)
		s.recordAudit(ctx, event.WithError(err))
		return 0, fmt.Errorf("failed to purge expired assignments: %w", err)
	}

	s.metrics.Purged(n)
	if n == 0 {
		s.logger.Debug("no expired assignments to sweep")
		return 0, nil
	}

	event := audit.NewEvent(audit.EventTypeAssignmentsPurged, audit.EventStatusSuccess)
	event.Message = fmt.Sprintf("purged %d expired assignments", n)
	event.Metadata["count"] = n
	event.Metadata["cutoff"] = now.UTC().Format(time.RFC3339Nano)
	s.recordAudit(ctx, event)
	s.logger.WithField("count", n).Info("expired assignments swept")
	return n, nil
}

func (s *Sweeper) recordAudit(ctx context.Context, event *audit.AuditEvent) {
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).Warn("failed to write audit event")
	}
}

// Start begins the schedule in the background
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule. The returned context is done once a running sweep finishes.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Run starts the schedule and blocks until ctx is cancelled and any running sweep finishes
func (s *Sweeper) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	<-s.Stop().Done()
	return nil
}
