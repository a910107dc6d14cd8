package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/apperrors"
	"campaign-mailer-go/internal/bounce"
	"campaign-mailer-go/internal/config"
	"campaign-mailer-go/internal/metrics"
	"campaign-mailer-go/internal/model"
	"campaign-mailer-go/internal/service"
)

// DueLister finds Scheduled campaigns whose time has come and retires the
// ones that can never be sent
type DueLister interface {
	DueScheduled(ctx context.Context, now time.Time) ([]model.Campaign, error)
	FailScheduled(ctx context.Context, id uint) (bool, error)
}

// Sender sends one campaign
type Sender interface {
	SendCampaign(ctx context.Context, id uint) (*service.SendResult, error)
}

// Sweeper applies bounce notifications
type Sweeper interface {
	Sweep(ctx context.Context) (*bounce.SweepResult, error)
}

// RunReport summarizes one scheduler run
type RunReport struct {
	StartedAt time.Time           `json:"startedAt"`
	Due       int                 `json:"due"`
	Sent      []uint              `json:"sent"`
	Failed    map[uint]string     `json:"failed,omitempty"`
	Retired   []uint              `json:"retired,omitempty"`
	Bounces   *bounce.SweepResult `json:"bounces,omitempty"`
	Skipped   bool                `json:"skipped,omitempty"`
}

// Scheduler periodically sends due scheduled campaigns and sweeps bounces
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.SchedulerConfig
	campaigns DueLister
	sender    Sender
	sweeper   Sweeper
	metrics   *metrics.Metrics
	now       func() time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	lastRun   time.Time
	mu        sync.RWMutex
	runMu     sync.Mutex
}

// New creates a scheduler. sweeper may be nil when bounce handling is off.
func New(cfg *config.SchedulerConfig, campaigns DueLister, sender Sender, sweeper Sweeper, m *metrics.Metrics) *Scheduler {
	if m == nil {
		m = metrics.NewNopMetrics()
	}
	return &Scheduler{
		config:    cfg,
		campaigns: campaigns,
		sender:    sender,
		sweeper:   sweeper,
		metrics:   m,
		now:       time.Now,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if s.config.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %d", s.config.IntervalMinutes)
	}

	// a stopped cron cannot drop its old entry, so every start gets a fresh one
	c := cron.New(cron.WithSeconds())
	schedule := fmt.Sprintf("0 */%d * * * *", s.config.IntervalMinutes)

	entryID, err := c.AddFunc(schedule, s.tick)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = c
	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) tick() {
	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping run")
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	if _, err := s.RunOnce(ctx); err != nil {
		logrus.Errorf("Scheduled run failed: %v", err)
	}
}

// RunOnce sends every due campaign and then sweeps bounces. Runs never
// overlap; a run requested while another is in progress is skipped.
func (s *Scheduler) RunOnce(ctx context.Context) (*RunReport, error) {
	report := &RunReport{StartedAt: s.now(), Sent: []uint{}}
	if !s.runMu.TryLock() {
		logrus.Info("Scheduler run already in progress, skipping")
		report.Skipped = true
		return report, nil
	}
	defer s.runMu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	s.metrics.ScheduledRuns.Inc()
	s.mu.Lock()
	s.lastRun = report.StartedAt
	s.mu.Unlock()

	logrus.Info("Starting scheduled campaign run")

	due, err := s.campaigns.DueScheduled(ctx, report.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to find due campaigns: %w", err)
	}
	report.Due = len(due)

	for _, c := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		log := logrus.WithFields(logrus.Fields{"campaign_id": c.ID, "name": c.Name})
		res, err := s.sender.SendCampaign(ctx, c.ID)
		if err != nil {
			log.Errorf("Failed to send scheduled campaign: %v", err)
			if report.Failed == nil {
				report.Failed = make(map[uint]string)
			}
			report.Failed[c.ID] = err.Error()
			if apperrors.IsPermanent(err) && s.retire(ctx, c.ID, log) {
				report.Retired = append(report.Retired, c.ID)
			}
			continue
		}
		log.Info(res.Message)
		report.Sent = append(report.Sent, c.ID)
	}

	if s.sweeper != nil && s.config.BounceSweep {
		bounces, err := s.sweeper.Sweep(ctx)
		if err != nil {
			logrus.Errorf("Bounce sweep failed: %v", err)
		}
		report.Bounces = bounces
	}

	logrus.Infof("Scheduled run completed in %v", time.Since(report.StartedAt))
	return report, nil
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}

	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the start time of the most recent run, manual or scheduled
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// Wait waits for in-flight runs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// retire moves a due campaign whose send can never succeed to Failed so later
// runs stop retrying it
func (s *Scheduler) retire(ctx context.Context, id uint, log *logrus.Entry) bool {
	retired, err := s.campaigns.FailScheduled(context.WithoutCancel(ctx), id)
	if err != nil {
		log.Errorf("Failed to retire scheduled campaign: %v", err)
		return false
	}
	if retired {
		log.Warn("Scheduled campaign can never be sent, marked Failed")
	}
	return retired
}
