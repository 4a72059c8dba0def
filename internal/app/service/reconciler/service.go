package reconciler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/glasswing-io/tiergate/internal/app/service/subscription"
	"github.com/glasswing-io/tiergate/internal/models"
	"github.com/glasswing-io/tiergate/pkg/config"
	"github.com/glasswing-io/tiergate/pkg/types"
)

// Config carries the knobs of one reconciler run loop.
type Config struct {
	Interval       time.Duration
	SessionTimeout time.Duration
	GraceWindow    time.Duration
	Verbose        bool
}

// Service is the periodic reconciliation job: it expires stale checkout
// sessions, advances users through grace into expiry, and applies overdue
// pending plan changes as a backstop for missed renewal webhooks. It is a
// process-wide singleton by construction: Start while running is a no-op.
type Service struct {
	cfg  *config.Config
	db   *gorm.DB
	subs *subscription.Service
	log  *zap.SugaredLogger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	runCfg  Config
}

func NewService(cfg *config.Config, db *gorm.DB, subs *subscription.Service, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, subs: subs, log: log}
}

// DefaultConfig builds the run configuration from application config.
func (s *Service) DefaultConfig() Config {
	return Config{
		Interval:       s.cfg.ReconcileInterval(),
		SessionTimeout: s.cfg.SessionTimeout(),
		GraceWindow:    s.cfg.GraceWindow(),
		Verbose:        s.cfg.Reconciler.Verbose,
	}
}

// Start launches the run loop: one immediate sweep, then one per interval.
// Starting an already-running service logs and returns.
func (s *Service) Start(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Infow("reconciler_already_running")
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	s.running = true
	s.runCfg = cfg
	s.stop = make(chan struct{})

	go s.loop(cfg, s.stop)
	s.log.Infow("reconciler_started", "interval", cfg.Interval.String())
}

// Stop prevents future ticks. An in-flight sweep is not interrupted.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
	s.log.Infow("reconciler_stopped")
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) loop(cfg Config, stop chan struct{}) {
	s.RunOnce(context.Background(), cfg)
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.RunOnce(context.Background(), cfg)
		}
	}
}

// RunOnce performs the three sweeps. Each sweep is independent; a failing
// one does not stop the others.
func (s *Service) RunOnce(ctx context.Context, cfg Config) {
	start := time.Now()

	expired, err := s.ExpireStaleSessions(ctx, cfg.SessionTimeout)
	if err != nil {
		s.log.Errorw("reconciler_session_sweep_failed", "error", err.Error())
	}

	graced, lapsed, err := s.SweepGraceAndExpiry(ctx, cfg.GraceWindow)
	if err != nil {
		s.log.Errorw("reconciler_grace_sweep_failed", "error", err.Error())
	}

	applied, err := s.ApplyDuePendingChanges(ctx)
	if err != nil {
		s.log.Errorw("reconciler_pending_sweep_failed", "error", err.Error())
	}

	if cfg.Verbose || expired+graced+lapsed+applied > 0 {
		s.log.Infow("reconciler_run",
			"sessions_expired", expired,
			"users_graced", graced,
			"users_expired", lapsed,
			"pending_applied", applied,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// ExpireStaleSessions moves pending sessions older than the timeout to
// EXPIRED.
func (s *Service) ExpireStaleSessions(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout)
	res := s.db.WithContext(ctx).Model(&models.CheckoutSession{}).
		Where("status = ? AND created_date < ?", types.SessionStatusPending, cutoff).
		Update("status", types.SessionStatusExpired)
	return res.RowsAffected, res.Error
}

// SweepGraceAndExpiry advances users past their tier expiry: within the
// grace window they move to GRACE, beyond it to EXPIRED. Users already
// ACTIVE or EXPIRED are never touched. Both are single filtered updates,
// not per-row loops.
func (s *Service) SweepGraceAndExpiry(ctx context.Context, graceWindow time.Duration) (graced, lapsed int64, err error) {
	now := time.Now()
	untouched := []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusExpired}

	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("tier_expires_at < ? AND tier_expires_at >= ? AND subscription_status NOT IN ? AND subscription_status <> ?",
			now, now.Add(-graceWindow), untouched, types.SubscriptionStatusGrace).
		Update("subscription_status", types.SubscriptionStatusGrace)
	if res.Error != nil {
		return 0, 0, res.Error
	}
	graced = res.RowsAffected

	res = s.db.WithContext(ctx).Model(&models.User{}).
		Where("tier_expires_at < ? AND subscription_status NOT IN ?",
			now.Add(-graceWindow), untouched).
		Update("subscription_status", types.SubscriptionStatusExpired)
	if res.Error != nil {
		return graced, 0, res.Error
	}
	return graced, res.RowsAffected, nil
}

// ApplyDuePendingChanges applies pending tier changes whose effective date
// has passed, a safety net for missed renewal webhooks. Per-user failures
// are logged and skipped.
func (s *Service) ApplyDuePendingChanges(ctx context.Context) (int64, error) {
	var users []*models.User
	err := s.db.WithContext(ctx).
		Where("pending_tier IS NOT NULL AND plan_change_status = ? AND pending_tier_effective_date <= ?",
			types.PlanChangeStatusCompleted, time.Now()).
		Find(&users).Error
	if err != nil {
		return 0, err
	}

	var applied int64
	for _, user := range users {
		ok, err := s.subs.ApplyPendingChangeIfDue(ctx, user, time.Now())
		if err != nil {
			s.log.Errorw("reconciler_pending_apply_failed", "user_id", user.ID, "error", err.Error())
			continue
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}
