package identity

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSweepSchedule runs the expiry sweep every minute
const DefaultSweepSchedule = "@every 1m"

// Sweeper periodically expires stale challenges
type Sweeper struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	logger   *zap.Logger
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a sweeper for service
func NewSweeper(service *Service, schedule string, logger *zap.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		cron:     cron.New(),
		service:  service,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the sweep job and starts the scheduler
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper already running")
	}
	if _, err := s.cron.AddFunc(s.schedule, s.Run); err != nil {
		return fmt.Errorf("failed to schedule challenge sweep: %w", err)
	}

	s.logger.Info("Starting challenge sweeper", zap.String("schedule", s.schedule))
	s.cron.Start()
	s.running = true
	return nil
}

// Run performs one sweep
func (s *Sweeper) Run() {
	if n := s.service.SweepExpired(); n > 0 {
		s.logger.Info("Expired identity challenges", zap.Int("count", n))
	}
}

// Stop stops the scheduler and waits for a running sweep
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.logger.Info("Stopping challenge sweeper")
	<-s.cron.Stop().Done()
	s.running = false
}
