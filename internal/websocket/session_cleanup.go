package websocket

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper closes sessions that expired or went idle
type Reaper interface {
	ReapInactive(ctx context.Context) (int, error)
}

// SessionCleanupService handles background tasks for session management
type SessionCleanupService struct {
	reaper   Reaper
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopped  chan struct{}
}

// NewSessionCleanupService creates a cleanup service that runs every interval
func NewSessionCleanupService(reaper Reaper, interval time.Duration, logger *zap.Logger) *SessionCleanupService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionCleanupService{
		reaper:   reaper,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started", zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	<-s.stopped
	s.logger.Info("Session cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup closes inactive sessions
func (s *SessionCleanupService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	reaped, err := s.reaper.ReapInactive(ctx)
	if err != nil {
		s.logger.Error("Failed to reap sessions", zap.Error(err))
		return
	}
	if reaped > 0 {
		s.logger.Info("Session cleanup completed", zap.Int("reaped", reaped))
	}
}
