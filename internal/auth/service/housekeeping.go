package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/truecredit/authserver/internal/auth/store"
)

// HousekeepingService periodically prunes expired authorization codes and
// token ledger records.
type HousekeepingService struct {
	Codes    store.AuthorizationCodes
	Ledger   store.Tokens
	Logger   *slog.Logger
	Interval time.Duration

	// Retention keeps expired records this long before pruning.
	Retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults interval to one hour and retention to a day.
func NewHousekeepingService(codes store.AuthorizationCodes, ledger store.Tokens, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}

	return &HousekeepingService{
		Codes:     codes,
		Ledger:    ledger,
		Logger:    logger,
		Interval:  interval,
		Retention: 24 * time.Hour,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the worker in the background until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup deletes stale records once. Each deletion is independent.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.Retention)

	codes, err := s.Codes.DeleteStaleAuthorizationCodes(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to delete stale authorization codes", "error", err)
	}

	tokens, err := s.Ledger.DeleteStaleTokens(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to delete stale tokens", "error", err)
	}

	s.Logger.Info("housekeeping cleanup completed",
		"authorization_codes", codes,
		"tokens", tokens,
	)
}
