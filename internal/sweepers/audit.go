package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/partsport/offer-service/internal/audit"
)

// AuditSweeper periodically trims the reconciliation audit trail down to the
// configured retention window.
type AuditSweeper struct {
	store     *audit.Store
	logger    *zerolog.Logger
	interval  time.Duration
	retention time.Duration
	stopChan  chan struct{}
}

// NewAuditSweeper creates a sweeper for audit trail maintenance.
func NewAuditSweeper(store *audit.Store, logger *zerolog.Logger, interval, retention time.Duration) *AuditSweeper {
	return &AuditSweeper{
		store:     store,
		logger:    logger,
		interval:  interval,
		retention: retention,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the periodic retention sweep
func (s *AuditSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("retention", s.retention).
		Msg("Starting audit sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Audit sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Audit sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Failed to trim audit trail")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *AuditSweeper) Stop() {
	close(s.stopChan)
}

// Sweep deletes audit records past the retention cutoff.
func (s *AuditSweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		s.logger.Info().
			Int("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Trimmed audit trail")
	}
	return nil
}
