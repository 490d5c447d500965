// Package scheduler runs the periodic maintenance the engine itself stays
// out of: pruning observation history past the retention window and
// sweeping the latest matrices for rank drops worth alerting on.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seotools/rankmatrix/internal/store"
	"github.com/seotools/rankmatrix/pkg/alert"
	"github.com/seotools/rankmatrix/pkg/matrix"
	"github.com/seotools/rankmatrix/pkg/view"
)

// Scheduler runs periodic retention pruning and drop alerts.
type Scheduler struct {
	store         store.Store
	builder       *matrix.Builder
	alertMgr      *alert.Manager
	logger        *zap.Logger
	sweepInterval time.Duration
	keepDays      int
	dropThreshold int
}

// New creates a new scheduler.
func New(
	s store.Store,
	builder *matrix.Builder,
	alertMgr *alert.Manager,
	logger *zap.Logger,
	sweepInterval time.Duration,
	keepDays, dropThreshold int,
) *Scheduler {
	if sweepInterval == 0 {
		sweepInterval = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:         s,
		builder:       builder,
		alertMgr:      alertMgr,
		logger:        logger,
		sweepInterval: sweepInterval,
		keepDays:      keepDays,
		dropThreshold: dropThreshold,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	// Run immediately on start.
	s.sweep(ctx)
	s.logger.Info("scheduler running", zap.Duration("interval", s.sweepInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	s.prune(ctx)
	s.checkDrops(ctx)
}

func (s *Scheduler) prune(ctx context.Context) {
	if s.keepDays <= 0 {
		return
	}
	cutoff := store.Day(time.Now()).AddDate(0, 0, -s.keepDays)
	removed, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention prune failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("pruned observations",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff))
	}
}

func (s *Scheduler) checkDrops(ctx context.Context) {
	if s.dropThreshold <= 0 || s.alertMgr == nil || !s.alertMgr.HasNotifiers() {
		return
	}

	countries, err := s.store.Countries(ctx)
	if err != nil {
		s.logger.Error("list countries failed", zap.Error(err))
		return
	}

	today := store.Day(time.Now())
	for _, country := range countries {
		drops, err := s.dropsFor(ctx, country, today)
		if err != nil {
			s.logger.Error("drop sweep failed", zap.String("country", country), zap.Error(err))
			continue
		}
		if len(drops) == 0 {
			continue
		}

		n := &alert.Notification{
			Title: fmt.Sprintf("%d ranking drops in %s", len(drops), country),
			Body: fmt.Sprintf("Keywords lost %d or more positions since their previous check.",
				s.dropThreshold),
			Country: country,
			Date:    today,
			Drops:   drops,
		}
		if err := s.alertMgr.Broadcast(ctx, n); err != nil {
			s.logger.Error("drop alert failed", zap.String("country", country), zap.Error(err))
			continue
		}
		s.logger.Info("drop alert sent",
			zap.String("country", country),
			zap.Int("drops", len(drops)))
	}
}

// dropsFor builds the current matrix for one country and collects every
// cell that lost at least dropThreshold positions, worst first.
func (s *Scheduler) dropsFor(ctx context.Context, country string, date time.Time) ([]alert.Drop, error) {
	subjects, err := s.store.SubjectsForCountry(ctx, country)
	if err != nil {
		return nil, err
	}

	m, err := s.builder.Build(ctx, date, country, subjects)
	if err != nil {
		return nil, err
	}

	var drops []alert.Drop
	for _, row := range view.Apply(m, subjects, view.FilterDrops, view.SortBiggestDrops) {
		for _, id := range subjects {
			cell, ok := row.Cells[id]
			if !ok || cell.Delta == nil || *cell.Delta > -s.dropThreshold {
				continue
			}
			drops = append(drops, alert.Drop{
				Keyword:   row.Keyword,
				Country:   row.Country,
				SubjectID: id,
				From:      *cell.Previous,
				To:        *cell.Current,
				Delta:     *cell.Delta,
			})
		}
	}
	return drops, nil
}
