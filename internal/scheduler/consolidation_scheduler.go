package scheduler

import (
	"context"
	"time"

	"github.com/kartshart/kartshart-backend/internal/app/service"
	"github.com/kartshart/kartshart-backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// sweepTimeout bounds a single consolidation run.
const sweepTimeout = 10 * time.Minute

// ConsolidationScheduler periodically folds duplicate active carts.
type ConsolidationScheduler struct {
	cron          *cron.Cron
	spec          string
	consolidation service.ConsolidationService
}

// NewConsolidationScheduler creates a scheduler for spec. An empty spec
// disables the sweep.
func NewConsolidationScheduler(consolidation service.ConsolidationService, spec string) *ConsolidationScheduler {
	return &ConsolidationScheduler{
		cron:          cron.New(),
		spec:          spec,
		consolidation: consolidation,
	}
}

// Start registers the sweep and starts the cron loop.
func (s *ConsolidationScheduler) Start() error {
	if s.spec == "" {
		logger.Info("Consolidation sweep disabled")
		return nil
	}

	// SkipIfStillRunning keeps sweeps from overlapping.
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(s.Run))
	if _, err := s.cron.AddJob(s.spec, job); err != nil {
		logger.Error("Failed to add cron job for cart consolidation", err, map[string]interface{}{
			"spec": s.spec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Consolidation scheduler started", map[string]interface{}{
		"spec": s.spec,
	})
	return nil
}

// Run performs one sweep.
func (s *ConsolidationScheduler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	logger.Info("Starting scheduled cart consolidation")
	merged, err := s.consolidation.ConsolidateAll(ctx)
	if err != nil {
		logger.Error("Scheduled cart consolidation finished with errors", err, map[string]interface{}{
			"merged": merged,
		})
		return
	}
	logger.Info("Scheduled cart consolidation finished", map[string]interface{}{
		"merged": merged,
	})
}

// Stop halts the cron loop and waits for a running sweep.
func (s *ConsolidationScheduler) Stop() {
	logger.Info("Stopping consolidation scheduler...")
	<-s.cron.Stop().Done()
	logger.Info("Consolidation scheduler stopped")
}
