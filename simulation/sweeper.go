package simulation

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hupe1980/teamsim/logging"
)

// SweeperOptions configures the retention sweeper.
type SweeperOptions struct {
	// Schedule is a cron expression controlling when terminal simulations are
	// pruned.
	Schedule string

	// Retention is the minimum age of a terminal simulation before it becomes
	// eligible for pruning.
	Retention time.Duration

	Logger logging.Logger
}

// Sweeper periodically deletes terminal simulations older than the retention
// window. Running and pending simulations are never touched.
type Sweeper struct {
	store     Store
	cron      *cron.Cron
	retention time.Duration
	logger    logging.Logger
}

// NewSweeper creates a sweeper over the given store. Call Start to begin
// scheduling.
func NewSweeper(store Store, optFns ...func(o *SweeperOptions)) (*Sweeper, error) {
	opts := SweeperOptions{
		Schedule:  "0 3 * * *",
		Retention: 30 * 24 * time.Hour,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Sweeper{
		store:     store,
		cron:      cron.New(),
		retention: opts.Retention,
		logger:    opts.Logger,
	}

	if _, err := s.cron.AddFunc(opts.Schedule, s.sweep); err != nil {
		return nil, err
	}

	return s, nil
}

// Start begins the schedule in a background goroutine.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().UTC().Add(-s.retention)
	pruned, err := s.store.PruneTerminal(context.Background(), cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}
	if pruned > 0 {
		s.logger.Info("retention sweep pruned simulations", "count", pruned, "cutoff", cutoff)
	}
}
