package simulation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/teamsim/core"
	"github.com/hupe1980/teamsim/director"
	"github.com/hupe1980/teamsim/logging"
	"github.com/hupe1980/teamsim/notify"
	"github.com/hupe1980/teamsim/participant"
	"github.com/hupe1980/teamsim/tool"
)

// UserDirectory resolves participant user identifiers to remote agent
// identifiers and validates participants at creation time. Implemented by the
// external user/profile store.
type UserDirectory interface {
	// ResolveAgentID returns the remote agent id for a user, or ok=false when
	// no agent mapping exists.
	ResolveAgentID(ctx context.Context, userID string) (agentID string, ok bool, err error)

	// ValidateParticipants reports whether all given users may take part in a
	// simulation.
	ValidateParticipants(ctx context.Context, userIDs []string) (bool, error)
}

// Runner executes the director's tool-calling loop. Satisfied by *director.Engine.
type Runner interface {
	Run(ctx context.Context, instruction string, tools []tool.Tool) ([]director.Segment, error)
}

// Notifier publishes an event to a user's active subscriptions. Satisfied by
// *notify.Hub. Delivery is best-effort; it never affects the persisted record.
type Notifier interface {
	Publish(userID string, ev notify.Event) int
}

// Options configures the lifecycle service.
type Options struct {
	// RunTimeout bounds one background execution end to end.
	RunTimeout time.Duration

	// MaxConcurrentRuns limits simultaneously executing simulations.
	MaxConcurrentRuns int

	Notifier Notifier
	Logger   logging.Logger
}

// Service owns the Simulation entity: creation, validation, background-task
// dispatch, status transitions, retrieval, listing, deletion and rerun. No
// other component mutates simulation records.
type Service struct {
	store      Store
	users      UserDirectory
	runner     Runner
	invoker    participant.Invoker
	notifier   Notifier
	pool       *workerPool
	logger     logging.Logger
	runTimeout time.Duration
}

// NewService wires the lifecycle service. The invoker is shared across runs;
// participant tool adapters are created fresh per run.
func NewService(store Store, users UserDirectory, runner Runner, invoker participant.Invoker, optFns ...func(o *Options)) *Service {
	opts := Options{
		RunTimeout:        30 * time.Minute,
		MaxConcurrentRuns: 10,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Service{
		store:      store,
		users:      users,
		runner:     runner,
		invoker:    invoker,
		notifier:   opts.Notifier,
		pool:       newWorkerPool(opts.MaxConcurrentRuns, opts.Logger),
		logger:     opts.Logger,
		runTimeout: opts.RunTimeout,
	}
}

// Create validates the request, persists a pending simulation, schedules
// background execution and returns immediately.
func (s *Service) Create(ctx context.Context, name, instruction string, participantUserIDs []string, createdBy string) (*Simulation, error) {
	if len(participantUserIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one participant is required", ErrValidation)
	}

	ok, err := s.users.ValidateParticipants(ctx, participantUserIDs)
	if err != nil {
		return nil, fmt.Errorf("validate participants: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: some participants do not have valid agents", ErrValidation)
	}

	sim := &Simulation{
		ID:                 core.NewID(),
		Name:               name,
		Instruction:        instruction,
		ParticipantUserIDs: append([]string(nil), participantUserIDs...),
		Status:             StatusPending,
		CreatedBy:          createdBy,
		CreatedAt:          time.Now().UTC(),
		RunGeneration:      1,
	}

	if err := s.store.Create(ctx, sim); err != nil {
		return nil, fmt.Errorf("persist simulation: %w", err)
	}

	s.logger.Info("simulation created", "simulation_id", sim.ID, "participants", len(participantUserIDs))
	s.dispatch(sim.ID, sim.RunGeneration)

	return sim.Clone(), nil
}

// Get returns the record or ErrNotFound. No side effects.
func (s *Service) Get(ctx context.Context, id string) (*Simulation, error) {
	return s.store.Get(ctx, id)
}

// List returns the user's simulations sorted by creation time descending,
// paginated in memory after full retrieval, plus the total count.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*Simulation, int, error) {
	sims, err := s.store.ListByCreator(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("list simulations: %w", err)
	}

	sort.Slice(sims, func(i, j int) bool { return sims[i].CreatedAt.After(sims[j].CreatedAt) })

	total := len(sims)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*Simulation{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return sims[offset:end], total, nil
}

// Delete removes a simulation. Only the creator may delete; a simulation that
// is still running cannot be deleted.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	sim, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sim.CreatedBy != userID {
		return ErrForbidden
	}
	if sim.Status == StatusRunning {
		return ErrConflict
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("simulation deleted", "simulation_id", id)
	return nil
}

// Rerun resets the mutable fields of a terminal simulation and re-dispatches
// background execution, reusing the same identifier. Only the creator may
// rerun; a simulation that is still running cannot be rerun.
func (s *Service) Rerun(ctx context.Context, id, userID string) (*Simulation, error) {
	sim, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sim.CreatedBy != userID {
		return nil, ErrForbidden
	}
	if sim.Status == StatusRunning {
		return nil, ErrConflict
	}

	sim.ResetForRerun()
	if err := s.store.Update(ctx, sim); err != nil {
		return nil, fmt.Errorf("persist rerun: %w", err)
	}

	s.logger.Info("simulation rerun", "simulation_id", id, "run_generation", sim.RunGeneration)
	s.dispatch(sim.ID, sim.RunGeneration)

	return sim.Clone(), nil
}

// Shutdown waits for in-flight background runs to finish.
func (s *Service) Shutdown() { s.pool.Wait() }

// dispatch schedules background execution for one (simulation, generation)
// pair on the supervised worker pool without blocking the caller.
func (s *Service) dispatch(id string, generation int64) {
	s.pool.Submit("simulation:"+id, func() {
		s.execute(context.Background(), id, generation)
	})
}

// execute drives one background run: pending -> running -> {completed,failed}.
// All errors are captured into the record; nothing propagates to the caller.
func (s *Service) execute(ctx context.Context, id string, generation int64) {
	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	sim, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Error("background execution: load failed", "simulation_id", id, "error", err)
		return
	}
	if sim.RunGeneration != generation || sim.Status != StatusPending {
		s.logger.Warn("background execution: stale dispatch, skipping",
			"simulation_id", id, "dispatched_generation", generation, "current_generation", sim.RunGeneration)
		return
	}

	started := time.Now().UTC()
	sim.Status = StatusRunning
	sim.StartedAt = &started
	if err := s.store.Update(ctx, sim); err != nil {
		s.logger.Error("background execution: transition to running failed", "simulation_id", id, "error", err)
		return
	}

	segments, runErr := s.runner.Run(ctx, sim.Instruction, s.buildParticipantTools(ctx, sim))
	s.finish(context.WithoutCancel(ctx), id, generation, segments, runErr)
}

// buildParticipantTools resolves each participant to a remote agent and wraps
// it as a fresh tool adapter for this run only.
func (s *Service) buildParticipantTools(ctx context.Context, sim *Simulation) []tool.Tool {
	tools := make([]tool.Tool, 0, len(sim.ParticipantUserIDs))
	for i, userID := range sim.ParticipantUserIDs {
		agentID, ok, err := s.users.ResolveAgentID(ctx, userID)
		if err != nil {
			s.logger.Warn("agent resolution failed, using user id", "user_id", userID, "error", err)
			ok = false
		}
		if !ok {
			agentID = userID
			s.logger.Warn("no agent mapping for participant, using user id", "user_id", userID)
		}
		ref := participant.NewRef(agentID, userID, fmt.Sprintf("Participant_%d", i+1))
		tools = append(tools, participant.NewTool(ref, s.invoker))
	}
	return tools
}

// finish records the terminal state and publishes the notification. Writes
// from a stale generation are discarded.
func (s *Service) finish(ctx context.Context, id string, generation int64, segments []director.Segment, runErr error) {
	sim, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Error("background execution: reload for terminal write failed", "simulation_id", id, "error", err)
		return
	}
	if sim.RunGeneration != generation {
		s.logger.Warn("background execution: superseded by newer run, discarding result",
			"simulation_id", id, "dispatched_generation", generation, "current_generation", sim.RunGeneration)
		return
	}

	completed := time.Now().UTC()
	sim.CompletedAt = &completed

	var ev notify.Event
	if runErr != nil {
		msg := runErr.Error()
		sim.Status = StatusFailed
		sim.ErrorMessage = &msg
		ev = notify.Event{
			Type:           notify.EventSimulationFailed,
			SimulationID:   sim.ID,
			SimulationName: sim.Name,
			Message:        fmt.Sprintf("Simulation %q failed", sim.Name),
			Error:          msg,
			Timestamp:      completed,
		}
		s.logger.Error("simulation failed", "simulation_id", id, "error", runErr)
	} else {
		summary := director.JoinSegments(segments)
		sim.Status = StatusCompleted
		sim.ResultSummary = &summary
		ev = notify.Event{
			Type:           notify.EventSimulationCompleted,
			SimulationID:   sim.ID,
			SimulationName: sim.Name,
			Message:        fmt.Sprintf("Simulation %q completed", sim.Name),
			Timestamp:      completed,
		}
		s.logger.Info("simulation completed", "simulation_id", id, "segments", len(segments))
	}

	if err := s.store.Update(ctx, sim); err != nil {
		s.logger.Error("background execution: terminal write failed", "simulation_id", id, "error", err)
		return
	}

	if s.notifier != nil {
		delivered := s.notifier.Publish(sim.CreatedBy, ev)
		s.logger.Debug("notification published", "simulation_id", id, "delivered", delivered)
	}
}
