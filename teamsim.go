// Package teamsim provides a high-level façade over the simulation
// orchestration subsystem: a director agent that runs automated conversations
// between remote participant agents and persists the outcome. Most
// applications interact with this package by:
//  1. Creating a TeamSim via New() with a remote platform and a model
//  2. Creating simulations (Create) and polling or subscribing for results
//  3. Rerunning or deleting finished simulations
//
// The façade delegates lifecycle management to simulation.Service while
// keeping setup ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a durable
// store, a user directory and a structured logger.
package teamsim

import (
	"context"
	"time"

	"github.com/hupe1980/teamsim/director"
	"github.com/hupe1980/teamsim/logging"
	"github.com/hupe1980/teamsim/model"
	"github.com/hupe1980/teamsim/notify"
	"github.com/hupe1980/teamsim/remote"
	"github.com/hupe1980/teamsim/simulation"
)

// Options configures the TeamSim instance.
type Options struct {
	// Store persists simulation records (defaults to in-memory).
	Store simulation.Store

	// Directory resolves participant users to remote agents (defaults to an
	// empty static directory; unresolved users fall back to their own id).
	Directory simulation.UserDirectory

	// OutputLanguage for the director's responses.
	OutputLanguage string

	// RunTimeout bounds one background simulation run.
	RunTimeout time.Duration

	// MaxConcurrentRuns limits simultaneously executing simulations.
	MaxConcurrentRuns int

	// PacingDelay is the fixed delay before each remote participant query.
	PacingDelay time.Duration

	// Hub receives completion and failure events (defaults to a fresh hub).
	Hub *notify.Hub

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// TeamSim is the high-level façade aggregating the director engine, the
// remote client and the lifecycle service.
type TeamSim struct {
	svc *simulation.Service
	hub *notify.Hub
}

// New creates a new TeamSim instance with optional overrides. Any unset
// collaborator is initialized with an in-memory implementation.
func New(platform remote.Platform, m model.Model, optFns ...func(o *Options)) *TeamSim {
	opts := Options{
		Store:     simulation.NewMemoryStore(),
		Directory: simulation.NewStaticDirectory(nil),
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Hub == nil {
		opts.Hub = notify.NewHub(func(o *notify.Options) {
			o.Logger = opts.Logger
		})
	}

	client := remote.NewClient(platform, func(o *remote.Options) {
		if opts.PacingDelay > 0 {
			o.PacingDelay = opts.PacingDelay
		}
		o.Logger = opts.Logger
	})

	engine := director.New(m, func(o *director.Options) {
		if opts.OutputLanguage != "" {
			o.OutputLanguage = opts.OutputLanguage
		}
		o.Logger = opts.Logger
	})

	svc := simulation.NewService(opts.Store, opts.Directory, engine, client, func(o *simulation.Options) {
		if opts.RunTimeout > 0 {
			o.RunTimeout = opts.RunTimeout
		}
		if opts.MaxConcurrentRuns > 0 {
			o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		}
		o.Notifier = opts.Hub
		o.Logger = opts.Logger
	})

	return &TeamSim{svc: svc, hub: opts.Hub}
}

// Create validates and persists a new simulation and schedules its execution.
func (t *TeamSim) Create(ctx context.Context, name, instruction string, participantUserIDs []string, createdBy string) (*simulation.Simulation, error) {
	return t.svc.Create(ctx, name, instruction, participantUserIDs, createdBy)
}

// Get returns a simulation by id.
func (t *TeamSim) Get(ctx context.Context, id string) (*simulation.Simulation, error) {
	return t.svc.Get(ctx, id)
}

// List returns a user's simulations, newest first, plus the total count.
func (t *TeamSim) List(ctx context.Context, userID string, limit, offset int) ([]*simulation.Simulation, int, error) {
	return t.svc.List(ctx, userID, limit, offset)
}

// Delete removes a finished simulation.
func (t *TeamSim) Delete(ctx context.Context, id, userID string) error {
	return t.svc.Delete(ctx, id, userID)
}

// Rerun resets a finished simulation and executes it again.
func (t *TeamSim) Rerun(ctx context.Context, id, userID string) (*simulation.Simulation, error) {
	return t.svc.Rerun(ctx, id, userID)
}

// Subscribe registers a notification queue for the user's events.
func (t *TeamSim) Subscribe(userID string) *notify.Subscription {
	return t.hub.Subscribe(userID)
}

// Service exposes the underlying lifecycle service for HTTP wiring.
func (t *TeamSim) Service() *simulation.Service { return t.svc }

// Hub exposes the notification hub for HTTP wiring.
func (t *TeamSim) Hub() *notify.Hub { return t.hub }

// Shutdown waits for in-flight simulation runs to finish.
func (t *TeamSim) Shutdown() { t.svc.Shutdown() }
