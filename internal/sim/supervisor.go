package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"friendmap/internal/clock"
	"friendmap/internal/config"
	"friendmap/internal/convergence"
	"friendmap/internal/gossip"
	"friendmap/internal/mutate"
	"friendmap/internal/replica"
	"friendmap/internal/shutdown"
	"friendmap/internal/telemetry"
)

// Report is the outcome of a run.
type Report struct {
	// Summaries are in spawn order; a failed actor still reports its counters.
	Summaries   []replica.Summary
	Convergence convergence.Result
}

// Supervisor owns the lifecycle of all replicas.
type Supervisor struct {
	cfg         *config.Config
	names       mutate.NamePool
	gen         *mutate.ActionGenerator
	logger      *slog.Logger
	instruments *telemetry.Instruments
}

// New validates cfg and prepares a supervisor.
func New(cfg *config.Config, names mutate.NamePool, logger *slog.Logger) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if names == nil {
		return nil, errors.New("sim: name pool is required")
	}
	gen, err := cfg.Generator()
	if err != nil {
		return nil, err
	}
	instruments, err := telemetry.NewInstruments(nil)
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:         cfg,
		names:       names,
		gen:         gen,
		logger:      logger,
		instruments: instruments,
	}, nil
}

type outcome struct {
	summary replica.Summary
	err     error
}

// Run starts the replicas and blocks until ctx is done or every replica has
// stopped on its own. It then halts the rest, joins them in spawn order and
// returns the first replica error. Every result is logged.
func (s *Supervisor) Run(ctx context.Context) (Report, error) {
	bus := gossip.NewBus(s.cfg.BusCapacity())
	halt := shutdown.NewFlag()

	// Every replica subscribes before any starts so none misses early gossip.
	actors := make([]*replica.Actor, 0, s.cfg.Actors)
	for i := 1; i <= s.cfg.Actors; i++ {
		id := clock.ActorID(i)
		a, err := replica.New(replica.Config{
			ID: id,
			Engine: &mutate.Engine{
				Actor:     id,
				Names:     s.names,
				Generator: s.gen,
				MinSize:   s.cfg.MinSize,
				MaxSize:   s.cfg.MaxSize,
			},
			TickMax:      s.cfg.TickMax,
			Publisher:    bus.Publisher(),
			Subscription: bus.Subscribe(),
			Halt:         halt.Observer(),
			Logger:       s.logger,
			Instruments:  s.instruments,
		})
		if err != nil {
			return Report{}, fmt.Errorf("create actor %d: %w", id, err)
		}
		actors = append(actors, a)
	}

	// Replicas stop through the halt flag, not through ctx cancellation.
	runCtx := context.WithoutCancel(ctx)
	results := make([]chan outcome, len(actors))
	var wg sync.WaitGroup
	for i, a := range actors {
		results[i] = make(chan outcome, 1)
		wg.Add(1)
		go func(a *replica.Actor, out chan<- outcome) {
			defer wg.Done()
			summary, err := a.Run(runCtx)
			out <- outcome{summary: summary, err: err}
		}(a, results[i])
	}
	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	s.logger.Info("simulation started",
		"actors", len(actors),
		"subscribers", bus.Subscribers(),
		"backlog", bus.Capacity(),
		"tick_max", s.cfg.TickMax,
		"action_slots", s.gen.Share(),
	)

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	case <-allDone:
		s.logger.Warn("every actor stopped before shutdown")
	}
	halt.Halt()

	report := Report{Summaries: make([]replica.Summary, 0, len(actors))}
	replicas := make([]convergence.Replica, 0, len(actors))
	var firstErr error
	for _, ch := range results {
		r := <-ch
		report.Summaries = append(report.Summaries, r.summary)
		replicas = append(replicas, convergence.Replica{ID: r.summary.ID, State: r.summary.Snapshot})

		attrs := []any{
			"actor", uint64(r.summary.ID),
			"ticks", r.summary.Ticks,
			"received", r.summary.Received,
			"matched", r.summary.Matched,
			"lagged", r.summary.Lagged,
			"keys", r.summary.Keys,
		}
		if r.err != nil {
			s.logger.Error("actor joined with error", append(attrs, "error", r.err)...)
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		s.logger.Debug("actor joined", attrs...)
	}

	report.Convergence = convergence.Reconcile(replicas)
	s.logger.Info("simulation stopped",
		"converged", report.Convergence.Converged(),
		"states", report.Convergence.String(),
		"behind", len(report.Convergence.Behind),
	)
	return report, firstErr
}
