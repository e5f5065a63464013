package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"friendmap/internal/clock"
	"friendmap/internal/crdt"
	"friendmap/internal/gossip"
	"friendmap/internal/mutate"
	"friendmap/internal/shutdown"
	"friendmap/internal/telemetry"
)

// DefaultTickMax bounds the random delay between mutations.
const DefaultTickMax = 20 * time.Millisecond

// Config holds what an Actor needs. Publisher, Subscription, Halt and an
// Engine with Names and Generator set are required; the rest have defaults.
type Config struct {
	ID           clock.ActorID
	Engine       *mutate.Engine
	TickMax      time.Duration
	Publisher    *gossip.Publisher
	Subscription *gossip.Subscription
	Halt         shutdown.Observer
	Logger       *slog.Logger
	Tracer       trace.Tracer
	Instruments  *telemetry.Instruments
	// Rand drives tick jitter; defaults to the global source.
	Rand mutate.Rand
}

// Summary is what an Actor reports when it stops.
type Summary struct {
	ID       clock.ActorID
	Ticks    uint64
	Received uint64
	Matched  uint64
	Lagged   uint64
	Keys     int
	// Snapshot is the final map, owned by the caller.
	Snapshot *crdt.Map
}

// MatchRate returns the percentage of received maps that changed nothing.
func (s Summary) MatchRate() float64 {
	if s.Received == 0 {
		return 0
	}
	return 100 * float64(s.Matched) / float64(s.Received)
}

// Actor is one replica. Its state is touched only by the goroutine running Run.
type Actor struct {
	id      clock.ActorID
	engine  *mutate.Engine
	tickMax time.Duration
	pub     *gossip.Publisher
	sub     *gossip.Subscription
	halt    shutdown.Observer
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Instruments
	rand    mutate.Rand
	attrs   metric.MeasurementOption

	state    *crdt.Map
	ticks    uint64
	received uint64
	matched  uint64
	lagged   uint64
}

// New creates an actor with an empty map.
func New(cfg Config) (*Actor, error) {
	if cfg.Publisher == nil || cfg.Subscription == nil {
		return nil, errors.New("replica: publisher and subscription are required")
	}
	if !cfg.Halt.Valid() {
		return nil, errors.New("replica: halt observer is required")
	}
	if cfg.Engine == nil || cfg.Engine.Generator == nil || cfg.Engine.Names == nil {
		return nil, errors.New("replica: mutation engine with a generator and name pool is required")
	}
	if cfg.TickMax < 0 {
		return nil, fmt.Errorf("replica: negative tick max %s", cfg.TickMax)
	}

	a := &Actor{
		id:      cfg.ID,
		engine:  cfg.Engine,
		tickMax: cfg.TickMax,
		pub:     cfg.Publisher,
		sub:     cfg.Subscription,
		halt:    cfg.Halt,
		logger:  cfg.Logger,
		tracer:  cfg.Tracer,
		metrics: cfg.Instruments,
		rand:    cfg.Rand,
		attrs:   metric.WithAttributes(attribute.Int64("actor", int64(cfg.ID))),
		state:   crdt.NewMap(),
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("actor", uint64(cfg.ID))
	if a.tracer == nil {
		a.tracer = telemetry.Tracer()
	}
	if a.metrics == nil {
		m, err := telemetry.NewInstruments(nil)
		if err != nil {
			return nil, fmt.Errorf("replica: instruments: %w", err)
		}
		a.metrics = m
	}
	if a.rand == nil {
		a.rand = mutate.DefaultRand
	}
	return a, nil
}

// ID returns the actor's id.
func (a *Actor) ID() clock.ActorID {
	return a.id
}

// Run loops until the halt flag is set, ctx is cancelled, the bus closes, or
// a step fails. It always closes the actor's publisher and subscription and
// returns the final summary; the error is non-nil only on failure.
func (a *Actor) Run(ctx context.Context) (Summary, error) {
	defer a.pub.Close()
	defer a.sub.Close()

	a.logger.Debug("actor started")

	timer := time.NewTimer(a.nextTick())
	defer timer.Stop()

	var err error
	for running := true; running; {
		select {
		case <-timer.C:
			if err = a.tick(ctx); err != nil {
				running = false
				break
			}
			timer.Reset(a.nextTick())
		case <-a.halt.Done():
			a.logger.Debug("halt observed")
			running = false
		case <-ctx.Done():
			a.logger.Debug("context cancelled")
			running = false
		case msg, ok := <-a.sub.C():
			if !ok {
				a.logger.Info("gossip bus closed")
				running = false
				break
			}
			if err = a.receive(ctx, msg); err != nil {
				running = false
			}
		}
	}

	// drops after the last delivered message are only visible here
	a.collectLag(ctx)
	summary := a.summary()
	if err != nil {
		a.logger.Error("actor failed", "error", err)
		return summary, fmt.Errorf("actor %d: %w", a.id, err)
	}
	a.logger.Debug("actor stopped", "ticks", summary.Ticks, "received", summary.Received, "matched", summary.Matched)
	return summary, nil
}

func (a *Actor) nextTick() time.Duration {
	if a.tickMax <= 0 {
		return 0
	}
	return time.Duration(a.rand.IntN(int(a.tickMax)))
}

// tick mutates the map and broadcasts the result.
func (a *Actor) tick(ctx context.Context) error {
	ctx, span := a.tracer.Start(ctx, "replica.tick",
		trace.WithAttributes(attribute.Int64("actor", int64(a.id))))
	defer span.End()

	op, decision, err := a.engine.Mutate(a.state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mutate failed")
		return fmt.Errorf("mutate: %w", err)
	}
	a.state.Apply(op)

	snapshot, err := crdt.Marshal(a.state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return fmt.Errorf("encode snapshot: %w", err)
	}
	receivers := a.pub.Publish(gossip.Message{Origin: a.id, Snapshot: snapshot})

	a.ticks++
	a.metrics.Ticks.Add(ctx, 1, a.attrs)
	keys := a.state.Len().Val
	span.SetAttributes(
		attribute.String("action", decision.Action.String()),
		attribute.Bool("forced", decision.Forced),
		attribute.Int("keys", keys),
		attribute.Int("bytes", len(snapshot)),
	)
	a.logger.Debug("mutated",
		"action", decision.Action,
		"forced", decision.Forced,
		"key", decision.Key,
		"value", decision.Value,
		"keys", keys,
		"receivers", receivers,
	)
	return nil
}

// receive merges another replica's map into local state.
func (a *Actor) receive(ctx context.Context, msg gossip.Message) error {
	a.collectLag(ctx)
	if msg.Origin == a.id {
		return nil
	}

	ctx, span := a.tracer.Start(ctx, "replica.merge",
		trace.WithAttributes(
			attribute.Int64("actor", int64(a.id)),
			attribute.Int64("origin", int64(msg.Origin)),
		))
	defer span.End()

	a.received++
	a.metrics.Received.Add(ctx, 1, a.attrs)

	remote, err := crdt.Unmarshal(msg.Snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return fmt.Errorf("decode snapshot from actor %d: %w", msg.Origin, err)
	}
	if err := a.state.ValidateMerge(remote); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return fmt.Errorf("merge snapshot from actor %d: %w", msg.Origin, err)
	}

	before := a.state.Clone()
	a.state.Merge(remote)
	matched := a.state.Equal(before)
	if matched {
		a.matched++
		a.metrics.Matched.Add(ctx, 1, a.attrs)
	}
	span.SetAttributes(attribute.Bool("matched", matched))

	a.logger.Debug("merged",
		"origin", uint64(msg.Origin),
		"matched", matched,
		"match_pct", 100*a.matched/a.received,
	)
	return nil
}

// collectLag accounts for messages the bus dropped before this actor read them.
func (a *Actor) collectLag(ctx context.Context) {
	if missed := a.sub.TakeMissed(); missed > 0 {
		a.lagged += missed
		a.metrics.Lagged.Add(ctx, int64(missed), a.attrs)
		a.logger.Warn("gossip lagged", "missed", missed)
	}
}

func (a *Actor) summary() Summary {
	return Summary{
		ID:       a.id,
		Ticks:    a.ticks,
		Received: a.received,
		Matched:  a.matched,
		Lagged:   a.lagged,
		Keys:     a.state.Len().Val,
		Snapshot: a.state.Clone(),
	}
}
