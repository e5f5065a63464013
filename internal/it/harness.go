package it

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"friendmap/internal/clock"
	"friendmap/internal/crdt"
	"friendmap/internal/gossip"
	"friendmap/internal/logging"
	"friendmap/internal/mutate"
	"friendmap/internal/names"
	"friendmap/internal/replica"
	"friendmap/internal/shutdown"
)

// Cluster is an in-process set of replicas sharing one gossip bus.
type Cluster struct {
	nodes   []*Node
	bus     *gossip.Bus
	halt    *shutdown.Flag
	watch   *gossip.Subscription
	pool    *names.Pool
	gen     *mutate.ActionGenerator
	logFile *os.File
	logger  *slog.Logger
	mu      sync.Mutex
}

// Node is a single replica in the test cluster.
type Node struct {
	ID   clock.ActorID
	sub  *gossip.Subscription
	done chan result
}

type result struct {
	summary replica.Summary
	err     error
}

// NewCluster creates a cluster harness logging to logDir/cluster.log.
func NewCluster(logDir string, capacity int) (*Cluster, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.Create(filepath.Join(logDir, "cluster.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	list := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		list = append(list, fmt.Sprintf("person-%02d", i))
	}
	gen, err := mutate.NewActionGenerator(mutate.DefaultWeights)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	bus := gossip.NewBus(capacity)
	return &Cluster{
		nodes:   make([]*Node, 0),
		bus:     bus,
		halt:    shutdown.NewFlag(),
		watch:   bus.Subscribe(),
		pool:    names.New(list),
		gen:     gen,
		logFile: logFile,
		logger:  logging.NewLogger("debug", logFile),
	}, nil
}

// StartNode starts one replica with the given id.
func (c *Cluster) StartNode(ctx context.Context, id clock.ActorID, tickMax time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := c.bus.Subscribe()
	a, err := replica.New(replica.Config{
		ID: id,
		Engine: &mutate.Engine{
			Actor:     id,
			Names:     c.pool,
			Generator: c.gen,
			MinSize:   mutate.DefaultMinSize,
			MaxSize:   mutate.DefaultMaxSize,
		},
		TickMax:      tickMax,
		Publisher:    c.bus.Publisher(),
		Subscription: sub,
		Halt:         c.halt.Observer(),
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to start node %d: %w", id, err)
	}

	node := &Node{ID: id, sub: sub, done: make(chan result, 1)}
	go func() {
		summary, err := a.Run(ctx)
		node.done <- result{summary: summary, err: err}
	}()
	c.nodes = append(c.nodes, node)
	return nil
}

// StartCluster starts n replicas with ids 1..n.
func (c *Cluster) StartCluster(ctx context.Context, n int, tickMax time.Duration) error {
	for i := 1; i <= n; i++ {
		if err := c.StartNode(ctx, clock.ActorID(i), tickMax); err != nil {
			c.Stop()
			return err
		}
	}
	return nil
}

// WaitForGossip waits until every listed replica has broadcast at least once
// since the call. Messages buffered before the call are discarded.
func (c *Cluster) WaitForGossip(ctx context.Context, ids []clock.ActorID, timeout time.Duration) error {
	for drained := false; !drained; {
		select {
		case <-c.watch.C():
		default:
			drained = true
		}
	}

	pending := make(map[clock.ActorID]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("timeout waiting for gossip from %v", keys(pending))
		case msg, ok := <-c.watch.C():
			if !ok {
				return fmt.Errorf("gossip bus closed while waiting for %v", keys(pending))
			}
			delete(pending, msg.Origin)
		}
	}
	return nil
}

// KillNode detaches a replica from the bus, which makes it stop on its own.
func (c *Cluster) KillNode(id clock.ActorID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, node := range c.nodes {
		if node.ID == id {
			node.sub.Close()
			return nil
		}
	}
	return fmt.Errorf("node %d not found", id)
}

// GetNode returns a node by id.
func (c *Cluster) GetNode(id clock.ActorID) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Stop halts every replica and returns their summaries in start order along
// with the first error.
func (c *Cluster) Stop() ([]replica.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.halt.Halt()
	summaries := make([]replica.Summary, 0, len(c.nodes))
	var firstErr error
	for _, node := range c.nodes {
		r := <-node.done
		summaries = append(summaries, r.summary)
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}
	c.nodes = nil
	c.watch.Close()
	if c.logFile != nil {
		c.logFile.Close()
		c.logFile = nil
	}
	return summaries, firstErr
}

// Exchange performs one full anti-entropy round over the final states: every
// state is merged into every other. It returns the resulting maps.
func Exchange(summaries []replica.Summary) ([]*crdt.Map, error) {
	maps := make([]*crdt.Map, len(summaries))
	for i, s := range summaries {
		maps[i] = s.Snapshot.Clone()
	}
	for _, to := range maps {
		for j, from := range maps {
			if err := to.ValidateMerge(from); err != nil {
				return nil, fmt.Errorf("merge from actor %d: %w", summaries[j].ID, err)
			}
			to.Merge(from)
		}
	}
	return maps, nil
}

func keys(m map[clock.ActorID]bool) []clock.ActorID {
	out := make([]clock.ActorID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
