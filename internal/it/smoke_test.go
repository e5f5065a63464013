package it

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendmap/internal/clock"
	"friendmap/internal/convergence"
)

func logDir(t *testing.T) string {
	return filepath.Join(t.TempDir(), "it-logs")
}

func TestSmoke_ClusterGossipsAndConverges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cluster, err := NewCluster(logDir(t), 3)
	require.NoError(t, err)
	defer cluster.Stop()

	require.NoError(t, cluster.StartCluster(ctx, 3, 2*time.Millisecond))
	require.NoError(t, cluster.WaitForGossip(ctx, []clock.ActorID{1, 2, 3}, 5*time.Second))
	time.Sleep(100 * time.Millisecond)

	summaries, err := cluster.Stop()
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	for _, s := range summaries {
		assert.Positive(t, s.Ticks, "actor %d ticked", s.ID)
		assert.Positive(t, s.Received, "actor %d heard peers", s.ID)
		assert.GreaterOrEqual(t, s.Keys, 0)
	}

	// replicas stop mid-flight, so finish with one anti-entropy round
	maps, err := Exchange(summaries)
	require.NoError(t, err)

	replicas := make([]convergence.Replica, len(maps))
	for i, m := range maps {
		replicas[i] = convergence.Replica{ID: summaries[i].ID, State: m}
	}
	result := convergence.Reconcile(replicas)
	assert.True(t, result.Converged(), "states after exchange: %s", result.String())
	assert.Empty(t, result.Behind)
}

func TestSmoke_KilledNodeDoesNotStopOthers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cluster, err := NewCluster(logDir(t), 3)
	require.NoError(t, err)
	defer cluster.Stop()

	require.NoError(t, cluster.StartCluster(ctx, 3, 2*time.Millisecond))
	require.NoError(t, cluster.WaitForGossip(ctx, []clock.ActorID{1, 2, 3}, 5*time.Second))

	require.NotNil(t, cluster.GetNode(2))
	require.NoError(t, cluster.KillNode(2))
	assert.Error(t, cluster.KillNode(7))

	// survivors keep mutating and gossiping
	require.NoError(t, cluster.WaitForGossip(ctx, []clock.ActorID{1, 3}, 5*time.Second))

	summaries, err := cluster.Stop()
	require.NoError(t, err, "a detached replica stops cleanly")
	require.Len(t, summaries, 3)
	assert.Less(t, summaries[1].Ticks, summaries[0].Ticks+summaries[2].Ticks)
}

func TestSmoke_SmallBacklogLagsButSurvives(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cluster, err := NewCluster(logDir(t), 1)
	require.NoError(t, err)
	defer cluster.Stop()

	require.NoError(t, cluster.StartCluster(ctx, 5, 0))
	require.NoError(t, cluster.WaitForGossip(ctx, []clock.ActorID{1, 2, 3, 4, 5}, 5*time.Second))
	time.Sleep(50 * time.Millisecond)

	summaries, err := cluster.Stop()
	require.NoError(t, err, "lag is never fatal")

	for _, s := range summaries {
		assert.Positive(t, s.Ticks)
	}
	_, err = Exchange(summaries)
	require.NoError(t, err)
}
