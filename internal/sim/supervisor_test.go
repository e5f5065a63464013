package sim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendmap/internal/clock"
	"friendmap/internal/config"
	"friendmap/internal/logging"
	"friendmap/internal/names"
)

func testConfig(actors int) *config.Config {
	cfg := config.Default()
	cfg.Actors = actors
	cfg.TickMax = 2 * time.Millisecond
	return cfg
}

func testPool() *names.Pool {
	list := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		list = append(list, fmt.Sprintf("name-%02d", i))
	}
	return names.New(list)
}

func TestSupervisor_RunUntilCancelled(t *testing.T) {
	s, err := New(testConfig(3), testPool(), logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	report, err := s.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Summaries, 3)

	members := 0
	for i, sum := range report.Summaries {
		assert.Equal(t, clock.ActorID(i+1), sum.ID, "summaries in spawn order")
		assert.Positive(t, sum.Ticks)
		assert.Positive(t, sum.Received)
		assert.LessOrEqual(t, sum.Matched, sum.Received)
		require.NotNil(t, sum.Snapshot)
	}
	for _, st := range report.Convergence.States {
		members += len(st.Members)
	}
	assert.Equal(t, 3, members, "every replica lands in one state group")
}

func TestSupervisor_SingleActor(t *testing.T) {
	s, err := New(testConfig(1), testPool(), logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := s.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Summaries, 1)
	assert.Equal(t, uint64(0), report.Summaries[0].Received, "a lone actor ignores its own gossip")
	assert.True(t, report.Convergence.Converged())
}

func TestSupervisor_SurfacesFirstError(t *testing.T) {
	s, err := New(testConfig(3), names.New(nil), logging.Discard())
	require.NoError(t, err)

	// every actor fails on its first tick, so Run returns without cancellation
	done := make(chan struct{})
	var (
		report Report
		runErr error
	)
	go func() {
		defer close(done)
		report, runErr = s.Run(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after every actor failed")
	}

	require.Error(t, runErr)
	assert.True(t, errors.Is(runErr, names.ErrEmptyPool), "got %v", runErr)
	assert.Contains(t, runErr.Error(), "actor 1:")
	assert.Len(t, report.Summaries, 3)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(2)
	cfg.Actions = "add_key=150"

	_, err := New(cfg, testPool(), nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNew_RequiresNamePool(t *testing.T) {
	_, err := New(testConfig(2), nil, nil)
	assert.ErrorContains(t, err, "name pool")
}

func TestSupervisor_StartupLogDescribesRun(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(testConfig(2), testPool(), logging.NewLogger("info", &buf))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Run(ctx)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "simulation started")
	assert.Contains(t, out, "subscribers=2")
	assert.Contains(t, out, "add_key:25", "default action slots are logged")
}
