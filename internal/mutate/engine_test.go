package mutate

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"friendmap/internal/clock"
	"friendmap/internal/crdt"
	"friendmap/internal/names"
)

const testActor clock.ActorID = 42

func testPool() *names.Pool {
	list := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		list = append(list, fmt.Sprintf("name-%02d", i))
	}
	return names.New(list)
}

func newTestEngine(t *testing.T, minSize, maxSize int, weights ...Weight) *Engine {
	t.Helper()
	g, err := NewActionGenerator(weights)
	if err != nil {
		t.Fatal(err)
	}
	return &Engine{
		Actor:     testActor,
		Names:     testPool(),
		Generator: g,
		MinSize:   minSize,
		MaxSize:   maxSize,
		Rand:      rand.New(rand.NewPCG(7, 11)),
	}
}

func mutateAndApply(t *testing.T, e *Engine, m *crdt.Map) Decision {
	t.Helper()
	op, d, err := e.Mutate(m)
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	m.Apply(op)
	return d
}

func seedKeys(m *crdt.Map, n int) {
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("seed-%02d", i)
		op := m.Update(key, m.Len().DeriveAddCtx(1), func(set *crdt.Orswot, ctx crdt.AddCtx) crdt.SetOp {
			return set.Add("friend", ctx)
		})
		m.Apply(op)
	}
}

func TestEngine_AddsKeyBelowMinimum(t *testing.T) {
	e := newTestEngine(t, 10, 20, Weight{RemoveKey, 100})
	m := crdt.NewMap()

	d := mutateAndApply(t, e, m)
	if d.Action != AddKey || !d.Forced {
		t.Errorf("Expected a forced add_key, got %+v", d)
	}
	if m.Len().Val != 1 {
		t.Errorf("Expected 1 key, got %d", m.Len().Val)
	}
	if got := m.Get(d.Key).Val.Members(); len(got) != 1 || got[0] != d.Value {
		t.Errorf("Expected %s -> [%s], got %v", d.Key, d.Value, got)
	}
}

func TestEngine_RemovesKeyAboveMaximum(t *testing.T) {
	e := newTestEngine(t, 10, 20, Weight{AddKey, 100})
	m := crdt.NewMap()
	seedKeys(m, 21)

	d := mutateAndApply(t, e, m)
	if d.Action != RemoveKey || !d.Forced {
		t.Errorf("Expected a forced remove_key, got %+v", d)
	}
	if m.Len().Val != 20 {
		t.Errorf("Expected 20 keys, got %d", m.Len().Val)
	}
	if m.Get(d.Key).Val != nil {
		t.Errorf("Key %s should be gone", d.Key)
	}
}

func TestEngine_Property_SizeStaysNearBounds(t *testing.T) {
	tests := []struct {
		name   string
		weight Weight
		check  func(n int) bool
	}{
		{
			name:   "only adds never pass the ceiling by more than one",
			weight: Weight{AddKey, 100},
			check:  func(n int) bool { return n <= 21 },
		},
		{
			name:   "only removes never drop below the floor by more than one",
			weight: Weight{RemoveKey, 100},
			check:  func(n int) bool { return n >= 9 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, 10, 20, tt.weight)
			m := crdt.NewMap()
			for i := 0; i < 500; i++ {
				mutateAndApply(t, e, m)
				if i >= 30 && !tt.check(m.Len().Val) {
					t.Fatalf("tick %d: %d keys", i, m.Len().Val)
				}
			}
		})
	}
}

func TestEngine_AddValue(t *testing.T) {
	e := newTestEngine(t, 0, 20, Weight{AddValue, 100})
	m := crdt.NewMap()
	seedKeys(m, 1)

	d := mutateAndApply(t, e, m)
	if d.Action != AddValue || d.Forced {
		t.Fatalf("Expected add_value, got %+v", d)
	}
	if got := m.Get("seed-00").Val.Len(); got != 2 {
		t.Errorf("Expected 2 friends after add_value, got %d", got)
	}
}

func TestEngine_RemoveValueFromEmptySet(t *testing.T) {
	e := newTestEngine(t, 0, 20, Weight{RemoveValue, 100})
	m := crdt.NewMap()
	seedKeys(m, 1)

	d := mutateAndApply(t, e, m)
	if d.Value != "friend" {
		t.Fatalf("Expected to remove the only friend, got %+v", d)
	}
	if got := m.Get("seed-00").Val.Len(); got != 0 {
		t.Fatalf("Expected empty set, got %d members", got)
	}

	op, d, err := e.Mutate(m)
	if err != nil {
		t.Fatal(err)
	}
	if d.Value != "" {
		t.Errorf("Expected the empty placeholder, got %q", d.Value)
	}
	if op.Kind != crdt.MapUp || op.Op.Kind != crdt.SetRm {
		t.Errorf("Expected an up/rm op, got %s", op.Kind)
	}
	m.Apply(op)
	if m.Len().Val != 1 || m.Get("seed-00").Val.Len() != 0 {
		t.Errorf("Removing from an empty set should change nothing, got %s", m)
	}
}

func TestEngine_EmptyMapFallsBackToAddKey(t *testing.T) {
	for _, a := range []Action{AddValue, RemoveKey, RemoveValue} {
		t.Run(a.String(), func(t *testing.T) {
			e := newTestEngine(t, 0, 20, Weight{a, 100})
			d := mutateAndApply(t, e, crdt.NewMap())
			if d.Action != AddKey || !d.Forced {
				t.Errorf("Expected a forced add_key, got %+v", d)
			}
		})
	}
}

func TestEngine_NamePoolErrorPropagates(t *testing.T) {
	e := newTestEngine(t, 10, 20, Weight{AddKey, 100})
	e.Names = names.New(nil)

	_, _, err := e.Mutate(crdt.NewMap())
	if !errors.Is(err, names.ErrEmptyPool) {
		t.Errorf("Expected ErrEmptyPool, got %v", err)
	}
}

func TestEngine_DefaultRand(t *testing.T) {
	e := newTestEngine(t, 1, 2, DefaultWeights...)
	e.Rand = nil
	m := crdt.NewMap()
	for i := 0; i < 50; i++ {
		mutateAndApply(t, e, m)
	}
	if n := m.Len().Val; n > 3 {
		t.Errorf("Expected at most 3 keys, got %d", n)
	}
}
