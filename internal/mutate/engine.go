package mutate

import (
	"fmt"

	"friendmap/internal/clock"
	"friendmap/internal/crdt"
)

// Default bounds on the number of keys in a replica's map.
const (
	DefaultMinSize = 10
	DefaultMaxSize = 20
)

// NamePool supplies names for new keys and friends.
type NamePool interface {
	Choose() (string, error)
}

// Decision describes the change an Engine made.
type Decision struct {
	Action Action
	// Forced is set when the size bounds overrode the weighted draw.
	Forced bool
	Key    string
	Value  string
}

// Engine builds one operation per call against the current map. It is owned
// by a single replica and is not safe for concurrent use.
type Engine struct {
	Actor     clock.ActorID
	Names     NamePool
	Generator *ActionGenerator
	MinSize   int
	MaxSize   int
	// Rand defaults to the global source when nil.
	Rand Rand
}

// Mutate decides what to change and returns the operation, without applying it.
// Below MinSize keys a key is always added and above MaxSize one is always
// removed. Actions that need an existing key fall back to adding one when the
// map is empty.
func (e *Engine) Mutate(m *crdt.Map) (crdt.MapOp, Decision, error) {
	size := m.Len()

	var (
		action Action
		forced bool
	)
	switch {
	case size.Val < e.MinSize:
		action, forced = AddKey, true
	case size.Val > e.MaxSize:
		action, forced = RemoveKey, true
	default:
		action = e.Generator.ChooseFrom(e.rand())
	}
	if action != AddKey && size.Val == 0 {
		action, forced = AddKey, true
	}

	d := Decision{Action: action, Forced: forced}
	var (
		op  crdt.MapOp
		err error
	)
	switch action {
	case AddKey:
		op, err = e.addKey(m, size, &d)
	case AddValue:
		op, err = e.addValue(m, size, &d)
	case RemoveKey:
		op = e.removeKey(m, &d)
	case RemoveValue:
		op = e.removeValue(m, size, &d)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	if err != nil {
		return crdt.MapOp{}, d, fmt.Errorf("%s: %w", action, err)
	}
	return op, d, nil
}

func (e *Engine) addKey(m *crdt.Map, size crdt.ReadCtx[int], d *Decision) (crdt.MapOp, error) {
	key, err := e.Names.Choose()
	if err != nil {
		return crdt.MapOp{}, fmt.Errorf("choose key: %w", err)
	}
	value, err := e.Names.Choose()
	if err != nil {
		return crdt.MapOp{}, fmt.Errorf("choose value: %w", err)
	}
	d.Key, d.Value = key, value
	return m.Update(key, size.DeriveAddCtx(e.Actor), func(set *crdt.Orswot, ctx crdt.AddCtx) crdt.SetOp {
		return set.Add(value, ctx)
	}), nil
}

func (e *Engine) addValue(m *crdt.Map, size crdt.ReadCtx[int], d *Decision) (crdt.MapOp, error) {
	key := e.randomKey(m)
	value, err := e.Names.Choose()
	if err != nil {
		return crdt.MapOp{}, fmt.Errorf("choose value: %w", err)
	}
	d.Key, d.Value = key, value
	return m.Update(key, size.DeriveAddCtx(e.Actor), func(set *crdt.Orswot, ctx crdt.AddCtx) crdt.SetOp {
		return set.Add(value, ctx)
	}), nil
}

func (e *Engine) removeKey(m *crdt.Map, d *Decision) crdt.MapOp {
	key := e.randomKey(m)
	d.Key = key
	return m.Rm(key, m.Get(key).DeriveRmCtx())
}

// removeValue removes a random friend of a random key. An empty set still
// yields an operation, removing the empty name.
func (e *Engine) removeValue(m *crdt.Map, size crdt.ReadCtx[int], d *Decision) crdt.MapOp {
	key := e.randomKey(m)
	value := ""
	if set := m.Get(key).Val; set != nil {
		if members := set.Members(); len(members) > 0 {
			value = members[e.rand().IntN(len(members))]
		}
	}
	d.Key, d.Value = key, value
	return m.Update(key, size.DeriveAddCtx(e.Actor), func(set *crdt.Orswot, _ crdt.AddCtx) crdt.SetOp {
		return set.Rm(value, set.Contains(value).DeriveRmCtx())
	})
}

// randomKey must only be called on a non-empty map.
func (e *Engine) randomKey(m *crdt.Map) string {
	keys := m.Keys()
	return keys[e.rand().IntN(len(keys))]
}

func (e *Engine) rand() Rand {
	if e.Rand == nil {
		return DefaultRand
	}
	return e.Rand
}
