package crdt

import (
	"fmt"
	"strings"

	"friendmap/internal/clock"
)

// MapOpKind distinguishes map operations.
type MapOpKind int

const (
	mapNop MapOpKind = iota
	// MapUp applies a set operation to the value under Key.
	MapUp
	// MapRm removes the observed versions of Keys.
	MapRm
)

// String returns the operation kind name.
func (k MapOpKind) String() string {
	switch k {
	case mapNop:
		return "nop"
	case MapUp:
		return "up"
	case MapRm:
		return "rm"
	default:
		return "unknown"
	}
}

// MapOp is an operation on a Map.
// MapUp uses Dot, Key and Op; MapRm uses Clock and Keys.
type MapOp struct {
	Kind  MapOpKind
	Dot   clock.Dot
	Key   string
	Op    SetOp
	Clock clock.VClock
	Keys  []string
}

type entry struct {
	clock clock.VClock
	val   *Orswot
}

func (e *entry) clone() *entry {
	return &entry{clock: e.clock.Copy(), val: e.val.Clone()}
}

// Map is an observed-remove map from a name to an Orswot of names.
// It is not safe for concurrent use; a replica owns its Map exclusively.
type Map struct {
	clock    clock.VClock
	entries  map[string]*entry
	deferred map[string]deferred
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{
		clock:    clock.New(),
		entries:  make(map[string]*entry),
		deferred: make(map[string]deferred),
	}
}

// Clock returns a copy of the map's clock.
func (m *Map) Clock() clock.VClock {
	return m.clock.Copy()
}

// Len returns the number of keys under the map's causal context.
func (m *Map) Len() ReadCtx[int] {
	return ReadCtx[int]{AddClock: m.clock.Copy(), RmClock: m.clock.Copy(), Val: len(m.entries)}
}

// IsEmpty reports whether the map holds no keys.
func (m *Map) IsEmpty() bool {
	return len(m.entries) == 0
}

// Keys returns the keys in sorted order.
func (m *Map) Keys() []string {
	return sortedKeys(m.entries)
}

// Get returns a copy of the value under key, or nil. The remove clock of
// the context covers the key's live versions only.
func (m *Map) Get(key string) ReadCtx[*Orswot] {
	e, ok := m.entries[key]
	if !ok {
		return ReadCtx[*Orswot]{AddClock: m.clock.Copy(), RmClock: clock.New()}
	}
	return ReadCtx[*Orswot]{AddClock: m.clock.Copy(), RmClock: e.clock.Copy(), Val: e.val.Clone()}
}

// Update builds an operation that applies the set operation returned by f to
// the value under key. f receives the current value (empty if absent) and
// must not modify it.
func (m *Map) Update(key string, ctx AddCtx, f func(set *Orswot, ctx AddCtx) SetOp) MapOp {
	set := NewOrswot()
	if e, ok := m.entries[key]; ok {
		set = e.val
	}
	return MapOp{Kind: MapUp, Dot: ctx.Dot, Key: key, Op: f(set, ctx)}
}

// Rm builds an operation removing the versions of key observed by ctx.
func (m *Map) Rm(key string, ctx RmCtx) MapOp {
	return MapOp{Kind: MapRm, Clock: ctx.Clock.Copy(), Keys: []string{key}}
}

// Apply applies an operation. Updates whose dot was already seen are ignored.
func (m *Map) Apply(op MapOp) {
	switch op.Kind {
	case MapUp:
		if m.clock.Get(op.Dot.Actor) >= op.Dot.Counter {
			return
		}
		e, ok := m.entries[op.Key]
		if !ok {
			e = &entry{clock: clock.New(), val: NewOrswot()}
			m.entries[op.Key] = e
		}
		e.clock.Apply(op.Dot)
		e.val.Apply(op.Op)
		m.clock.Apply(op.Dot)
		m.applyDeferred()
	case MapRm:
		m.applyKeysetRm(op.Clock, op.Keys)
	}
}

func (m *Map) applyKeysetRm(rmClock clock.VClock, keys []string) {
	for _, key := range keys {
		e, ok := m.entries[key]
		if !ok {
			continue
		}
		e.clock.ResetRemove(rmClock)
		if e.clock.IsEmpty() {
			delete(m.entries, key)
		} else {
			e.val.ResetRemove(rmClock)
		}
	}
	if !rmClock.LessOrEqual(m.clock) {
		addDeferred(m.deferred, rmClock, keys)
	}
}

func (m *Map) applyDeferred() {
	pending := m.deferred
	m.deferred = make(map[string]deferred)
	for _, d := range pending {
		m.applyKeysetRm(d.clock, d.sortedNames())
	}
}

// Merge merges other into m. other is not modified.
func (m *Map) Merge(other *Map) {
	for key, e := range m.entries {
		if _, ok := other.entries[key]; ok {
			continue
		}
		// other either removed this version or never saw it
		if e.clock.LessOrEqual(other.clock) {
			delete(m.entries, key)
			continue
		}
		e.clock.ResetRemove(other.clock)
		removed := other.clock.Copy()
		removed.ResetRemove(e.clock)
		e.val.ResetRemove(removed)
	}

	for key, oe := range other.entries {
		ours, ok := m.entries[key]
		if !ok {
			if oe.clock.LessOrEqual(m.clock) {
				continue
			}
			ne := oe.clone()
			ne.clock.ResetRemove(m.clock)
			removed := m.clock.Copy()
			removed.ResetRemove(ne.clock)
			ne.val.ResetRemove(removed)
			m.entries[key] = ne
			continue
		}

		common := clock.Intersection(oe.clock, ours.clock)
		common.Merge(oe.clock.CloneWithout(m.clock))
		common.Merge(ours.clock.CloneWithout(other.clock))
		if common.IsEmpty() {
			delete(m.entries, key)
			continue
		}
		ours.val.Merge(oe.val)
		removed := oe.clock.Copy()
		removed.Merge(ours.clock)
		removed.ResetRemove(common)
		ours.val.ResetRemove(removed)
		ours.clock = common
	}

	for _, d := range other.deferred {
		m.applyKeysetRm(d.clock.Copy(), d.sortedNames())
	}

	m.clock.Merge(other.clock)
	m.applyDeferred()
}

// Equal reports whether both maps hold the same causal state.
func (m *Map) Equal(other *Map) bool {
	if !m.clock.Equal(other.clock) || len(m.entries) != len(other.entries) {
		return false
	}
	for key, e := range m.entries {
		oe, ok := other.entries[key]
		if !ok || !e.clock.Equal(oe.clock) || !e.val.Equal(oe.val) {
			return false
		}
	}
	return deferredEqual(m.deferred, other.deferred)
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	cp := &Map{
		clock:    m.clock.Copy(),
		entries:  make(map[string]*entry, len(m.entries)),
		deferred: make(map[string]deferred, len(m.deferred)),
	}
	for key, e := range m.entries {
		cp.entries[key] = e.clone()
	}
	for k, d := range m.deferred {
		cp.deferred[k] = d.clone()
	}
	return cp
}

// Entries returns the plain contents: key to sorted members.
func (m *Map) Entries() map[string][]string {
	out := make(map[string][]string, len(m.entries))
	for key, e := range m.entries {
		out[key] = e.val.Members()
	}
	return out
}

// String returns the contents in a deterministic form.
func (m *Map) String() string {
	parts := make([]string, 0, len(m.entries))
	for _, key := range m.Keys() {
		parts = append(parts, fmt.Sprintf("%s:{%s}", key, strings.Join(m.entries[key].val.Members(), ",")))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
