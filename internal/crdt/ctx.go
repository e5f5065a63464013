package crdt

import (
	"friendmap/internal/clock"
)

// ReadCtx is the result of a read together with the causal context it was
// read under. Operations derived from it only affect what the read observed.
type ReadCtx[V any] struct {
	AddClock clock.VClock
	RmClock  clock.VClock
	Val      V
}

// AddCtx is the context for an add: the dot of the new operation and the
// clock it produces.
type AddCtx struct {
	Clock clock.VClock
	Dot   clock.Dot
}

// RmCtx is the context for a removal: everything observed at read time.
type RmCtx struct {
	Clock clock.VClock
}

// DeriveAddCtx returns the context for actor's next operation after this read.
func (r ReadCtx[V]) DeriveAddCtx(actor clock.ActorID) AddCtx {
	c := r.AddClock.Copy()
	d := c.Inc(actor)
	c.Apply(d)
	return AddCtx{Clock: c, Dot: d}
}

// DeriveRmCtx returns the context for removing what this read observed.
func (r ReadCtx[V]) DeriveRmCtx() RmCtx {
	return RmCtx{Clock: r.RmClock.Copy()}
}

// deferred is a removal waiting for operations its clock has seen but the
// local replica has not.
type deferred struct {
	clock clock.VClock
	names map[string]struct{}
}

func (d deferred) sortedNames() []string {
	return sortedKeys(d.names)
}

func (d deferred) clone() deferred {
	names := make(map[string]struct{}, len(d.names))
	for n := range d.names {
		names[n] = struct{}{}
	}
	return deferred{clock: d.clock.Copy(), names: names}
}

// addDeferred records names under rmClock, merging with an existing entry
// for the same clock.
func addDeferred(set map[string]deferred, rmClock clock.VClock, names []string) {
	key := rmClock.Key()
	d, ok := set[key]
	if !ok {
		d = deferred{clock: rmClock.Copy(), names: make(map[string]struct{}, len(names))}
		set[key] = d
	}
	for _, n := range names {
		d.names[n] = struct{}{}
	}
}

func deferredEqual(a, b map[string]deferred) bool {
	if len(a) != len(b) {
		return false
	}
	for key, da := range a {
		db, ok := b[key]
		if !ok || len(da.names) != len(db.names) {
			return false
		}
		for n := range da.names {
			if _, ok := db.names[n]; !ok {
				return false
			}
		}
	}
	return true
}
