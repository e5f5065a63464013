package clock

import (
	"fmt"
	"sort"
	"strings"
)

// ActorID identifies a replica. It doubles as the causal identity of every
// operation the replica produces.
type ActorID uint64

// Dot identifies a single operation: the Counter-th operation of Actor.
type Dot struct {
	Actor   ActorID
	Counter uint64
}

// String returns the dot as "actor.counter".
func (d Dot) String() string {
	return fmt.Sprintf("%d.%d", d.Actor, d.Counter)
}

// VClock is a version vector from actor to the highest counter seen.
// Actors with a zero counter are never stored.
// Thread-safe operations should be handled by the caller.
type VClock map[ActorID]uint64

// New creates a new empty clock.
func New() VClock {
	return make(VClock)
}

// Get returns the counter for actor, or 0 if not present.
func (vc VClock) Get(actor ActorID) uint64 {
	return vc[actor]
}

// Inc returns the next dot for actor without modifying the clock.
func (vc VClock) Inc(actor ActorID) Dot {
	return Dot{Actor: actor, Counter: vc[actor] + 1}
}

// Apply raises the actor's counter to the dot's counter. Dots older than
// what the clock already holds are ignored.
func (vc VClock) Apply(d Dot) {
	if d.Counter == 0 {
		return
	}
	if vc[d.Actor] < d.Counter {
		vc[d.Actor] = d.Counter
	}
}

// Merge takes the maximum counter for each actor of other into this clock.
func (vc VClock) Merge(other VClock) {
	for actor, counter := range other {
		vc.Apply(Dot{Actor: actor, Counter: counter})
	}
}

// Copy creates a deep copy of the clock.
func (vc VClock) Copy() VClock {
	cp := make(VClock, len(vc))
	for k, v := range vc {
		cp[k] = v
	}
	return cp
}

// IsEmpty reports whether the clock holds no dots.
func (vc VClock) IsEmpty() bool {
	return len(vc) == 0
}

// Dots returns the clock's dots ordered by actor.
func (vc VClock) Dots() []Dot {
	dots := make([]Dot, 0, len(vc))
	for actor, counter := range vc {
		dots = append(dots, Dot{Actor: actor, Counter: counter})
	}
	sort.Slice(dots, func(i, j int) bool { return dots[i].Actor < dots[j].Actor })
	return dots
}

// ResetRemove forgets every actor whose counter is covered by other.
// What is left is the part of this clock that other has not seen.
func (vc VClock) ResetRemove(other VClock) {
	for actor, counter := range other {
		if vc[actor] <= counter {
			delete(vc, actor)
		}
	}
}

// CloneWithout returns the dots of this clock that are strictly newer than
// base.
func (vc VClock) CloneWithout(base VClock) VClock {
	out := New()
	for actor, counter := range vc {
		if counter > base[actor] {
			out[actor] = counter
		}
	}
	return out
}

// Intersection returns the dots present with identical counters in both
// clocks.
func Intersection(a, b VClock) VClock {
	out := New()
	for actor, counter := range a {
		if b[actor] == counter {
			out[actor] = counter
		}
	}
	return out
}

// CompareResult represents the result of comparing two clocks.
type CompareResult int

const (
	// Before indicates this clock happened before the other.
	Before CompareResult = iota
	// After indicates this clock happened after the other.
	After
	// Concurrent indicates the clocks are concurrent (no causal relationship).
	Concurrent
	// Equal indicates the clocks are equal.
	Equal
)

// String returns the name of the comparison result.
func (r CompareResult) String() string {
	switch r {
	case Before:
		return "BEFORE"
	case After:
		return "AFTER"
	case Concurrent:
		return "CONCURRENT"
	case Equal:
		return "EQUAL"
	default:
		return "UNKNOWN"
	}
}

// Compare compares two clocks and returns their relationship.
// Returns:
//   - Equal: if all counters are equal
//   - Before: if this clock happened before other (all counters <=, at least one <)
//   - After: if this clock happened after other (all counters >=, at least one >)
//   - Concurrent: if neither dominates
func (vc VClock) Compare(other VClock) CompareResult {
	var thisLess, thisGreater bool
	for actor, counter := range vc {
		if counter > other[actor] {
			thisGreater = true
		} else if counter < other[actor] {
			thisLess = true
		}
	}
	for actor, counter := range other {
		if _, ok := vc[actor]; !ok && counter > 0 {
			thisLess = true
		}
	}

	switch {
	case !thisLess && !thisGreater:
		return Equal
	case thisLess && !thisGreater:
		return Before
	case thisGreater && !thisLess:
		return After
	default:
		return Concurrent
	}
}

// LessOrEqual reports whether other has seen every dot of this clock.
func (vc VClock) LessOrEqual(other VClock) bool {
	for actor, counter := range vc {
		if counter > other[actor] {
			return false
		}
	}
	return true
}

// Equal checks if two clocks hold the same dots.
func (vc VClock) Equal(other VClock) bool {
	if len(vc) != len(other) {
		return false
	}
	for actor, counter := range vc {
		if c, ok := other[actor]; !ok || c != counter {
			return false
		}
	}
	return true
}

// Dominates returns true if this clock strictly happened after the other.
func (vc VClock) Dominates(other VClock) bool {
	return vc.Compare(other) == After
}

// String returns a string representation of the clock.
func (vc VClock) String() string {
	if len(vc) == 0 {
		return "{}"
	}

	// Sort for deterministic output
	parts := make([]string, 0, len(vc))
	for _, d := range vc.Dots() {
		parts = append(parts, fmt.Sprintf("%d:%d", d.Actor, d.Counter))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Key returns a canonical form of the clock usable as a map key.
func (vc VClock) Key() string {
	return vc.String()
}
