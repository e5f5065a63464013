package crdt

import (
	"sort"

	"friendmap/internal/clock"
)

// SetOpKind distinguishes the two set operations.
type SetOpKind int

const (
	// SetAdd adds members under a new dot.
	SetAdd SetOpKind = iota
	// SetRm removes the observed versions of members.
	SetRm
)

// SetOp is an operation on an Orswot. Dot is used by SetAdd, Clock by SetRm.
type SetOp struct {
	Kind    SetOpKind
	Dot     clock.Dot
	Clock   clock.VClock
	Members []string
}

// Orswot is an add-biased observed-remove set without tombstones. Each
// member carries the dots of the adds that are still live for it.
type Orswot struct {
	clock    clock.VClock
	entries  map[string]clock.VClock
	deferred map[string]deferred
}

// NewOrswot creates an empty set.
func NewOrswot() *Orswot {
	return &Orswot{
		clock:    clock.New(),
		entries:  make(map[string]clock.VClock),
		deferred: make(map[string]deferred),
	}
}

// Len returns the number of members.
func (s *Orswot) Len() int {
	return len(s.entries)
}

// Members returns the members in sorted order.
func (s *Orswot) Members() []string {
	return sortedKeys(s.entries)
}

// Contains reports whether member is present. The remove clock of the
// returned context covers exactly the member's live adds.
func (s *Orswot) Contains(member string) ReadCtx[bool] {
	rm := clock.New()
	c, ok := s.entries[member]
	if ok {
		rm = c.Copy()
	}
	return ReadCtx[bool]{AddClock: s.clock.Copy(), RmClock: rm, Val: ok}
}

// Add builds an operation adding member under ctx.
func (s *Orswot) Add(member string, ctx AddCtx) SetOp {
	return SetOp{Kind: SetAdd, Dot: ctx.Dot, Members: []string{member}}
}

// Rm builds an operation removing the versions of member observed by ctx.
func (s *Orswot) Rm(member string, ctx RmCtx) SetOp {
	return SetOp{Kind: SetRm, Clock: ctx.Clock.Copy(), Members: []string{member}}
}

// Apply applies an operation. Adds whose dot was already seen are ignored.
func (s *Orswot) Apply(op SetOp) {
	switch op.Kind {
	case SetAdd:
		if s.clock.Get(op.Dot.Actor) >= op.Dot.Counter {
			return
		}
		for _, m := range op.Members {
			c, ok := s.entries[m]
			if !ok {
				c = clock.New()
				s.entries[m] = c
			}
			c.Apply(op.Dot)
		}
		s.clock.Apply(op.Dot)
		s.applyDeferred()
	case SetRm:
		s.applyRm(op.Clock, op.Members)
	}
}

func (s *Orswot) applyRm(rmClock clock.VClock, members []string) {
	if !rmClock.LessOrEqual(s.clock) {
		addDeferred(s.deferred, rmClock, members)
	}
	for _, m := range members {
		c, ok := s.entries[m]
		if !ok {
			continue
		}
		c.ResetRemove(rmClock)
		if c.IsEmpty() {
			delete(s.entries, m)
		}
	}
}

func (s *Orswot) applyDeferred() {
	pending := s.deferred
	s.deferred = make(map[string]deferred)
	for _, d := range pending {
		s.applyRm(d.clock, d.sortedNames())
	}
}

// Merge merges other into s. other is not modified.
func (s *Orswot) Merge(other *Orswot) {
	for m, c := range s.entries {
		if _, ok := other.entries[m]; ok {
			continue
		}
		// other either removed this version or never saw it
		if c.LessOrEqual(other.clock) {
			delete(s.entries, m)
			continue
		}
		c.ResetRemove(other.clock)
	}

	for m, oc := range other.entries {
		ours, ok := s.entries[m]
		if !ok {
			if oc.LessOrEqual(s.clock) {
				continue
			}
			c := oc.Copy()
			c.ResetRemove(s.clock)
			s.entries[m] = c
			continue
		}
		common := clock.Intersection(oc, ours)
		common.Merge(oc.CloneWithout(s.clock))
		common.Merge(ours.CloneWithout(other.clock))
		if common.IsEmpty() {
			delete(s.entries, m)
		} else {
			s.entries[m] = common
		}
	}

	for _, d := range other.deferred {
		s.applyRm(d.clock.Copy(), d.sortedNames())
	}

	s.clock.Merge(other.clock)
	s.applyDeferred()
}

// ResetRemove forgets every dot covered by rmClock.
func (s *Orswot) ResetRemove(rmClock clock.VClock) {
	for m, c := range s.entries {
		c.ResetRemove(rmClock)
		if c.IsEmpty() {
			delete(s.entries, m)
		}
	}

	pending := s.deferred
	s.deferred = make(map[string]deferred)
	for _, d := range pending {
		c := d.clock.Copy()
		c.ResetRemove(rmClock)
		if c.IsEmpty() {
			continue
		}
		addDeferred(s.deferred, c, d.sortedNames())
	}

	s.clock.ResetRemove(rmClock)
}

// Equal reports whether both sets hold the same causal state.
func (s *Orswot) Equal(other *Orswot) bool {
	if !s.clock.Equal(other.clock) || len(s.entries) != len(other.entries) {
		return false
	}
	for m, c := range s.entries {
		oc, ok := other.entries[m]
		if !ok || !c.Equal(oc) {
			return false
		}
	}
	return deferredEqual(s.deferred, other.deferred)
}

// Clone returns a deep copy.
func (s *Orswot) Clone() *Orswot {
	cp := &Orswot{
		clock:    s.clock.Copy(),
		entries:  make(map[string]clock.VClock, len(s.entries)),
		deferred: make(map[string]deferred, len(s.deferred)),
	}
	for m, c := range s.entries {
		cp.entries[m] = c.Copy()
	}
	for k, d := range s.deferred {
		cp.deferred[k] = d.clone()
	}
	return cp
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
