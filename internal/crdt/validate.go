package crdt

import (
	"errors"
	"fmt"

	"friendmap/internal/clock"
)

// ErrInvalidSnapshot is returned when a map cannot be merged safely.
var ErrInvalidSnapshot = errors.New("snapshot is not mergeable")

// ValidateMerge checks that other can be merged into m. It rejects maps whose
// internal causal bookkeeping is inconsistent, which only happens when a peer
// is corrupt or speaks a different format. Neither map is modified.
func (m *Map) ValidateMerge(other *Map) error {
	if err := m.validate(); err != nil {
		return fmt.Errorf("%w: local: %w", ErrInvalidSnapshot, err)
	}
	if err := other.validate(); err != nil {
		return fmt.Errorf("%w: remote: %w", ErrInvalidSnapshot, err)
	}
	return nil
}

func (m *Map) validate() error {
	if err := validClock(m.clock); err != nil {
		return fmt.Errorf("map clock: %w", err)
	}
	for key, e := range m.entries {
		if e.clock.IsEmpty() {
			return fmt.Errorf("key %q has no live version", key)
		}
		if err := validClock(e.clock); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		if !e.clock.LessOrEqual(m.clock) {
			return fmt.Errorf("key %q clock %s is ahead of map clock %s", key, e.clock, m.clock)
		}
		if !e.val.clock.LessOrEqual(m.clock) {
			return fmt.Errorf("key %q set clock %s is ahead of map clock %s", key, e.val.clock, m.clock)
		}
		if err := e.val.validate(); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
	}
	for _, d := range m.deferred {
		if err := validClock(d.clock); err != nil {
			return fmt.Errorf("deferred removal: %w", err)
		}
		if len(d.names) == 0 {
			return errors.New("deferred removal has no keys")
		}
	}
	return nil
}

func (s *Orswot) validate() error {
	if err := validClock(s.clock); err != nil {
		return fmt.Errorf("set clock: %w", err)
	}
	for member, c := range s.entries {
		if c.IsEmpty() {
			return fmt.Errorf("member %q has no live version", member)
		}
		if err := validClock(c); err != nil {
			return fmt.Errorf("member %q: %w", member, err)
		}
		if !c.LessOrEqual(s.clock) {
			return fmt.Errorf("member %q clock %s is ahead of set clock %s", member, c, s.clock)
		}
	}
	for _, d := range s.deferred {
		if err := validClock(d.clock); err != nil {
			return fmt.Errorf("deferred removal: %w", err)
		}
	}
	return nil
}

func validClock(vc clock.VClock) error {
	for actor, counter := range vc {
		if actor == 0 {
			return errors.New("actor id 0 is reserved")
		}
		if counter == 0 {
			return fmt.Errorf("actor %d has a zero counter", actor)
		}
	}
	return nil
}
