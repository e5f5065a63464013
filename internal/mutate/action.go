package mutate

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// Slots is the size of the action table; one slot per percent.
const Slots = 100

// Action is a kind of change to the friend map.
type Action int

const (
	// AddKey adds a new key with one friend.
	AddKey Action = iota
	// AddValue adds a friend to an existing key.
	AddValue
	// RemoveKey removes a key and all its friends.
	RemoveKey
	// RemoveValue removes one friend from an existing key.
	RemoveValue
)

var actionNames = [...]string{
	AddKey:      "add_key",
	AddValue:    "add_value",
	RemoveKey:   "remove_key",
	RemoveValue: "remove_value",
}

// String returns the config name of the action.
func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// ErrUnknownAction is returned by ParseAction for unrecognized names.
var ErrUnknownAction = errors.New("unknown action")

// ParseAction parses the config name of an action.
func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Weight is the share of the table given to an action, in percent.
type Weight struct {
	Action  Action
	Percent int
}

// DefaultWeights is used when no action list is configured.
var DefaultWeights = []Weight{
	{Action: AddKey, Percent: 25},
	{Action: AddValue, Percent: 40},
	{Action: RemoveKey, Percent: 10},
	{Action: RemoveValue, Percent: 25},
}

// ErrActionList matches every error returned by NewActionGenerator.
var ErrActionList = errors.New("invalid action list")

// OverflowError is returned when the weights claim more than Slots slots.
// Index is the slot that did not fit.
type OverflowError struct {
	Index int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("action list overflow at slot %d", e.Index)
}

func (e *OverflowError) Is(target error) bool { return target == ErrActionList }

// UnderflowError is returned when the weights leave slots unfilled.
type UnderflowError struct {
	Filled int
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("action list underflow: %d of %d slots filled", e.Filled, Slots)
}

func (e *UnderflowError) Is(target error) bool { return target == ErrActionList }

// Rand is the randomness the package needs. *rand.Rand from math/rand/v2
// satisfies it.
type Rand interface {
	IntN(n int) int
}

// DefaultRand draws from the goroutine-safe global source.
var DefaultRand Rand = globalRand{}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// ActionGenerator draws actions with the probabilities of its weights.
// It is read-only after construction and safe for concurrent use.
type ActionGenerator struct {
	actions [Slots]Action
}

// NewActionGenerator fills the table with consecutive runs of slots, in the
// order the weights are given. The percentages must add up to exactly 100.
func NewActionGenerator(weights []Weight) (*ActionGenerator, error) {
	g := &ActionGenerator{}
	index := 0
	for _, w := range weights {
		if w.Percent < 0 {
			return nil, fmt.Errorf("%w: %s has negative weight %d", ErrActionList, w.Action, w.Percent)
		}
		for i := 0; i < w.Percent; i++ {
			if index >= Slots {
				return nil, &OverflowError{Index: index}
			}
			g.actions[index] = w.Action
			index++
		}
	}
	if index != Slots {
		return nil, &UnderflowError{Filled: index}
	}
	return g, nil
}

// Choose draws an action.
func (g *ActionGenerator) Choose() Action {
	return g.ChooseFrom(DefaultRand)
}

// ChooseFrom draws an action using r.
func (g *ActionGenerator) ChooseFrom(r Rand) Action {
	return g.actions[r.IntN(Slots)]
}

// Share returns how many slots each action occupies.
func (g *ActionGenerator) Share() map[Action]int {
	out := make(map[Action]int)
	for _, a := range g.actions {
		out[a]++
	}
	return out
}
