package convergence

import (
	"fmt"
	"strings"

	"friendmap/internal/clock"
	"friendmap/internal/crdt"
)

// Replica is one replica's final state.
type Replica struct {
	ID    clock.ActorID
	State *crdt.Map
}

// State is a distinct final map and the replicas that hold it.
type State struct {
	Members []clock.ActorID
	Clock   clock.VClock
	Keys    int
}

// Result is the outcome of comparing replicas.
type Result struct {
	// States holds one entry per distinct map, in the order replicas were given.
	States []State

	// Behind lists replicas whose map clock is strictly before another
	// replica's, in the order they were given.
	Behind []clock.ActorID
}

// Reconcile groups replicas by equal state. A nil State is treated as empty.
func Reconcile(replicas []Replica) Result {
	res := Result{States: []State{}, Behind: []clock.ActorID{}}
	if len(replicas) == 0 {
		return res
	}

	maps := make([]*crdt.Map, len(replicas))
	for i, r := range replicas {
		maps[i] = r.State
		if maps[i] == nil {
			maps[i] = crdt.NewMap()
		}
	}

	reps := make([]*crdt.Map, 0)
	for i, r := range replicas {
		found := false
		for j, rep := range reps {
			if maps[i].Equal(rep) {
				res.States[j].Members = append(res.States[j].Members, r.ID)
				found = true
				break
			}
		}
		if !found {
			reps = append(reps, maps[i])
			res.States = append(res.States, State{
				Members: []clock.ActorID{r.ID},
				Clock:   maps[i].Clock(),
				Keys:    maps[i].Len().Val,
			})
		}
	}

	for i, r := range replicas {
		vc := maps[i].Clock()
		for j := range replicas {
			if i != j && maps[j].Clock().Dominates(vc) {
				res.Behind = append(res.Behind, r.ID)
				break
			}
		}
	}

	return res
}

// Converged returns true if every replica holds the same map.
func (r *Result) Converged() bool {
	return len(r.States) == 1
}

// HasDivergence returns true if replicas ended in different states.
func (r *Result) HasDivergence() bool {
	return len(r.States) > 1
}

// String summarises the groups, e.g. "[1 2 3]" or "[1 2] [3]".
func (r *Result) String() string {
	groups := make([]string, 0, len(r.States))
	for _, s := range r.States {
		ids := make([]string, len(s.Members))
		for i, id := range s.Members {
			ids[i] = fmt.Sprint(uint64(id))
		}
		groups = append(groups, "["+strings.Join(ids, " ")+"]")
	}
	return strings.Join(groups, " ")
}
