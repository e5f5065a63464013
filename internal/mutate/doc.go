// Package mutate decides and builds the one change a replica makes to its
// map on every tick.
//
// The choice is weighted: an ActionGenerator maps 100 slots to actions, so an
// action given 30 percent occupies 30 slots. The Engine overrides the draw to
// keep the number of keys between a floor and a ceiling.
package mutate
