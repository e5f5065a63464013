// Package replica runs one member of the simulation.
//
// An Actor owns a friend map and loops until halted:
// - on a random tick it mutates the map and broadcasts the whole map
// - on a message from another replica it validates and merges that map
// - on halt, or when the gossip bus closes, it stops
//
// Counters record how many received maps were already contained in local
// state, which shows the replicas converging.
package replica
