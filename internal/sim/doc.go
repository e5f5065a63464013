// Package sim runs a whole simulation: it starts one replica per actor on a
// shared gossip bus, waits for shutdown, halts every replica and reports
// whether their final maps converged.
package sim
