// Package convergence compares the final maps of all replicas. It groups
// replicas holding identical state and flags replicas whose clock is
// dominated by another's, i.e. that missed updates the others saw.
package convergence
