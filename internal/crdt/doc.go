// Package crdt implements the replicated friend map: an observed-remove map
// from a name to an add-biased observed-remove set of names (ORSWOT, an
// OR-set without tombstones).
//
// Every change is expressed as an operation derived from a read context, so
// the operation carries the causal history it was decided against. Replicas
// exchange whole maps and Merge them; Merge is commutative, associative and
// idempotent, so replicas that have seen the same operations are Equal no
// matter the order they were received in.
//
// Removals whose causal context is ahead of the local clock are deferred and
// re-applied once the missing operations arrive.
package crdt
