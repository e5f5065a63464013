// Package clock provides the version vectors used as causal contexts by the
// replicated friend map. A clock maps each actor to the highest operation
// counter seen from it, and a dot names a single operation.
package clock
