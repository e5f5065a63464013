// Package shutdown provides the halt flag the supervisor flips once to stop
// every replica.
package shutdown
