// Package names provides the pool of person names the simulation draws keys
// and friends from.
package names
