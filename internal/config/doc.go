// Package config loads simulation settings. Values are layered: built-in
// defaults, then an optional YAML file, then FRIENDMAP_* environment
// variables. The CLI applies its flags on top.
package config
