// Package config provides YAML configuration loading and validation
// for the spatial audio mixer service: UDP/HTTP endpoints, ring buffer
// sizing, mix loop options and logging.
package config
