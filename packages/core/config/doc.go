// Package config handles configuration loading and management for ptf.
//
// It provides functionality for:
//   - Loading configuration from ptf.yaml / .ptf.yaml files
//   - .env loading and PTF_* environment variable overrides
//   - Default configuration values
//   - Propagating a config snapshot to worker processes
package config
