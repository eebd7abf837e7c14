// Package config loads and validates the fleet-sync application
// configuration from YAML, with environment overrides for credentials and
// the store address.
package config
