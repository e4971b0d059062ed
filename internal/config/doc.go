// Package config loads and validates the unplug TOML configuration.
package config
