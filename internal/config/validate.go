package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateEject(); err != nil {
		return err
	}
	if err := c.validateSampler(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateEject() error {
	if c.Eject.LockAttempts < 1 {
		return errors.New("eject.lock_attempts must be at least 1")
	}
	if c.Eject.RemovalAttempts < 1 {
		return errors.New("eject.removal_attempts must be at least 1")
	}
	if c.Eject.LockDelayMS < 0 || c.Eject.RemovalDelayMS < 0 || c.Eject.SettleMS < 0 {
		return errors.New("eject delays must not be negative")
	}
	if c.Eject.DisplayWindowSeconds < 1 {
		return errors.New("eject.display_window_seconds must be at least 1")
	}
	if c.Eject.DismountTool == "" {
		return errors.New("eject.dismount_tool must be set")
	}
	return nil
}

func (c *Config) validateSampler() error {
	if c.Sampler.IntervalSeconds < 1 {
		return errors.New("sampler.interval_seconds must be at least 1")
	}
	return nil
}
