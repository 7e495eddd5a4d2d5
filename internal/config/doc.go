// Package config loads, normalizes, and validates PingAnalyst configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for model
// credentials. A .env file in the working directory is loaded before the
// environment is consulted. The Config type centralizes every knob the daemon
// and CLI need so sampling, retry, and provider settings are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
