// Package config loads, normalizes, and validates reelforge configuration.
//
// Configuration lives in a TOML file (default ~/.config/reelforge/config.toml,
// falling back to ./reelforge.toml). Missing values are filled from Default,
// secrets may come from environment variables, and paths are expanded before
// Validate runs. Backend constructors receive the typed sections from here;
// nothing outside this package reads the environment for settings.
package config
