// Package config loads, normalizes, and validates rpanode configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// RPANODE_BACKEND_URL and GOOGLE_VISION_API_KEY. The Config type centralizes
// every knob the daemon and CLI need: backend endpoints, the screen driver,
// watcher and rescue timing, and the cycle schedule.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
