// Package config loads, normalizes, and validates Magpie configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GEMINI_API_KEY, MAGPIE_API_TOKEN and REDIS_URL. A .env file in the working
// directory or beside the config file is loaded first without overriding the
// real environment.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
