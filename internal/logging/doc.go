// Package logging assembles structured slog loggers and formatting helpers used
// across Magpie services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so orchestration code can tag log
// lines with page IDs, prompt IDs, stages, and correlation IDs. When a log
// directory is configured every record is also written as JSON to
// magpie.log beside the human-readable console stream.
package logging
