// Package daemon coordinates the long-running Magpie process.
//
// It wires the catalog store, the history recorder, the generation service
// and the hosted model client behind the JSON HTTP API, and runs the workflow
// import watcher alongside it. A flock on the data directory prevents two
// daemons from sharing one database.
//
// Handlers stay thin: they decode the request, call one store or service
// method and map the error taxonomy onto HTTP status codes (400 for
// configuration and validation, 404, 502 for upstream rejections, 503 when a
// backend is unreachable, 504 for timeouts).
package daemon
