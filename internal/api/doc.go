// Package api defines the wire-format types of the daemon's HTTP API and a
// small client the CLI uses to query a running daemon.
//
// Catalog and history models are served as-is; their JSON tags already use
// the camelCase names the studio front end expects. The types here cover
// request bodies and responses that have no catalog counterpart.
package api
