// Package main hosts the magpie CLI.
//
// Catalog commands (workflows, pages, backends) and one-shot generation work
// directly against the local catalog database, so they are usable with or
// without a running daemon. Status and notification commands talk to the
// daemon over its HTTP API. `magpie serve` runs the daemon in the foreground;
// start, stop and restart manage a detached one.
package main
