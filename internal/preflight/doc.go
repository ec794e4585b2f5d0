// Package preflight provides readiness checks for the directories, the
// hosted model credentials and the generation backends Magpie depends on.
//
// The daemon logs a summary at startup and the CLI "magpie status" command
// prints every result. Disabled backends are reported as passing without
// being contacted.
package preflight
