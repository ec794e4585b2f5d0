// Package generation runs a page's workflow on a backend: select a server,
// upload the reference image, inject user values into a copy of the graph,
// submit it, poll until outputs appear and append the result to history.
//
// Configuration faults (no usable backend, page without a workflow) are
// reported before any network call. Polling honours context cancellation and
// returns as soon as the context ends.
package generation
