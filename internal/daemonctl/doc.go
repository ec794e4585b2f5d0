// Package daemonctl starts, stops and restarts a background magpie daemon.
//
// Liveness is judged through the daemon's HTTP status endpoint: a transport
// error means nothing is listening, while any HTTP response (including 401)
// means a daemon owns the address. Stopping sends SIGTERM to the pid the
// daemon reports and escalates to SIGKILL after a grace period.
package daemonctl
