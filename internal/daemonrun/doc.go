// Package daemonrun assembles the daemon process: logger, pid file, catalog
// store, history recorder and hosted model client, then runs the daemon
// until a termination signal arrives.
package daemonrun
