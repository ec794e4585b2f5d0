// Package logs reads the daemon's JSON log file for `magpie logs`.
//
// Tail reads with bounded memory, supports a negative offset for "last N
// lines", and can wait for new lines in follow mode. ParseEntry and Filter
// turn the JSON lines back into readable, filterable records.
package logs
