// Package history keeps the bounded log of finished generations.
//
// Records are prepended and the log is trimmed to its limit (50 by default)
// in the same transaction, so readers never observe more than the cap. The
// SQLite recorder shares the catalog database; the Redis recorder uses a
// list trimmed with LTRIM inside MULTI/EXEC.
package history
