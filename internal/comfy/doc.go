// Package comfy is the HTTP client for node-graph image generation backends.
//
// It uploads reference images, queues populated graphs, reads job history,
// and probes backend health. Failures are typed: *StatusError when the
// backend answered with a non-2xx status (body truncated to 100 characters)
// and *NetworkError, carrying remediation text, when no response arrived.
// ExtractOutputs turns a finished history entry into view URLs and text.
package comfy
