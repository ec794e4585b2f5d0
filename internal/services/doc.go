// Package services defines shared utilities consumed by the generation
// orchestrator, the HTTP API, and the external backend integrations.
//
// Key responsibilities:
//   - Context helpers that stamp page IDs, stages, backend prompt IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (configuration vs timeout vs upstream rejection) consistently.
//
// Use these helpers when wiring new studio features so operational behaviour
// (error handling, observability) stays uniform.
package services
