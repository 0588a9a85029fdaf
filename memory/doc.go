// Package memory provides thread, message, run and action persistence.
//
// Persistence model:
//   - Store is the contract every backend satisfies (in-memory here, SQL in internal/sqlstore).
//   - Each write commits independently. Status updates are compare-and-set.
//   - Message and action creation is idempotent on id so retried writes never duplicate.
//   - Transcripts are plain JSON files used by the CLI to resume a thread.
package memory
