// Package model holds the domain records shared by the engine: threads,
// messages, runs, actions and tool descriptions.
//
// Invariants:
//   - The role set is closed (user, assistant, system, tool).
//   - An assistant message is finalized exactly once per stream pass.
//   - A run has at most one unresolved action.
package model
