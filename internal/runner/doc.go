// Package runner drives one conversational turn: stream a model pass, detect
// a tool call, dispatch it, stream the final answer, and repeat with a
// corrective prompt when the model keeps emitting JSON.
//
// Invariant:
//   - a tool call and its tool message stay adjacent in the thread, so the
//     final pass always sees the call it is answering.
//
// Flow:
//
//	user -> assistant(tool call JSON) -> tool(result envelope) -> assistant(prose)
package runner
