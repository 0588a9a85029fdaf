// Package windowing trims a thread to the newest messages that fit a token
// budget while keeping each tool call next to its result.
package windowing
