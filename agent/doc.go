// Package agent drives a language model through a bounded sequence of steps,
// intercepting tool calls and feeding their results back into the
// conversation.
//
// The Loop is an explicit state machine:
//
//	Ready --Next--> PendingToolCalls --Resume--> Ready ... --> Done
//
// Next issues one step. When the step finishes with tool calls the loop
// appends an assistant message holding the calls and pauses in
// PendingToolCalls until the caller supplies one result per call through
// Resume. Any other finish reason ends the run. Run wraps the loop and
// executes local tools with a tool.Executor.
//
// Per-step behavior can be adjusted with a PrepareStep hook, stop conditions
// and an OnStepFinish callback. A step that ends without a finish signal is
// treated as an inconclusive stop rather than an error.
package agent
