// Package core provides the foundational domain types shared by every stage
// of the streaming tool-calling pipeline:
//
//   - Messages and their role-specific content parts (the conversation prompt)
//   - Tool result outputs (text, json, content, error-text, error-json, execution-denied)
//   - Finish reasons and token usage reported by a model step
//   - The error taxonomy (transport, protocol, tool, sink, cancellation)
//
// The package has no dependencies on providers, codecs or sinks; those layers
// import core, never the other way round.
package core
