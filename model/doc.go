// Package model defines the provider adapter contract used by the step
// executor, together with middleware wrap points and test helpers.
//
// A LanguageModel exposes two calls:
//   - DoGenerate returns a complete result in one response
//   - DoStream returns a lazy event source that the stream package
//     canonicalizes
//
// Providers (e.g. OpenAI, Anthropic) live in sub packages so the core never
// depends on a vendor SDK. Wrap decorates a model with Middleware; the first
// middleware passed is the outermost.
package model
