// Package step runs one model call. The Executor streams the call through
// the canonicalizer, forwards every canonical part to an optional
// stream.Writer and folds the parts into an immutable Result.
//
// The executor never retries. A transport failure is written as a terminal
// error part and returned together with the partial Result. A finish reason
// outside the unified set is a protocol error. A stream that ends without a
// finish part yields a Result whose FinishReason is undefined.
package step
