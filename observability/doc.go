// Package observability provides model middlewares that record what a step
// does without altering it: structured logging and Prometheus metrics.
//
//	m := model.Wrap(base,
//		observability.NewLoggingMiddleware(logger, observability.LogLevelStandard),
//		observability.NewMetrics().Middleware(),
//	)
//
// Stream middlewares report completion once the event source has been
// drained, broken off, or failed.
package observability
