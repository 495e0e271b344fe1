// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when scripting model streams and exercising sinks.
// They are not intended for production usage.
package testutil
