// Package ai implements the AI model invoker collaborator: an HTTP client
// for hosted completion APIs that surfaces structured, classifiable errors
// (auth, rate limit, timeout, network) for the retry layer, plus an
// optional Redis-backed response cache for identical invocations.
package ai
