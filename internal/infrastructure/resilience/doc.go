/*
Package resilience provides the failure-isolation primitives the pipeline
uses to survive unreliable external dependencies.

# Overview

Three pieces compose at every external call site:

  - Breaker: per-dependency circuit breaker (Closed, Open, Half-Open)
  - Registry: construct-once cache of named breakers shared process-wide
  - Do/DoValue: bounded exponential-backoff retry with pluggable
    retryability classification

# Usage

	registry := resilience.NewRegistry(resilience.DefaultOptions())
	breaker := registry.Get("ai-anthropic")

	result, err := resilience.DoValue(ctx, resilience.ModelPolicy(),
		func(ctx context.Context) (string, error) {
			return resilience.ExecuteValue(ctx, breaker, invoke)
		})

# States

The breaker transitions between states on call outcomes:

	Closed --[threshold failures]-> Open --[open duration]-> Half-Open
	Half-Open --[threshold successes]-> Closed
	Half-Open --[any failure]-> Open

While open, calls fail immediately with ErrCircuitOpen so a struggling
dependency sees no further load. While half-open, exactly one trial call is
admitted at a time.

# Error Classification

Classify inspects structured ProviderError tags first and falls back to
substring heuristics for opaque third-party errors. Auth and configuration
failures are never retried; rate limits, timeouts, and transient network
failures are.
*/
package resilience
