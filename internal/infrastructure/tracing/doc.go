/*
Package tracing provides lightweight request tracing.

# Overview

Follows OpenTelemetry concepts with a minimal implementation: trace and
span IDs propagate via HTTP headers, spans log through the structured
logger, and collection is buffered so instrumentation never blocks a
request.

# Usage

	// Create tracer
	tracer := tracing.New("diligence", logger)

	// HTTP middleware
	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Trace Format

Traces use standard HTTP headers for propagation:
  - X-Trace-ID: Unique identifier for entire request flow
  - X-Span-ID: Identifier for current operation
*/
package tracing
