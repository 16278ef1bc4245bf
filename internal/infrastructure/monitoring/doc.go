/*
Package monitoring provides Prometheus metrics for the pipeline service.

# Overview

Tracks HTTP traffic, pipeline runs and phases, external provider calls,
circuit breaker transitions, structured output recovery outcomes, and
WebSocket activity.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record pipeline events
	metrics.RecordPhase("analysis", "completed", elapsed)
	metrics.RecordBreakerTransition("model:gpt-4", "closed", "open")

	// Time provider calls
	timer := monitoring.NewTimer(metrics, "evidence-web")
	// ... perform call ...
	timer.Stop("success")

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
