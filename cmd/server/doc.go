// Package main is the entry point for the diligence pipeline server.
//
// The server fronts the resilient due-diligence pipeline: scan requests
// come in over REST, run asynchronously through evidence collection,
// multi-model analysis, citation linking, and report assembly, and stream
// their phase events over WebSocket.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
