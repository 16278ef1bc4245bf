// Package server wires the pipeline driver and its collaborators into the
// HTTP surface: scan submission and status, per-run health and operator
// reports, a WebSocket event stream, and Prometheus metrics. Runs execute
// asynchronously; submission returns immediately with a run id.
package server
