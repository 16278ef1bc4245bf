// Package health tracks per-phase metrics for a pipeline run and derives
// an aggregate health classification (healthy, degraded, critical).
//
// A Monitor is created per run and injected into the orchestration driver;
// it is not a global. Phases record their lifecycle, errors, retries, and
// fallback usage, and Health() folds those into an overall verdict alongside
// a snapshot of every circuit breaker, so operators can correlate phase
// degradation with a specific failing dependency. Report() renders the same
// data as a deterministic text summary for logs.
package health
