// Package pipeline drives a due-diligence run through its four phases:
// evidence collection, multi-model analysis, citation linking, and report
// assembly. Every external call goes through retry and a named circuit
// breaker, model responses go through structured output recovery, and the
// run's health is recorded phase by phase. A per-phase policy table decides
// whether an irrecoverable phase failure aborts the run, degrades it, or
// triggers a named fallback.
package pipeline
