// Package evidence implements the evidence collector collaborator. The web
// collector fetches a company's public site, extracts typed evidence items
// (identity, positioning, offering, technology, content) with per-item
// confidence, and sanitizes everything it keeps. Summarize folds a
// collection into the confidence statistics reported per phase.
package evidence
