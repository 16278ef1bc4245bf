// Package types defines the domain types shared across the pipeline,
// providers, and API surface. Keeping them here avoids import cycles
// between the orchestration driver and the collaborators it drives.
package types
