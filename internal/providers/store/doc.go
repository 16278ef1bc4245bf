// Package store persists pipeline outputs in Postgres: report content,
// request-to-report links, and the citation rows produced by the citation
// linking phase. Writes are batched where the pipeline produces many rows
// at once.
package store
