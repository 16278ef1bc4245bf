// Package id provides centralized ID generation for the pipeline.
//
// All identifiers are ULIDs with a type prefix (run_*, rpt_*, ...): they
// sort lexicographically by creation time, which keeps report and evidence
// listings in chronological order without extra timestamps, and the prefix
// makes logs readable.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID identifies one pipeline run
type RunID string

// ReportID identifies a generated report
type ReportID string

// CollectionID identifies an evidence collection
type CollectionID string

// EvidenceID identifies a single evidence item
type EvidenceID string

// CitationID identifies a citation row
type CitationID string

const (
	RunPrefix        = "run"
	ReportPrefix     = "rpt"
	CollectionPrefix = "col"
	EvidencePrefix   = "ev"
	CitationPrefix   = "cit"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator with secure entropy
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewRunID generates a new pipeline run ID
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

// NewReportID generates a new report ID
func NewReportID() ReportID {
	return ReportID(Default().GenerateWithPrefix(ReportPrefix))
}

// NewCollectionID generates a new evidence collection ID
func NewCollectionID() CollectionID {
	return CollectionID(Default().GenerateWithPrefix(CollectionPrefix))
}

// NewEvidenceID generates a new evidence item ID
func NewEvidenceID() EvidenceID {
	return EvidenceID(Default().GenerateWithPrefix(EvidencePrefix))
}

// NewCitationID generates a new citation ID
func NewCitationID() CitationID {
	return CitationID(Default().GenerateWithPrefix(CitationPrefix))
}

func (id RunID) String() string        { return string(id) }
func (id ReportID) String() string     { return string(id) }
func (id CollectionID) String() string { return string(id) }
func (id EvidenceID) String() string   { return string(id) }
func (id CitationID) String() string   { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}
