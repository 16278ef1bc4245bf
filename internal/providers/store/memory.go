package store

import (
	"context"
	"sync"

	"github.com/techscaniq/diligence/internal/shared/types"
)

// Memory is an in-process store for development and tests. It implements
// the same contracts as the Postgres store.
type Memory struct {
	mu        sync.RWMutex
	reports   map[string]string
	links     map[string]string
	citations map[string][]types.Claim
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		reports:   make(map[string]string),
		links:     make(map[string]string),
		citations: make(map[string][]types.Claim),
	}
}

// SaveReport stores a report's content, replacing any prior content
func (m *Memory) SaveReport(ctx context.Context, reportID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[reportID] = content
	return nil
}

// LinkReportToRequest associates a report with its scan request
func (m *Memory) LinkReportToRequest(ctx context.Context, requestID, reportID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[requestID] = reportID
	return nil
}

// CreateCitations stores a report's claims and returns how many were written
func (m *Memory) CreateCitations(ctx context.Context, reportID string, claims []types.Claim) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.citations[reportID] = append(m.citations[reportID], claims...)
	return len(claims), nil
}

// Report returns a stored report's content
func (m *Memory) Report(reportID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.reports[reportID]
	return content, ok
}

// ReportForRequest returns the report linked to a scan request
func (m *Memory) ReportForRequest(requestID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reportID, ok := m.links[requestID]
	return reportID, ok
}

// Citations returns a report's stored claims
func (m *Memory) Citations(reportID string) []types.Claim {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.citations[reportID]
}
