// Package testutil provides testing utilities and mocks for pipeline tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/techscaniq/diligence/internal/providers/evidence"
	"github.com/techscaniq/diligence/internal/shared/types"
)

// MockInvoker is a mock implementation of ai.Invoker for testing.
type MockInvoker struct {
	mock.Mock
}

// Invoke mocks a model invocation.
func (m *MockInvoker) Invoke(ctx context.Context, prompt, modelID string) (string, error) {
	args := m.Called(ctx, prompt, modelID)
	return args.String(0), args.Error(1)
}

// MockCollector is a mock implementation of evidence.Collector for testing.
type MockCollector struct {
	mock.Mock
}

// Collect mocks an evidence collection pass.
func (m *MockCollector) Collect(ctx context.Context, company, website string, criteria evidence.Criteria) (*evidence.Collection, error) {
	args := m.Called(ctx, company, website, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*evidence.Collection), args.Error(1)
}

// MockReportStore is a mock implementation of the report store contracts.
type MockReportStore struct {
	mock.Mock
}

// SaveReport mocks report persistence.
func (m *MockReportStore) SaveReport(ctx context.Context, reportID, content string) error {
	args := m.Called(ctx, reportID, content)
	return args.Error(0)
}

// LinkReportToRequest mocks the request-to-report link.
func (m *MockReportStore) LinkReportToRequest(ctx context.Context, requestID, reportID string) error {
	args := m.Called(ctx, requestID, reportID)
	return args.Error(0)
}

// CreateCitations mocks citation persistence.
func (m *MockReportStore) CreateCitations(ctx context.Context, reportID string, claims []types.Claim) (int, error) {
	args := m.Called(ctx, reportID, claims)
	return args.Int(0), args.Error(1)
}

// NewMockInvoker creates a mock invoker that returns the given response
// for every model by default.
func NewMockInvoker(t *testing.T, response string) *MockInvoker {
	t.Helper()
	m := new(MockInvoker)
	m.On("Invoke", mock.Anything, mock.Anything, mock.Anything).
		Return(response, nil).
		Maybe()
	return m
}

// NewMockCollector creates a mock collector that returns a small fixed
// collection by default.
func NewMockCollector(t *testing.T) *MockCollector {
	t.Helper()
	m := new(MockCollector)
	m.On("Collect", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(TestCollection(), nil).
		Maybe()
	return m
}

// NewMockReportStore creates a mock store where every write succeeds.
func NewMockReportStore(t *testing.T) *MockReportStore {
	t.Helper()
	m := new(MockReportStore)
	m.On("SaveReport", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).
		Maybe()
	m.On("LinkReportToRequest", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).
		Maybe()
	m.On("CreateCitations", mock.Anything, mock.Anything, mock.Anything).
		Return(2, nil).
		Maybe()
	return m
}

// TestCollection returns a small evidence collection fixture.
func TestCollection() *evidence.Collection {
	return &evidence.Collection{
		CollectionID: "col_fixture",
		Items: []evidence.Item{
			{ID: "ev_1", Type: evidence.TypeIdentity, Summary: "Acme Robotics", Confidence: 0.9, Source: "https://acme.test"},
			{ID: "ev_2", Type: evidence.TypeOffering, Summary: "Autonomous picking systems", Confidence: 0.6, Source: "https://acme.test"},
		},
	}
}

// TestRequest returns a scan request fixture.
func TestRequest() types.ScanRequest {
	return types.ScanRequest{
		RequestID: "run_fixture",
		Company:   "Acme Robotics",
		Website:   "https://acme.test",
		Thesis:    "Warehouse automation adoption accelerates",
		Models:    []string{"gpt-4"},
	}
}
