package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techscaniq/diligence/internal/health"
	"github.com/techscaniq/diligence/internal/infrastructure/resilience"
	"github.com/techscaniq/diligence/internal/providers/evidence"
	"github.com/techscaniq/diligence/internal/shared/types"
)

type fakeCollector struct {
	collect func(ctx context.Context, company, website string, criteria evidence.Criteria) (*evidence.Collection, error)
}

func (f *fakeCollector) Collect(ctx context.Context, company, website string, criteria evidence.Criteria) (*evidence.Collection, error) {
	return f.collect(ctx, company, website, criteria)
}

type fakeInvoker struct {
	invoke func(ctx context.Context, prompt, modelID string) (string, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, prompt, modelID string) (string, error) {
	return f.invoke(ctx, prompt, modelID)
}

type fakeStore struct {
	mu      sync.Mutex
	reports map[string]string
	links   map[string]string
	claims  []types.Claim
	saveErr error
	citeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{reports: make(map[string]string), links: make(map[string]string)}
}

func (f *fakeStore) SaveReport(ctx context.Context, reportID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.reports[reportID] = content
	return nil
}

func (f *fakeStore) LinkReportToRequest(ctx context.Context, requestID, reportID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[requestID] = reportID
	return nil
}

func (f *fakeStore) CreateCitations(ctx context.Context, reportID string, claims []types.Claim) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.citeErr != nil {
		return 0, f.citeErr
	}
	f.claims = append(f.claims, claims...)
	return len(claims), nil
}

func testCollection() *evidence.Collection {
	return &evidence.Collection{
		CollectionID: "col_test",
		Items: []evidence.Item{
			{ID: "ev_1", Type: evidence.TypeIdentity, Summary: "Acme Robotics", Confidence: 0.9, Source: "https://acme.test"},
			{ID: "ev_2", Type: evidence.TypeOffering, Summary: "Autonomous picking", Confidence: 0.6, Source: "https://acme.test"},
		},
	}
}

func okCollector() *fakeCollector {
	return &fakeCollector{collect: func(ctx context.Context, company, website string, criteria evidence.Criteria) (*evidence.Collection, error) {
		return testCollection(), nil
	}}
}

const goodAnalysis = `{"score": 0.8, "summary": "Strong thesis fit.", "strengths": ["clear offering"], "risks": ["small team"]}`

func testRequest() types.ScanRequest {
	return types.ScanRequest{
		RequestID: "run_test",
		Company:   "Acme Robotics",
		Website:   "https://acme.test",
		Thesis:    "Warehouse automation adoption accelerates",
		Models:    []string{"gpt-4"},
	}
}

func newTestDriver(collector *fakeCollector, invoker *fakeInvoker, store *fakeStore, opts Options) *Driver {
	return NewDriver(Deps{
		Invoker:   invoker,
		Collector: collector,
		Reports:   store,
		Citations: store,
		Breakers:  resilience.NewRegistry(resilience.DefaultOptions()),
	}, opts)
}

func TestRunHealthy(t *testing.T) {
	store := newFakeStore()
	invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
		assert.Contains(t, prompt, "Acme Robotics")
		assert.Contains(t, prompt, "ev_1")
		return goodAnalysis, nil
	}}

	var mu sync.Mutex
	var events []Event
	driver := newTestDriver(okCollector(), invoker, store, Options{
		Listener: func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})

	result, err := driver.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "run_test", result.RequestID)
	assert.NotEmpty(t, result.ReportID)
	assert.False(t, result.Partial)

	// Report persisted and linked
	content, ok := store.reports[result.ReportID]
	require.True(t, ok)
	assert.Contains(t, content, "Strong thesis fit.")
	assert.Equal(t, result.ReportID, store.links["run_test"])

	// Claims linked back to evidence
	require.NotEmpty(t, store.claims)
	assert.Equal(t, "ev_1", store.claims[0].EvidenceID)

	// Health is queryable after the run
	h, ok := driver.RunHealth("run_test")
	require.True(t, ok)
	assert.Equal(t, health.StatusHealthy, h.OverallStatus)

	// All four phases started and completed in order
	var sequence []string
	for _, e := range events {
		sequence = append(sequence, e.Phase+":"+e.Status)
	}
	assert.Equal(t, []string{
		PhaseEvidence + ":started", PhaseEvidence + ":completed",
		PhaseAnalysis + ":started", PhaseAnalysis + ":completed",
		PhaseCitations + ":started", PhaseCitations + ":completed",
		PhaseAssembly + ":started", PhaseAssembly + ":completed",
	}, sequence)
}

func TestRunRecoversDirtyModelOutput(t *testing.T) {
	store := newFakeStore()
	invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
		return "Here is my assessment:\n```json\n{\"score\": 0.7, \"summary\": \"Solid fit.\",}\n```", nil
	}}

	driver := newTestDriver(okCollector(), invoker, store, Options{})
	result, err := driver.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, result.Partial)
	assert.Contains(t, store.reports[result.ReportID], "Solid fit.")
}

func TestRunFallsBackWhenModelsFail(t *testing.T) {
	store := newFakeStore()
	invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
		return "", &resilience.ProviderError{Provider: modelID, Kind: resilience.KindAuth, Err: errors.New("invalid api key")}
	}}

	driver := newTestDriver(okCollector(), invoker, store, Options{Models: []string{"gpt-4", "claude-3-opus"}})
	result, err := driver.Run(context.Background(), types.ScanRequest{
		RequestID: "run_fallback",
		Company:   "Acme",
		Website:   "https://acme.test",
		Thesis:    "thesis",
	})
	require.NoError(t, err)
	assert.True(t, result.Partial)

	content := store.reports[result.ReportID]
	assert.Contains(t, content, FallbackBaseline)

	h, ok := driver.RunHealth("run_fallback")
	require.True(t, ok)
	assert.Equal(t, health.StatusDegraded, h.OverallStatus)
	assert.Equal(t, 1, h.TotalFallbacks)
}

func TestRunFallsBackOnUnrecoverableOutput(t *testing.T) {
	store := newFakeStore()
	invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
		return "I cannot answer that in the requested format.", nil
	}}

	driver := newTestDriver(okCollector(), invoker, store, Options{})
	result, err := driver.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Contains(t, store.reports[result.ReportID], FallbackBaseline)
}

func TestRunAbortsWhenEvidenceFails(t *testing.T) {
	store := newFakeStore()
	collector := &fakeCollector{collect: func(ctx context.Context, company, website string, criteria evidence.Criteria) (*evidence.Collection, error) {
		return nil, &resilience.ProviderError{Provider: "evidence-web", Kind: resilience.KindAuth, Err: errors.New("blocked")}
	}}
	invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
		t.Fatal("analysis must not run without evidence")
		return "", nil
	}}

	driver := newTestDriver(collector, invoker, store, Options{})
	_, err := driver.Run(context.Background(), testRequest())
	require.Error(t, err)

	var phaseErr *PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, PhaseEvidence, phaseErr.Phase)
	assert.Empty(t, store.reports)

	h, ok := driver.RunHealth("run_test")
	require.True(t, ok)
	assert.Equal(t, health.StatusCritical, h.OverallStatus)
}

func TestRunContinuesWhenEvidenceDegrades(t *testing.T) {
	store := newFakeStore()
	collector := &fakeCollector{collect: func(ctx context.Context, company, website string, criteria evidence.Criteria) (*evidence.Collection, error) {
		return nil, &resilience.ProviderError{Provider: "evidence-web", Kind: resilience.KindAuth, Err: errors.New("blocked")}
	}}
	invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
		return goodAnalysis, nil
	}}

	policies := DefaultPolicies()
	policies[PhaseEvidence] = PhasePolicy{Action: ActionDegrade}

	var mu sync.Mutex
	var events []Event
	driver := newTestDriver(collector, invoker, store, Options{
		Policies: policies,
		Listener: func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})

	result, err := driver.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, result.Partial)

	// The run finishes on an empty collection; the report still lands
	assert.Contains(t, store.reports[result.ReportID], "Strong thesis fit.")
	for _, claim := range store.claims {
		assert.Empty(t, claim.EvidenceID)
	}

	var evidenceStatus []string
	for _, e := range events {
		if e.Phase == PhaseEvidence {
			evidenceStatus = append(evidenceStatus, e.Status)
		}
	}
	assert.Equal(t, []string{EventStarted, EventDegraded}, evidenceStatus)

	h, _ := driver.RunHealth("run_test")
	assert.Equal(t, health.StatusDegraded, h.OverallStatus)
}

func TestPhaseFailurePolicyMatrix(t *testing.T) {
	failAt := func(phase string) (*fakeCollector, *fakeInvoker, *fakeStore) {
		fail := &resilience.ProviderError{Provider: phase, Kind: resilience.KindAuth, Err: errors.New("down")}
		store := newFakeStore()
		collector := okCollector()
		invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
			return goodAnalysis, nil
		}}
		switch phase {
		case PhaseEvidence:
			collector = &fakeCollector{collect: func(ctx context.Context, company, website string, criteria evidence.Criteria) (*evidence.Collection, error) {
				return nil, fail
			}}
		case PhaseAnalysis:
			invoker = &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
				return "", fail
			}}
		case PhaseCitations:
			store.citeErr = fail
		case PhaseAssembly:
			store.saveErr = fail
		}
		return collector, invoker, store
	}

	for _, tc := range []struct {
		phase     string
		action    FailureAction
		wantAbort bool
	}{
		{PhaseEvidence, ActionAbort, true},
		{PhaseEvidence, ActionDegrade, false},
		{PhaseAnalysis, ActionAbort, true},
		{PhaseAnalysis, ActionDegrade, false},
		{PhaseCitations, ActionAbort, true},
		{PhaseCitations, ActionDegrade, false},
		{PhaseAssembly, ActionAbort, true},
		{PhaseAssembly, ActionDegrade, false},
	} {
		t.Run(tc.phase+"_"+string(tc.action), func(t *testing.T) {
			collector, invoker, store := failAt(tc.phase)
			policies := DefaultPolicies()
			policies[tc.phase] = PhasePolicy{Action: tc.action}

			driver := newTestDriver(collector, invoker, store, Options{Policies: policies})
			result, err := driver.Run(context.Background(), testRequest())

			if tc.wantAbort {
				var phaseErr *PhaseError
				require.ErrorAs(t, err, &phaseErr)
				assert.Equal(t, tc.phase, phaseErr.Phase)
				return
			}
			require.NoError(t, err)
			assert.True(t, result.Partial)
		})
	}
}

func TestRunRecordsExpire(t *testing.T) {
	store := newFakeStore()
	invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
		return goodAnalysis, nil
	}}

	driver := newTestDriver(okCollector(), invoker, store, Options{RunRetention: time.Millisecond})
	_, err := driver.Run(context.Background(), testRequest())
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	second := testRequest()
	second.RequestID = "run_second"
	_, err = driver.Run(context.Background(), second)
	require.NoError(t, err)

	// Registering the second run evicted the expired first one
	_, ok := driver.RunHealth("run_test")
	assert.False(t, ok)
	_, ok = driver.RunHealth("run_second")
	assert.True(t, ok)
}

func TestRunDegradesWhenCitationsFail(t *testing.T) {
	store := newFakeStore()
	store.citeErr = &resilience.ProviderError{Provider: "reports-db", Kind: resilience.KindAuth, Err: errors.New("permission denied")}
	invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
		return goodAnalysis, nil
	}}

	driver := newTestDriver(okCollector(), invoker, store, Options{})
	result, err := driver.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, result.Partial)

	// Claims still flow into the assembled report
	assert.Contains(t, store.reports[result.ReportID], "Strong thesis fit.")

	h, _ := driver.RunHealth("run_test")
	assert.Equal(t, health.StatusDegraded, h.OverallStatus)
}

func TestRunCancelledBetweenPhases(t *testing.T) {
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	collector := &fakeCollector{collect: func(ctx context.Context, company, website string, criteria evidence.Criteria) (*evidence.Collection, error) {
		cancel()
		return testCollection(), nil
	}}
	invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
		t.Fatal("no phase may start after cancellation")
		return "", nil
	}}

	driver := newTestDriver(collector, invoker, store, Options{})
	_, err := driver.Run(ctx, testRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.reports)
}

func TestRunPartialModelFailureStaysHealthy(t *testing.T) {
	store := newFakeStore()
	invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
		if modelID == "claude-3-opus" {
			return "", &resilience.ProviderError{Provider: modelID, Kind: resilience.KindAuth, Err: errors.New("no access")}
		}
		return goodAnalysis, nil
	}}

	driver := newTestDriver(okCollector(), invoker, store, Options{Models: []string{"gpt-4", "claude-3-opus"}})
	result, err := driver.Run(context.Background(), testRequest())
	require.NoError(t, err)

	// One surviving model is enough; no fallback occurs
	content := store.reports[result.ReportID]
	assert.Contains(t, content, "gpt-4")
	assert.NotContains(t, content, FallbackBaseline)

	h, _ := driver.RunHealth("run_test")
	assert.Equal(t, 1, h.TotalErrors)
	assert.Zero(t, h.TotalFallbacks)
}

func TestBuildClaimsLinksEvidence(t *testing.T) {
	collection := testCollection()
	analyses := []types.Analysis{{
		Model:     "gpt-4",
		Score:     0.8,
		Summary:   "summary",
		Strengths: []string{"s1", "s2"},
		Risks:     []string{"r1"},
	}}

	claims := buildClaims(analyses, collection)
	require.Len(t, claims, 4)
	assert.Equal(t, "summary", claims[0].Text)
	assert.Equal(t, 0.8, claims[0].Confidence)
	// Round-robin over the two evidence items
	assert.Equal(t, "ev_1", claims[0].EvidenceID)
	assert.Equal(t, "ev_2", claims[1].EvidenceID)
	assert.Equal(t, "ev_1", claims[2].EvidenceID)
}

func TestRunHealthUnknownRun(t *testing.T) {
	driver := newTestDriver(okCollector(), &fakeInvoker{}, newFakeStore(), Options{})
	_, ok := driver.RunHealth("run_missing")
	assert.False(t, ok)
	_, ok = driver.RunReport("run_missing")
	assert.False(t, ok)
}

func TestRunReport(t *testing.T) {
	store := newFakeStore()
	invoker := &fakeInvoker{invoke: func(ctx context.Context, prompt, modelID string) (string, error) {
		return goodAnalysis, nil
	}}

	driver := newTestDriver(okCollector(), invoker, store, Options{})
	_, err := driver.Run(context.Background(), testRequest())
	require.NoError(t, err)

	report, ok := driver.RunReport("run_test")
	require.True(t, ok)
	assert.True(t, strings.Contains(report, PhaseEvidence))
	assert.True(t, strings.Contains(report, PhaseAssembly))
}
