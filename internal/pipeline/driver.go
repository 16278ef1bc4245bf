package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/techscaniq/diligence/internal/health"
	"github.com/techscaniq/diligence/internal/infrastructure/monitoring"
	"github.com/techscaniq/diligence/internal/infrastructure/resilience"
	"github.com/techscaniq/diligence/internal/providers/ai"
	"github.com/techscaniq/diligence/internal/providers/evidence"
	"github.com/techscaniq/diligence/internal/recovery"
	"github.com/techscaniq/diligence/internal/shared/id"
	"github.com/techscaniq/diligence/internal/shared/types"
)

// ReportStore persists assembled reports
type ReportStore interface {
	SaveReport(ctx context.Context, reportID, content string) error
	LinkReportToRequest(ctx context.Context, requestID, reportID string) error
}

// CitationStore persists claim-to-evidence links
type CitationStore interface {
	CreateCitations(ctx context.Context, reportID string, claims []types.Claim) (int, error)
}

// Breaker names for the pipeline's external dependencies
const (
	breakerEvidence    = "evidence-web"
	breakerStore       = "reports-db"
	breakerModelPrefix = "model:"
)

// analysisSchema is the contract every model response must satisfy
var analysisSchema = recovery.Schema{
	Name: "analysis",
	Fields: []recovery.Field{
		{Name: "score", Type: recovery.FieldNumber, Required: true, Description: "thesis fit between 0 and 1"},
		{Name: "summary", Type: recovery.FieldString, Required: true, Description: "two to three sentence assessment"},
		{Name: "strengths", Type: recovery.FieldArray, Description: "supporting observations"},
		{Name: "risks", Type: recovery.FieldArray, Description: "concerns and open questions"},
	},
}

// Deps are the external collaborators a driver orchestrates
type Deps struct {
	Invoker   ai.Invoker
	Collector evidence.Collector
	Reports   ReportStore
	Citations CitationStore
	Breakers  *resilience.Registry
	Log       *zap.Logger
}

// Options tune driver behavior beyond its collaborators
type Options struct {
	// Models queried during analysis when the request does not name any
	Models []string
	// MaxPages bounds evidence collection per run
	MaxPages int
	// Policies is the per-phase failure-policy table (defaults if nil)
	Policies PolicyTable
	// Thresholds configure health classification (defaults if zero)
	Thresholds health.Thresholds
	// Listener observes phase lifecycle events
	Listener Listener
	// Metrics receives pipeline counters (optional)
	Metrics *monitoring.Metrics
	// RunRetention bounds how long finished runs stay queryable (default 1h)
	RunRetention time.Duration
}

// Driver sequences a due-diligence run through its phases, wrapping every
// external call in retry and circuit breaker protection and recording the
// run's health as it goes.
type Driver struct {
	deps   Deps
	opts   Options
	parser *recovery.Parser
	log    *zap.Logger

	mu   sync.RWMutex
	runs map[string]*runRecord
}

// runRecord retains a run's monitor until the retention window passes
type runRecord struct {
	mon      *health.Monitor
	finished time.Time
}

// NewDriver creates a pipeline driver
func NewDriver(deps Deps, opts Options) *Driver {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Breakers == nil {
		deps.Breakers = resilience.NewRegistry(resilience.DefaultOptions())
	}
	if opts.Policies == nil {
		opts.Policies = DefaultPolicies()
	}
	if opts.Thresholds == (health.Thresholds{}) {
		opts.Thresholds = health.DefaultThresholds()
	}
	if len(opts.Models) == 0 {
		opts.Models = []string{"gpt-4"}
	}
	if opts.RunRetention <= 0 {
		opts.RunRetention = time.Hour
	}

	return &Driver{
		deps:   deps,
		opts:   opts,
		parser: recovery.NewParser(log, recovery.Options{}),
		log:    log,
		runs:   make(map[string]*runRecord),
	}
}

// RunHealth returns the health of a known run
func (d *Driver) RunHealth(runID string) (health.Health, bool) {
	d.mu.RLock()
	rec, ok := d.runs[runID]
	d.mu.RUnlock()
	if !ok {
		return health.Health{}, false
	}
	return rec.mon.Health(), true
}

// RunReport returns the operator report of a known run
func (d *Driver) RunReport(runID string) (string, bool) {
	d.mu.RLock()
	rec, ok := d.runs[runID]
	d.mu.RUnlock()
	if !ok {
		return "", false
	}
	return rec.mon.Report(), true
}

// register records a new run's monitor and evicts finished runs that have
// outlived the retention window.
func (d *Driver) register(runID string, mon *health.Monitor) {
	cutoff := time.Now().Add(-d.opts.RunRetention)
	d.mu.Lock()
	for id, rec := range d.runs {
		if !rec.finished.IsZero() && rec.finished.Before(cutoff) {
			delete(d.runs, id)
		}
	}
	d.runs[runID] = &runRecord{mon: mon}
	d.mu.Unlock()
}

func (d *Driver) markFinished(runID string) {
	d.mu.Lock()
	if rec, ok := d.runs[runID]; ok {
		rec.finished = time.Now()
	}
	d.mu.Unlock()
}

// Run executes one due-diligence pipeline. Phases run in declared order;
// a phase failure is handled per the policy table. Cancellation is honored
// between phases and propagated into in-flight calls.
func (d *Driver) Run(ctx context.Context, req types.ScanRequest) (*types.ScanResult, error) {
	if req.RequestID == "" {
		req.RequestID = id.NewRunID().String()
	}
	models := req.Models
	if len(models) == 0 {
		models = d.opts.Models
	}

	log := d.log.With(zap.String("run_id", req.RequestID), zap.String("company", req.Company))
	mon := health.NewMonitor(d.opts.Thresholds, d.deps.Breakers, log)
	d.register(req.RequestID, mon)
	defer d.markFinished(req.RequestID)

	if d.opts.Metrics != nil {
		d.opts.Metrics.RunStarted()
		defer d.opts.Metrics.RunFinished()
	}

	reportID := id.NewReportID().String()
	log.Info("run started", zap.String("report_id", reportID), zap.Strings("models", models))

	collection, err := d.collectEvidence(ctx, mon, req)
	if err != nil {
		return nil, d.finishFailed(log, req.RequestID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	analyses, err := d.analyze(ctx, mon, req, models, collection)
	if err != nil {
		return nil, d.finishFailed(log, req.RequestID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	claims, err := d.linkCitations(ctx, mon, req.RequestID, reportID, analyses, collection)
	if err != nil {
		return nil, d.finishFailed(log, req.RequestID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.assembleReport(ctx, mon, req, reportID, collection, analyses, claims); err != nil {
		return nil, d.finishFailed(log, req.RequestID, err)
	}

	verdict := mon.Health()
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordRun(string(verdict.OverallStatus))
	}
	log.Info("run finished",
		zap.String("report_id", reportID),
		zap.String("health", string(verdict.OverallStatus)),
		zap.Int("errors", verdict.TotalErrors),
		zap.Int("retries", verdict.TotalRetries),
	)
	if verdict.OverallStatus != health.StatusHealthy {
		log.Warn("run completed with reduced health", zap.String("report", mon.Report()))
	}

	return &types.ScanResult{
		RequestID: req.RequestID,
		ReportID:  reportID,
		Partial:   verdict.OverallStatus != health.StatusHealthy,
	}, nil
}

func (d *Driver) finishFailed(log *zap.Logger, runID string, err error) error {
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordRun("failed")
	}
	log.Error("run failed", zap.Error(err))
	return err
}

// collectEvidence runs the evidence collection phase
func (d *Driver) collectEvidence(ctx context.Context, mon *health.Monitor, req types.ScanRequest) (*evidence.Collection, error) {
	d.startPhase(mon, req.RequestID, PhaseEvidence)

	breaker := d.deps.Breakers.Get(breakerEvidence)
	policy := resilience.DefaultPolicy()
	policy.OnRetry = d.retryObserver(mon, PhaseEvidence)

	criteria := evidence.Criteria{Thesis: req.Thesis, MaxPages: d.opts.MaxPages}
	collection, err := resilience.DoValue(ctx, policy, func(ctx context.Context) (*evidence.Collection, error) {
		return resilience.ExecuteValue(ctx, breaker, func(ctx context.Context) (*evidence.Collection, error) {
			return d.deps.Collector.Collect(ctx, req.Company, req.Website, criteria)
		})
	})
	if err != nil {
		mon.RecordError(PhaseEvidence, err.Error())
		if perr := d.phaseFailed(mon, req.RequestID, PhaseEvidence, err); perr != nil {
			return nil, perr
		}
		// Degrade policy: continue with an empty collection. Downstream
		// phases tolerate zero evidence.
		return &evidence.Collection{CollectionID: id.NewCollectionID().String()}, nil
	}

	d.endPhase(mon, req.RequestID, PhaseEvidence, health.PhaseCompleted, len(collection.Items))
	return collection, nil
}

// analyze fans the analysis out to every requested model and keeps the
// responses that survive recovery and validation.
func (d *Driver) analyze(ctx context.Context, mon *health.Monitor, req types.ScanRequest, models []string, collection *evidence.Collection) ([]types.Analysis, error) {
	d.startPhase(mon, req.RequestID, PhaseAnalysis)

	prompt := d.buildPrompt(req, collection)

	var mu sync.Mutex
	var analyses []types.Analysis
	g, gctx := errgroup.WithContext(ctx)
	for _, model := range models {
		model := model
		g.Go(func() error {
			analysis, err := d.invokeModel(gctx, mon, prompt, model)
			if err != nil {
				// One failing model must not sink its siblings
				mon.RecordError(PhaseAnalysis, fmt.Sprintf("%s: %v", model, err))
				if errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
			mu.Lock()
			analyses = append(analyses, analysis)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(analyses) == 0 {
		return d.analysisFallback(mon, req, models, collection)
	}

	d.endPhase(mon, req.RequestID, PhaseAnalysis, health.PhaseCompleted, len(analyses))
	return analyses, nil
}

// analysisFallback applies the analysis phase's failure policy when no
// model produced a usable response.
func (d *Driver) analysisFallback(mon *health.Monitor, req types.ScanRequest, models []string, collection *evidence.Collection) ([]types.Analysis, error) {
	err := fmt.Errorf("no usable analysis from %d model(s)", len(models))

	policy := d.opts.Policies.For(PhaseAnalysis)
	if policy.Action != ActionFallback || policy.Fallback != FallbackBaseline {
		return nil, d.phaseFailed(mon, req.RequestID, PhaseAnalysis, err)
	}

	mon.RecordFallback(PhaseAnalysis)
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordFallback(PhaseAnalysis)
	}
	d.log.Warn("analysis fell back to baseline heuristic",
		zap.String("run_id", req.RequestID), zap.Error(err))

	analysis := baselineAnalysis(collection)
	d.endPhase(mon, req.RequestID, PhaseAnalysis, health.PhaseDegraded, 1)
	return []types.Analysis{analysis}, nil
}

// invokeModel calls one model through its own breaker and the model retry
// policy, then routes the raw response through structured output recovery.
func (d *Driver) invokeModel(ctx context.Context, mon *health.Monitor, prompt, model string) (types.Analysis, error) {
	breaker := d.deps.Breakers.Get(breakerModelPrefix + model)
	policy := resilience.ModelPolicy()
	policy.OnRetry = d.retryObserver(mon, PhaseAnalysis)

	start := time.Now()
	raw, err := resilience.DoValue(ctx, policy, func(ctx context.Context) (string, error) {
		return resilience.ExecuteValue(ctx, breaker, func(ctx context.Context) (string, error) {
			return d.deps.Invoker.Invoke(ctx, prompt, model)
		})
	})
	if d.opts.Metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
			d.opts.Metrics.RecordProviderError(model, resilience.Classify(err).String())
		}
		d.opts.Metrics.RecordProviderCall(breakerModelPrefix+model, status, time.Since(start))
	}
	if err != nil {
		return types.Analysis{}, err
	}

	var analysis types.Analysis
	if !d.parser.Parse(raw, analysisSchema, &analysis) {
		if d.opts.Metrics != nil {
			d.opts.Metrics.RecordRecovery("failed")
		}
		return types.Analysis{}, fmt.Errorf("model %s: unrecoverable structured output", model)
	}
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordRecovery("recovered")
	}

	analysis.Model = model
	if analysis.Score < 0 {
		analysis.Score = 0
	}
	if analysis.Score > 1 {
		analysis.Score = 1
	}
	return analysis, nil
}

// linkCitations persists claim-to-evidence links. Failure is handled per
// the phase policy; under degrade the claims still flow into the report.
func (d *Driver) linkCitations(ctx context.Context, mon *health.Monitor, runID, reportID string, analyses []types.Analysis, collection *evidence.Collection) ([]types.Claim, error) {
	d.startPhase(mon, runID, PhaseCitations)

	claims := buildClaims(analyses, collection)
	if len(claims) == 0 {
		d.endPhase(mon, runID, PhaseCitations, health.PhaseCompleted, 0)
		return nil, nil
	}

	breaker := d.deps.Breakers.Get(breakerStore)
	policy := resilience.DefaultPolicy()
	policy.OnRetry = d.retryObserver(mon, PhaseCitations)

	count, err := resilience.DoValue(ctx, policy, func(ctx context.Context) (int, error) {
		return resilience.ExecuteValue(ctx, breaker, func(ctx context.Context) (int, error) {
			return d.deps.Citations.CreateCitations(ctx, reportID, claims)
		})
	})
	if err != nil {
		mon.RecordError(PhaseCitations, err.Error())
		if perr := d.phaseFailed(mon, runID, PhaseCitations, err); perr != nil {
			return nil, perr
		}
		return claims, nil
	}

	d.endPhase(mon, runID, PhaseCitations, health.PhaseCompleted, count)
	return claims, nil
}

// reportDocument is the persisted shape of an assembled report
type reportDocument struct {
	RequestID   string           `json:"request_id"`
	ReportID    string           `json:"report_id"`
	Company     string           `json:"company"`
	Website     string           `json:"website"`
	Thesis      string           `json:"thesis"`
	GeneratedAt time.Time        `json:"generated_at"`
	Evidence    evidence.Summary `json:"evidence"`
	Analyses    []types.Analysis `json:"analyses"`
	Claims      []types.Claim    `json:"claims,omitempty"`
}

// assembleReport builds the report document and persists it
func (d *Driver) assembleReport(ctx context.Context, mon *health.Monitor, req types.ScanRequest, reportID string, collection *evidence.Collection, analyses []types.Analysis, claims []types.Claim) error {
	d.startPhase(mon, req.RequestID, PhaseAssembly)

	doc := reportDocument{
		RequestID:   req.RequestID,
		ReportID:    reportID,
		Company:     req.Company,
		Website:     req.Website,
		Thesis:      req.Thesis,
		GeneratedAt: time.Now().UTC(),
		Evidence:    evidence.Summarize(collection.Items),
		Analyses:    analyses,
		Claims:      claims,
	}
	content, err := sonic.MarshalString(doc)
	if err != nil {
		mon.RecordError(PhaseAssembly, err.Error())
		return d.phaseFailed(mon, req.RequestID, PhaseAssembly, err)
	}

	breaker := d.deps.Breakers.Get(breakerStore)
	policy := resilience.DefaultPolicy()
	policy.OnRetry = d.retryObserver(mon, PhaseAssembly)

	err = resilience.Do(ctx, policy, func(ctx context.Context) error {
		return breaker.Execute(ctx, func(ctx context.Context) error {
			if err := d.deps.Reports.SaveReport(ctx, reportID, content); err != nil {
				return err
			}
			return d.deps.Reports.LinkReportToRequest(ctx, req.RequestID, reportID)
		})
	})
	if err != nil {
		mon.RecordError(PhaseAssembly, err.Error())
		return d.phaseFailed(mon, req.RequestID, PhaseAssembly, err)
	}

	d.endPhase(mon, req.RequestID, PhaseAssembly, health.PhaseCompleted, len(claims))
	return nil
}

// buildPrompt renders the analysis prompt from the thesis and collected
// evidence, including the response contract
func (d *Driver) buildPrompt(req types.ScanRequest, collection *evidence.Collection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assess %s (%s) against this investment thesis:\n%s\n\n", req.Company, req.Website, req.Thesis)
	b.WriteString("Evidence:\n")
	for _, item := range collection.Items {
		fmt.Fprintf(&b, "- [%s] (%s, confidence %.1f) %s\n", item.ID, item.Type, item.Confidence, item.Summary)
	}
	b.WriteString("\nRespond with a single JSON object.\n")
	b.WriteString(recovery.PromptFields(analysisSchema))
	return b.String()
}

// baselineAnalysis derives a heuristic assessment from evidence statistics
// alone, used when every model is unavailable.
func baselineAnalysis(collection *evidence.Collection) types.Analysis {
	summary := evidence.Summarize(collection.Items)
	return types.Analysis{
		Model:   FallbackBaseline,
		Score:   summary.MeanConfidence,
		Summary: fmt.Sprintf("Heuristic assessment from %d evidence items (mean confidence %.2f). Model analysis was unavailable.", summary.Count, summary.MeanConfidence),
		Risks:   []string{"analysis models unavailable; assessment derived from evidence statistics only"},
	}
}

// buildClaims turns each analysis into evidence-linked claims. Claims are
// linked round-robin across the collection's items.
func buildClaims(analyses []types.Analysis, collection *evidence.Collection) []types.Claim {
	var claims []types.Claim
	link := func(text string, confidence float64) {
		claim := types.Claim{Text: text, Confidence: confidence}
		if len(collection.Items) > 0 {
			claim.EvidenceID = collection.Items[len(claims)%len(collection.Items)].ID
		}
		claims = append(claims, claim)
	}

	for _, analysis := range analyses {
		if analysis.Summary != "" {
			link(analysis.Summary, analysis.Score)
		}
		for _, strength := range analysis.Strengths {
			link(strength, analysis.Score*0.8)
		}
		for _, risk := range analysis.Risks {
			link(risk, analysis.Score*0.8)
		}
	}
	return claims
}

// phaseFailed applies the phase's failure policy after an irrecoverable
// error. Abort ends the run; degrade continues it.
func (d *Driver) phaseFailed(mon *health.Monitor, runID, phase string, err error) error {
	policy := d.opts.Policies.For(phase)
	if policy.Action == ActionDegrade {
		d.endPhase(mon, runID, phase, health.PhaseDegraded, 0)
		return nil
	}
	d.endPhase(mon, runID, phase, health.PhaseFailed, 0)
	return &PhaseError{Phase: phase, Err: err}
}

func (d *Driver) retryObserver(mon *health.Monitor, phase string) func(attempt int, delay time.Duration) {
	return func(attempt int, delay time.Duration) {
		mon.RecordRetry(phase)
		if d.opts.Metrics != nil {
			d.opts.Metrics.RecordRetry(phase)
		}
	}
}

func (d *Driver) startPhase(mon *health.Monitor, runID, phase string) {
	mon.StartPhase(phase)
	d.emit(runID, phase, EventStarted, "")
}

func (d *Driver) endPhase(mon *health.Monitor, runID, phase string, status health.PhaseStatus, evidenceCount int) {
	mon.EndPhase(phase, status, evidenceCount)

	event := EventCompleted
	switch status {
	case health.PhaseDegraded:
		event = EventDegraded
	case health.PhaseFailed:
		event = EventFailed
	}
	d.emit(runID, phase, event, "")

	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordPhase(phase, string(status), phaseDuration(mon, phase))
	}
}

func phaseDuration(mon *health.Monitor, phase string) time.Duration {
	for _, p := range mon.Health().Phases {
		if p.PhaseName == phase {
			return p.Duration()
		}
	}
	return 0
}

func (d *Driver) emit(runID, phase, status, detail string) {
	if d.opts.Listener == nil {
		return
	}
	d.opts.Listener(Event{
		RunID:     runID,
		Phase:     phase,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}
