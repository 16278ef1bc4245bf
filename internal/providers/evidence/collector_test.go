package evidence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techscaniq/diligence/internal/infrastructure/resilience"
)

const homePage = `<!DOCTYPE html>
<html>
<head>
	<title>Acme Robotics - Warehouse Automation</title>
	<meta name="description" content="Acme builds autonomous picking robots for mid-size warehouses.">
	<meta name="generator" content="Next.js">
</head>
<body>
	<h1>Autonomous picking, delivered</h1>
	<h2>Trusted by 40 logistics operators</h2>
	<p>Acme Robotics designs, builds, and operates autonomous picking systems that integrate
	with existing warehouse management software without forklift upgrades.</p>
	<a href="/about">About us</a>
	<a href="https://twitter.com/acme">Twitter</a>
</body>
</html>`

const aboutPage = `<html><head><title>About Acme</title></head>
<body><h1>Founded in 2019</h1>
<p>The company was founded by warehouse operators and now employs over one hundred
engineers across three offices, with deployments in North America and Europe.</p>
</body></html>`

func TestCollectExtractsTypedItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/about":
			_, _ = w.Write([]byte(aboutPage))
		default:
			_, _ = w.Write([]byte(homePage))
		}
	}))
	defer server.Close()

	collector := NewWebCollector(nil)
	collection, err := collector.Collect(context.Background(), "Acme Robotics", server.URL, Criteria{MaxPages: 2})
	require.NoError(t, err)

	assert.NotEmpty(t, collection.CollectionID)
	require.NotEmpty(t, collection.Items)

	byType := make(map[string][]Item)
	for _, item := range collection.Items {
		assert.NotEmpty(t, item.ID)
		assert.GreaterOrEqual(t, item.Confidence, 0.0)
		assert.LessOrEqual(t, item.Confidence, 1.0)
		byType[item.Type] = append(byType[item.Type], item)
	}

	require.NotEmpty(t, byType[TypeIdentity])
	assert.Contains(t, byType[TypeIdentity][0].Summary, "Acme Robotics")
	require.NotEmpty(t, byType[TypePositioning])
	assert.Contains(t, byType[TypePositioning][0].Summary, "picking robots")
	require.NotEmpty(t, byType[TypeTechnology])
	assert.Equal(t, "Next.js", byType[TypeTechnology][0].Summary)
	assert.NotEmpty(t, byType[TypeOffering])

	// The /about page is same-host and keyword-matched, so its content shows up
	foundAbout := false
	for _, item := range collection.Items {
		if item.Source == server.URL+"/about" {
			foundAbout = true
		}
	}
	assert.True(t, foundAbout, "expected evidence from the about page")
}

func TestCollectServerErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind resilience.Kind
	}{
		{"server error", http.StatusInternalServerError, resilience.KindNetwork},
		{"rate limited", http.StatusTooManyRequests, resilience.KindRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			collector := NewWebCollector(nil)
			_, err := collector.Collect(context.Background(), "Acme", server.URL, Criteria{})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, resilience.Classify(err))
		})
	}
}

func TestCollectUnreachableHost(t *testing.T) {
	collector := NewWebCollector(nil)
	_, err := collector.Collect(context.Background(), "Acme", "http://127.0.0.1:1", Criteria{})
	require.Error(t, err)
	assert.True(t, resilience.Retryable(err))
}

func TestSummarize(t *testing.T) {
	items := []Item{
		{Type: TypeIdentity, Confidence: 0.9},
		{Type: TypeOffering, Confidence: 0.6},
		{Type: TypeOffering, Confidence: 0.6},
		{Type: TypeContent, Confidence: 0.4},
	}

	summary := Summarize(items)
	assert.Equal(t, 4, summary.Count)
	assert.InDelta(t, 0.625, summary.MeanConfidence, 1e-9)
	assert.Greater(t, summary.StdDev, 0.0)
	assert.Equal(t, 2, summary.ByType[TypeOffering])
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	assert.Equal(t, 0, summary.Count)
	assert.Equal(t, 0.0, summary.MeanConfidence)
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("é", summaryMaxLength) // two bytes per rune
	got := truncate(long, summaryMaxLength)
	assert.LessOrEqual(t, len(got), summaryMaxLength)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, "résumé", truncate("résumé", 10))
	// Cutting inside the final rune backs up to the previous boundary
	assert.Equal(t, "ré", truncate("rés", 3))
	assert.Equal(t, "", truncate("é", 1))
}
