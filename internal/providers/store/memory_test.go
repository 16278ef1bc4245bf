package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techscaniq/diligence/internal/shared/types"
)

func TestMemorySaveAndLink(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveReport(ctx, "rpt_1", `{"company":"Acme"}`))
	require.NoError(t, mem.LinkReportToRequest(ctx, "run_1", "rpt_1"))

	content, ok := mem.Report("rpt_1")
	require.True(t, ok)
	assert.Equal(t, `{"company":"Acme"}`, content)

	reportID, ok := mem.ReportForRequest("run_1")
	require.True(t, ok)
	assert.Equal(t, "rpt_1", reportID)

	_, ok = mem.Report("rpt_missing")
	assert.False(t, ok)
}

func TestMemorySaveReportReplaces(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveReport(ctx, "rpt_1", "v1"))
	require.NoError(t, mem.SaveReport(ctx, "rpt_1", "v2"))

	content, ok := mem.Report("rpt_1")
	require.True(t, ok)
	assert.Equal(t, "v2", content)
}

func TestMemoryCreateCitations(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	claims := []types.Claim{
		{Text: "ships autonomous pickers", EvidenceID: "ev_1", Confidence: 0.8},
		{Text: "strong enterprise pipeline", EvidenceID: "ev_2", Confidence: 0.6},
	}
	count, err := mem.CreateCitations(ctx, "rpt_1", claims)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = mem.CreateCitations(ctx, "rpt_1", claims[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Len(t, mem.Citations("rpt_1"), 3)
	assert.Empty(t, mem.Citations("rpt_other"))
}

func TestMemoryConcurrentWrites(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mem.SaveReport(ctx, "rpt_1", "content")
			_, _ = mem.CreateCitations(ctx, "rpt_1", []types.Claim{{Text: "claim", EvidenceID: "ev_1", Confidence: 0.5}})
		}()
	}
	wg.Wait()

	_, ok := mem.Report("rpt_1")
	assert.True(t, ok)
	assert.Len(t, mem.Citations("rpt_1"), 16)
}
