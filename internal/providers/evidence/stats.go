package evidence

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a collection's confidence distribution for the phase
// metrics and the operator report.
type Summary struct {
	Count          int            `json:"count"`
	MeanConfidence float64        `json:"mean_confidence"`
	StdDev         float64        `json:"std_dev"`
	ByType         map[string]int `json:"by_type"`
}

// Summarize computes confidence statistics over a set of evidence items
func Summarize(items []Item) Summary {
	summary := Summary{
		Count:  len(items),
		ByType: make(map[string]int),
	}
	if len(items) == 0 {
		return summary
	}

	confidences := make([]float64, len(items))
	for i, item := range items {
		confidences[i] = item.Confidence
		summary.ByType[item.Type]++
	}

	summary.MeanConfidence = stat.Mean(confidences, nil)
	if len(items) > 1 {
		if sd := stat.StdDev(confidences, nil); !math.IsNaN(sd) {
			summary.StdDev = sd
		}
	}
	return summary
}
