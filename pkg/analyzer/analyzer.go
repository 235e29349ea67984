// Package analyzer holds the contract shared by the cycle, reachability and
// clone analyzers.
package analyzer

import (
	"context"

	"github.com/panbanda/tangle/pkg/models"
)

// FactsAnalyzer is the interface that all fact-based analyzers implement.
// Facts are produced once per run and shared, so analyzers must not modify
// them.
type FactsAnalyzer[T any] interface {
	// Analyze processes the extracted facts and returns the analysis result.
	// The context can be used for cancellation.
	Analyze(ctx context.Context, facts []models.FileFacts) (T, error)

	// Close releases any resources held by the analyzer.
	Close()
}
