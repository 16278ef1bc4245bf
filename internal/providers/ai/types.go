package ai

import "context"

// Invoker sends a prompt to one AI model and returns its raw text output.
// Implementations surface failures as resilience.ProviderError so the retry
// layer can classify them without string matching.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, modelID string) (string, error)
}
