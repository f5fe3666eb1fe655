// Package llm provides clients for the external AI classification
// providers used on edge-case fields.
package llm

import "context"

// Client is the provider contract the batch scheduler depends on.
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a prompt and system message and returns the raw
	// model output.
	Complete(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error)

	// Model returns the configured model name, for logging and session
	// records.
	Model() string
}
