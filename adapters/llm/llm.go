// Package llm provides the completion client adapters: a hosted OpenAI
// client, a hosted Gemini client, and a disabled client for running without
// any provider.
package llm

import "time"

// Config carries the provider settings shared by every client.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string // optional alternative endpoint, OpenAI only
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}
