package llm

import (
	"context"

	"parlor/domain"
)

// Disabled is the completion client used when no provider is configured.
// Every call reports domain.ErrCompletionUnavailable, which routes the
// engine onto its local fallback.
type Disabled struct{}

func NewDisabled() Disabled {
	return Disabled{}
}

// Complete implements domain.CompletionClient.
func (Disabled) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	return "", domain.ErrCompletionUnavailable
}
