package domain

import (
	"context"
	"errors"
	"time"
)

// ErrCompletionUnavailable reports that no completion backend is configured.
// Callers treat it exactly like a failed provider call.
var ErrCompletionUnavailable = errors.New("completion client unavailable")

// CompletionClient abstracts any hosted chat model provider.
type CompletionClient interface {
	// Complete sends the assembled message sequence and returns the reply
	// text. A failure is always an error, never an empty string.
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Summarizer fetches a short factual summary for a free-form query.
type Summarizer interface {
	// Summary returns roughly sentences worth of plain text for the query.
	// An empty string with a nil error means nothing useful was found.
	Summary(ctx context.Context, query string, sentences int) (string, error)
}

// Speaker synthesizes spoken audio for a reply.
type Speaker interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// TranscriptStore archives finished turns durably, outside the bounded
// in-memory window.
type TranscriptStore interface {
	// RecordTurn appends the records of one turn to a session's transcript,
	// creating the session row on first use.
	RecordTurn(ctx context.Context, sessionID string, records ...TurnRecord) error

	// RecentSessions lists sessions by most recent activity.
	RecentSessions(ctx context.Context, limit int) ([]SessionSummary, error)

	// SessionMessages returns a session's full transcript, oldest first.
	SessionMessages(ctx context.Context, sessionID string) ([]TurnRecord, error)

	// Close releases the underlying storage.
	Close() error
}

// TurnRecord is one archived message plus the turn metadata the in-memory
// Message deliberately omits.
type TurnRecord struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Mode      Mode      `json:"mode"`
	Fallback  bool      `json:"fallback"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary is one row in a recent-sessions listing.
type SessionSummary struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastUserPrompt string    `json:"last_user_prompt"`
}
