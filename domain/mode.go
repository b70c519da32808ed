package domain

import "strings"

// Mode selects which behavioral profile drives a turn.
type Mode string

const (
	ModeChat      Mode = "chat"
	ModeCode      Mode = "code"
	ModeKnowledge Mode = "knowledge"
)

// ResolveMode maps a free-form label onto a supported mode. Matching is
// case-insensitive and ignores surrounding whitespace; anything
// unrecognized, including the empty string, resolves to ModeChat.
func ResolveMode(label string) Mode {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "chat":
		return ModeChat
	case "code", "code helper", "programming":
		return ModeCode
	case "knowledge", "facts", "knowledge assistant":
		return ModeKnowledge
	default:
		return ModeChat
	}
}
