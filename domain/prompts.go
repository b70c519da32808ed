package domain

// Built-in system prompts. Sessions start from these and may override any
// of them at runtime.
const (
	ChatPrompt = "You are a friendly, concise AI assistant. Be helpful, honest, " +
		"and avoid verbosity. Use simple language unless asked for detail."
	CodePrompt = "You are a senior software engineer. Provide precise, secure, " +
		"and production-ready answers. Show minimal runnable examples. " +
		"Mention time/space complexity when relevant."
	KnowledgePrompt = "You are a factual knowledge assistant. When provided with " +
		"external context (e.g., from Wikipedia), cite it naturally and separate " +
		"facts from speculation. If uncertain, say so."
)

// PromptRegistry maps each mode to the system prompt that anchors it.
// It is not safe for concurrent use; sessions serialize access alongside
// their History.
type PromptRegistry struct {
	prompts map[Mode]string
}

// NewPromptRegistry returns a registry seeded with the built-in prompts,
// then applies overrides on top.
func NewPromptRegistry(overrides map[Mode]string) *PromptRegistry {
	r := &PromptRegistry{prompts: map[Mode]string{
		ModeChat:      ChatPrompt,
		ModeCode:      CodePrompt,
		ModeKnowledge: KnowledgePrompt,
	}}
	for mode, prompt := range overrides {
		r.Set(mode, prompt)
	}
	return r
}

// Get returns the prompt registered for mode. A mode with no entry falls
// back to the chat prompt so assembly always has a system message.
func (r *PromptRegistry) Get(mode Mode) string {
	if prompt, ok := r.prompts[mode]; ok {
		return prompt
	}
	return ChatPrompt
}

// Set replaces the prompt for mode. Later turns see the new prompt; nothing
// already buffered in a History is rewritten.
func (r *PromptRegistry) Set(mode Mode, prompt string) {
	r.prompts[mode] = prompt
}
