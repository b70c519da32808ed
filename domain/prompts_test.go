package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"parlor/domain"
)

func TestPromptRegistryDefaults(t *testing.T) {
	r := domain.NewPromptRegistry(nil)

	assert.Equal(t, domain.ChatPrompt, r.Get(domain.ModeChat))
	assert.Equal(t, domain.CodePrompt, r.Get(domain.ModeCode))
	assert.Equal(t, domain.KnowledgePrompt, r.Get(domain.ModeKnowledge))
}

func TestPromptRegistryUnknownModeFallsBackToChat(t *testing.T) {
	r := domain.NewPromptRegistry(nil)
	assert.Equal(t, domain.ChatPrompt, r.Get(domain.Mode("poetry")))
}

func TestPromptRegistrySet(t *testing.T) {
	r := domain.NewPromptRegistry(nil)

	r.Set(domain.ModeCode, "You review Go code.")

	assert.Equal(t, "You review Go code.", r.Get(domain.ModeCode))
	assert.Equal(t, domain.ChatPrompt, r.Get(domain.ModeChat), "other modes stay untouched")
}

func TestPromptRegistryOverrides(t *testing.T) {
	r := domain.NewPromptRegistry(map[domain.Mode]string{
		domain.ModeKnowledge: "Answer like an encyclopedia.",
	})

	assert.Equal(t, "Answer like an encyclopedia.", r.Get(domain.ModeKnowledge))
	assert.Equal(t, domain.ChatPrompt, r.Get(domain.ModeChat))
}
