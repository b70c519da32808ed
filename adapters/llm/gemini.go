package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"parlor/domain"
)

// GeminiClient implements domain.CompletionClient on the Gemini API.
type GeminiClient struct {
	client *genai.Client
	cfg    Config
}

// NewGeminiClient dials the Gemini API. An empty cfg.APIKey lets the SDK
// fall back to its own environment lookup.
func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	client, err := genai.NewClient(
		ctx,
		&genai.ClientConfig{
			APIKey:      cfg.APIKey,
			HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiClient{client: client, cfg: cfg}, nil
}

// Complete implements domain.CompletionClient. Leading system messages
// collapse into the system instruction; the rest map onto user and model
// turns.
func (g *GeminiClient) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case domain.SystemRole:
			system = append(system, msg.Content)
		case domain.AssistantRole:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	genCfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		// The SDK expects RoleUser here, not "system".
		genCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if g.cfg.Temperature > 0 {
		temp := float32(g.cfg.Temperature)
		genCfg.Temperature = &temp
	}
	if g.cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(g.cfg.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", g.cfg.Model)
	}
	return text, nil
}
