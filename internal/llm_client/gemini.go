package llm_client

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// geminiProvider talks to Gemini either through the public API (API key)
// or through Vertex AI (project credentials).
type geminiProvider struct {
	name   string
	vertex bool
	client *genai.Client
	model  string
	gen    *genai.GenerateContentConfig
}

const (
	geminiDefault  = "gemini-2.5-pro"
	vertexLocation = "us-central1"
)

func (p *geminiProvider) Name() string { return p.name }

func (p *geminiProvider) Init(cfg Config) error {
	cc := &genai.ClientConfig{}
	if p.vertex {
		project := firstNonEmpty(cfg.Project, os.Getenv("GOOGLE_CLOUD_PROJECT"))
		if project == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is not set")
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = project
		cc.Location = firstNonEmpty(cfg.Location, os.Getenv("GOOGLE_CLOUD_LOCATION"), vertexLocation)
	} else {
		apiKey := firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		if apiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is not set")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = apiKey
	}

	c, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return fmt.Errorf("%s client init: %w", p.name, err)
	}
	p.client = c
	p.model = p.AllowedModelOrDefault(cfg.Model)

	p.gen = &genai.GenerateContentConfig{
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		TopK:        cfg.TopK,
	}
	if cfg.ThinkingBudget != nil {
		p.gen.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: cfg.ThinkingBudget}
	}
	return nil
}

func (p *geminiProvider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return geminiDefault
}

func (p *geminiProvider) AllowedModelOrDefault(model string) string {
	m := strings.TrimSpace(model)
	if m == "" || !strings.HasPrefix(strings.ToLower(m), "gemini-") {
		return geminiDefault
	}
	return m
}

func (p *geminiProvider) Generate(ctx context.Context, prompt string) (Reply, error) {
	if p.client == nil {
		return Reply{}, ErrNotInitialized
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), p.gen)
	if err != nil {
		return Reply{}, fmt.Errorf("%s generate: %w", p.name, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Reply{}, ErrEmptyReply
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}

	reply := Reply{Text: sb.String()}
	if u := resp.UsageMetadata; u != nil {
		reply.InputTokens = int(u.PromptTokenCount)
		reply.OutputTokens = int(u.CandidatesTokenCount)
	}
	return reply, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
