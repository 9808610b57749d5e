package llm_client

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ollama/ollama/api"
)

type ollamaProvider struct {
	client  *api.Client
	model   string
	options map[string]any
}

const ollamaDefault = "qwen2.5-coder:latest"

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) Init(cfg Config) error {
	c, err := api.ClientFromEnvironment()
	if err != nil || cfg.OllamaHost != "" {
		host := firstNonEmpty(cfg.OllamaHost, os.Getenv("OLLAMA_HOST"), "http://localhost:11434")
		u, uerr := url.Parse(host)
		if uerr != nil {
			return fmt.Errorf("ollama: bad host %q: %w", host, uerr)
		}
		c = api.NewClient(u, nil)
	}
	p.client = c
	p.model = p.AllowedModelOrDefault(firstNonEmpty(cfg.OllamaModel, cfg.Model))

	p.options = map[string]any{}
	if cfg.Temperature != nil {
		p.options["temperature"] = *cfg.Temperature
	}
	if cfg.TopP != nil {
		p.options["top_p"] = *cfg.TopP
	}
	if cfg.TopK != nil {
		p.options["top_k"] = int(*cfg.TopK)
	}
	return nil
}

func (p *ollamaProvider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return ollamaDefault
}

func (p *ollamaProvider) AllowedModelOrDefault(model string) string {
	m := strings.TrimSpace(model)
	if m == "" || strings.HasPrefix(strings.ToLower(m), "gemini-") {
		return ollamaDefault
	}
	return m
}

func (p *ollamaProvider) Generate(ctx context.Context, prompt string) (Reply, error) {
	if p.client == nil {
		return Reply{}, ErrNotInitialized
	}
	stream := false
	req := &api.GenerateRequest{
		Model:   p.model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: p.options,
	}
	var reply Reply
	var out strings.Builder
	if err := p.client.Generate(ctx, req, func(gr api.GenerateResponse) error {
		out.WriteString(gr.Response)
		if gr.Done {
			reply.InputTokens = gr.PromptEvalCount
			reply.OutputTokens = gr.EvalCount
		}
		return nil
	}); err != nil {
		return Reply{}, fmt.Errorf("ollama generate: %w", err)
	}
	reply.Text = out.String()
	return reply, nil
}
