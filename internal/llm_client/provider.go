package llm_client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sloth/internal/logger"
)

type Config struct {
	// Backend is tried first; Fallbacks take over, in order, after it fails.
	Backend     string
	Fallbacks   []string
	Model       string
	OllamaModel string
	OllamaHost  string
	Project     string
	Location    string
	Timeout     time.Duration

	Temperature    *float32
	TopP           *float32
	TopK           *float32
	ThinkingBudget *int32
}

// Reply is one model answer with the token usage the backend reported.
type Reply struct {
	Text         string
	Provider     string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

type Provider interface {
	Name() string
	Init(cfg Config) error
	DefaultModel() string
	Generate(ctx context.Context, prompt string) (Reply, error)
}

// Service is the handle to the active model backend. When a query fails it
// moves on to the next configured provider so the caller's retry reaches a
// different backend. A Service is safe for use by one goroutine at a time
// plus concurrent Active calls.
type Service struct {
	mu        sync.Mutex
	providers []Provider
	active    int
	timeout   time.Duration
}

func NewService(timeout time.Duration, providers ...Provider) *Service {
	return &Service{providers: providers, timeout: timeout}
}

// Init builds the provider chain from cfg. Providers that fail to
// initialise are skipped; ErrNoService is returned if none is left.
func Init(cfg Config) (*Service, error) {
	var providers []Provider
	var errs []error
	for _, name := range chain(cfg) {
		p, err := newProvider(name)
		if err != nil {
			return nil, err
		}
		if err := p.Init(cfg); err != nil {
			logger.Log.Warn("model provider unavailable", "provider", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		logger.Log.Info("model provider ready", "provider", name, "model", p.DefaultModel())
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoService, errors.Join(errs...))
	}
	return NewService(cfg.Timeout, providers...), nil
}

func chain(cfg Config) []string {
	names := append([]string{cfg.Backend}, cfg.Fallbacks...)
	if strings.TrimSpace(cfg.Backend) == "" && len(cfg.Fallbacks) == 0 {
		names = []string{"gemini", "vertex"}
	}
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func newProvider(name string) (Provider, error) {
	switch name {
	case "gemini":
		return &geminiProvider{name: "gemini"}, nil
	case "vertex":
		return &geminiProvider{name: "vertex", vertex: true}, nil
	case "ollama":
		return &ollamaProvider{}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM backend: %s", name)
	}
}

// Active names the provider the next query goes to.
func (s *Service) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.providers) == 0 {
		return ""
	}
	return s.providers[s.active].Name()
}

func (s *Service) Query(ctx context.Context, prompt string) (Reply, error) {
	if s == nil {
		return Reply{}, ErrNoService
	}
	s.mu.Lock()
	if len(s.providers) == 0 {
		s.mu.Unlock()
		return Reply{}, ErrNoService
	}
	p := s.providers[s.active]
	s.mu.Unlock()

	qctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := p.Generate(qctx, prompt)
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		s.advance(p, err)
		return Reply{}, fmt.Errorf("%w: %s: %w", ErrQueryFailed, p.Name(), err)
	}
	reply.Provider = p.Name()
	reply.Duration = time.Since(start)
	return reply, nil
}

func (s *Service) advance(failed Provider, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active+1 >= len(s.providers) {
		logger.Log.Warn("model query failed", "provider", failed.Name(), "err", err)
		return
	}
	s.active++
	logger.Log.Warn("model query failed, switching provider",
		"from", failed.Name(), "to", s.providers[s.active].Name(), "err", err)
}
