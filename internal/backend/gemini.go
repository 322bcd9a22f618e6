package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/praxian-ai/scout/internal/ratecontrol"
)

// Gemini is a Generator backed by the Gemini API with credential
// rotation. Clients are cached per API key so rotation does not pay
// connection setup on every call.
type Gemini struct {
	rotator *Rotator
	pref    *Preference
	model   string
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGemini creates a Gemini generator over the credential pool.
func NewGemini(pool []Credential, model string, logger *zap.Logger) (*Gemini, error) {
	rotator, err := NewRotator(pool, logger)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gemini{
		rotator: rotator,
		pref:    NewPreference(),
		model:   model,
		logger:  logger,
		clients: make(map[string]*genai.Client),
	}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

// Generate runs the request through the rotator, trying the preferred
// credential first and falling back across the pool. A preference
// carried on the context takes priority over the shared one, giving
// callers per-session credential affinity.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := g.pace(ctx, req); err != nil {
		return nil, err
	}

	pref := PreferenceFrom(ctx)
	if pref == nil {
		pref = g.pref
	}

	var resp *Response
	err := g.rotator.Invoke(ctx, pref, func(ctx context.Context, cred Credential) error {
		client, err := g.clientFor(ctx, cred)
		if err != nil {
			return err
		}

		config := &genai.GenerateContentConfig{}
		if req.Temperature > 0 {
			config.Temperature = genai.Ptr(req.Temperature)
		}
		if req.MaxTokens > 0 {
			config.MaxOutputTokens = req.MaxTokens
		}
		if req.System != "" {
			config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
		}

		result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), config)
		if err != nil {
			return fmt.Errorf("generate content: %w", err)
		}

		text := result.Text()
		if text == "" {
			return fmt.Errorf("empty completion from model %s", g.model)
		}

		resp = &Response{Text: text, Model: g.model}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// pace waits out the configured per-provider rate limit before the
// call goes upstream. Tokens are estimated at four characters each.
func (g *Gemini) pace(ctx context.Context, req Request) error {
	estimated := (len(req.Prompt) + len(req.System)) / 4
	delay := ratecontrol.DelayForRequest("google", g.model, estimated)
	if delay <= 0 {
		return nil
	}

	g.logger.Debug("Pacing generation call",
		zap.Duration("delay", delay),
		zap.Int("estimated_tokens", estimated),
	)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (g *Gemini) clientFor(ctx context.Context, cred Credential) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if client, ok := g.clients[cred.APIKey]; ok {
		return client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cred.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", cred.Label, err)
	}
	g.clients[cred.APIKey] = client
	return client, nil
}
