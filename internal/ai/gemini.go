package ai

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"moveline/internal/config"
)

// ContentGenerator is the slice of the genai client the parser needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini parses through the Gemini API.
type Gemini struct {
	models      ContentGenerator
	model       string
	temperature float32
	maxTokens   int32
	Now         func() time.Time
}

// NewGemini creates a Gemini parser from config.
func NewGemini(ctx context.Context, cfg config.AIConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return NewGeminiWith(client.Models, cfg), nil
}

// NewGeminiWith builds a parser over an existing generator.
func NewGeminiWith(models ContentGenerator, cfg config.AIConfig) *Gemini {
	model := cfg.Model
	if model == "" {
		model = config.DefaultModel("gemini")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Gemini{
		models:      models,
		model:       model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(maxTokens),
	}
}

func (g *Gemini) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Gemini) Parse(ctx context.Context, text string) (Result, error) {
	contents := []*genai.Content{genai.NewContentFromText(Prompt(g.now(), text), genai.RoleUser)}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		TopP:             genai.Ptr[float32](0.8),
		TopK:             genai.Ptr[float32](40),
		MaxOutputTokens:  g.maxTokens,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "gemini: generate content")
	}
	out := resp.Text()
	if out == "" {
		return Failed("model returned an empty response"), nil
	}
	return Decode(out), nil
}
