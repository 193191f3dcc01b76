// Package ai turns free-form Korean moving requests into partial records
// using a hosted language model.
package ai

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"moveline/internal/config"
	"moveline/internal/domain"
)

// Result is the outcome of one parse. Success=false carries a readable
// Error and no data.
type Result struct {
	Success    bool               `json:"success"`
	Data       domain.Patch       `json:"data"`
	Confidence map[string]float64 `json:"confidence"`
	Message    string             `json:"message,omitempty"`
	Error      string             `json:"error,omitempty"`
	Raw        string             `json:"-"`
}

// AverageConfidence is the mean of all confidence scores.
func (r Result) AverageConfidence() (float64, bool) {
	if len(r.Confidence) == 0 {
		return 0, false
	}
	var sum float64
	for _, c := range r.Confidence {
		sum += c
	}
	return sum / float64(len(r.Confidence)), true
}

// Failed builds an unsuccessful result.
func Failed(format string, args ...any) Result {
	return Result{Confidence: map[string]float64{}, Error: fmt.Sprintf(format, args...)}
}

// Parser extracts a partial record from user text. Transport problems are
// returned as errors; model-level failures as Success=false.
type Parser interface {
	Parse(ctx context.Context, text string) (Result, error)
}

// New builds the parser selected by cfg, wrapped with rate limiting and
// retries.
func New(ctx context.Context, cfg config.AIConfig, log *zap.Logger) (Parser, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var p Parser
	switch cfg.Provider {
	case "", "none":
		return Disabled{}, nil
	case "gemini":
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p = g
	case "anthropic":
		p = NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &Limited{
		Parser:  p,
		Limiter: rate.NewLimiter(limit, 1),
		Retry:   RetryConfig{MaxAttempts: cfg.MaxAttempts, InitialBackoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second},
		Timeout: cfg.Timeout,
		Log:     log.With(zap.String("provider", cfg.Provider)),
	}, nil
}

// Disabled is used when no provider is configured.
type Disabled struct{}

func (Disabled) Parse(context.Context, string) (Result, error) {
	return Failed("AI parsing is not configured"), nil
}
