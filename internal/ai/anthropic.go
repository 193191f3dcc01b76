package ai

import (
	"context"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"moveline/internal/config"
)

// MessageCreator is the slice of the Anthropic client the parser needs.
// *sdk.MessageService satisfies it.
type MessageCreator interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic parses through the Anthropic Messages API.
type Anthropic struct {
	messages    MessageCreator
	model       string
	temperature float64
	maxTokens   int64
	Now         func() time.Time
}

// NewAnthropic creates an Anthropic parser from config.
func NewAnthropic(cfg config.AIConfig) *Anthropic {
	client := sdk.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	return NewAnthropicWith(&client.Messages, cfg)
}

// NewAnthropicWith builds a parser over an existing message service.
func NewAnthropicWith(messages MessageCreator, cfg config.AIConfig) *Anthropic {
	model := cfg.Model
	if model == "" {
		model = config.DefaultModel("anthropic")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Anthropic{
		messages:    messages,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   int64(maxTokens),
	}
}

func (a *Anthropic) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Anthropic) Parse(ctx context.Context, text string) (Result, error) {
	msg, err := a.messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(a.model),
		MaxTokens:   a.maxTokens,
		System:      []sdk.TextBlockParam{{Text: SystemPrompt}},
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(UserTurn(a.now(), text)))},
		Temperature: sdk.Float(a.temperature),
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "anthropic: create message")
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return Failed("model returned an empty response"), nil
	}
	return Decode(b.String()), nil
}
