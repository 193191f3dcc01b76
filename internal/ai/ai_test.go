package ai

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"moveline/internal/config"
	"moveline/internal/domain"
)

const sampleResponse = `{
  "message": "다음주 토요일 이사 정보를 확인했어요",
  "move": {"category": "two_room", "type": "half_pack", "date": "2025-05-10", "timeSlot": "bogus"},
  "departure": {"address": "서울 강남구 역삼동", "floor": 3, "hasElevator": true, "squareFootage": 20},
  "arrival": {"address": "서울 송파구 잠실동", "floor": -1, "hasElevator": false},
  "contact": {"name": "김철수", "phone": "010-1234"},
  "confidence": {
    "move.category": 0.9,
    "move.date": 0.85,
    "move.timeSlot": 0.9,
    "departure.address": 1.4,
    "arrival.floor": 0.6,
    "contact.phone": 0.9,
    "contact.name": "high"
  }
}`

var fixedNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func TestDecode(t *testing.T) {
	res := Decode(sampleResponse)
	require.True(t, res.Success)
	assert.Equal(t, "다음주 토요일 이사 정보를 확인했어요", res.Message)

	assert.Equal(t, "two_room", res.Data["move"]["category"])
	assert.Equal(t, "half_pack", res.Data["move"]["type"])
	assert.NotContains(t, res.Data["move"], "timeSlot")
	sched, ok := res.Data["move"]["schedule"].(domain.Schedule)
	require.True(t, ok)
	assert.Equal(t, domain.DateExact, sched.DateType)
	assert.Equal(t, "2025-05-10", *sched.Date)

	assert.Equal(t, 3, res.Data["departure"]["floor"])
	assert.Equal(t, domain.FloorKnown, res.Data["departure"]["floorStatus"])
	assert.Equal(t, domain.Yes, res.Data["departure"]["hasElevator"])
	assert.Equal(t, domain.TransportElevator, res.Data["departure"]["transportMethod"])
	assert.Equal(t, domain.Sq15to25, res.Data["departure"]["squareFootage"])
	assert.Equal(t, -1, res.Data["arrival"]["floor"])
	assert.Equal(t, domain.No, res.Data["arrival"]["hasElevator"])
	assert.NotContains(t, res.Data["arrival"], "squareFootage")

	assert.Equal(t, "김철수", res.Data["contact"]["name"])
	assert.NotContains(t, res.Data["contact"], "phone")

	assert.Equal(t, map[string]float64{
		"move.category":     0.9,
		"move.schedule":     0.85,
		"departure.address": 1,
		"arrival.floor":     0.6,
	}, res.Confidence)
}

func TestDecodeFencedAndInvalid(t *testing.T) {
	res := Decode("```json\n{\"message\":\"ok\",\"move\":{\"type\":\"truck\"}}\n```")
	require.True(t, res.Success)
	assert.Equal(t, "truck", res.Data["move"]["type"])
	assert.Empty(t, res.Confidence)

	res = Decode("I could not understand that")
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Nil(t, res.Data)

	res = Decode(`["not", "an", "object"]`)
	assert.False(t, res.Success)
}

func TestAverageConfidence(t *testing.T) {
	_, ok := Result{}.AverageConfidence()
	assert.False(t, ok)
	avg, ok := Result{Confidence: map[string]float64{"a": 0.5, "b": 1}}.AverageConfidence()
	assert.True(t, ok)
	assert.InDelta(t, 0.75, avg, 1e-9)
}

func TestPromptIncludesTodayAndInput(t *testing.T) {
	p := Prompt(fixedNow, "다음주 토요일 이사해요")
	assert.Contains(t, p, "2025-05-01")
	assert.Contains(t, p, "다음주 토요일 이사해요")
	assert.True(t, strings.HasSuffix(p, "## JSON 응답"))
	assert.NotContains(t, p, "{TODAY}")
}

type fakeGenerator struct {
	model  string
	config *genai.GenerateContentConfig
	prompt string
	text   string
	err    error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = cfg
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(f.text, genai.RoleModel)}},
	}, nil
}

func TestGeminiParse(t *testing.T) {
	fake := &fakeGenerator{text: sampleResponse}
	g := NewGeminiWith(fake, config.AIConfig{Temperature: 0.1})
	g.Now = func() time.Time { return fixedNow }

	res, err := g.Parse(context.Background(), "이사 견적 부탁해요")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "gemini-2.0-flash", fake.model)
	assert.Equal(t, "application/json", fake.config.ResponseMIMEType)
	assert.Equal(t, int32(2048), fake.config.MaxOutputTokens)
	assert.Contains(t, fake.prompt, "이사 견적 부탁해요")

	fake.err = errors.New("boom")
	_, err = g.Parse(context.Background(), "x")
	assert.ErrorContains(t, err, "gemini: generate content")
}

type fakeMessages struct {
	params sdk.MessageNewParams
	text   string
}

func (f *fakeMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.params = body
	return &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: f.text}}}, nil
}

func TestAnthropicParse(t *testing.T) {
	fake := &fakeMessages{text: sampleResponse}
	a := NewAnthropicWith(fake, config.AIConfig{MaxTokens: 1024})
	a.Now = func() time.Time { return fixedNow }

	res, err := a.Parse(context.Background(), "이사 견적 부탁해요")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, sdk.Model("claude-haiku-4-5-20251001"), fake.params.Model)
	assert.Equal(t, int64(1024), fake.params.MaxTokens)
	require.Len(t, fake.params.System, 1)
	assert.Equal(t, SystemPrompt, fake.params.System[0].Text)

	fake.text = ""
	res, err = a.Parse(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

type flakyParser struct {
	calls atomic.Int32
	fails int32
	err   error
}

func (f *flakyParser) Parse(context.Context, string) (Result, error) {
	if f.calls.Add(1) <= f.fails {
		return Result{}, f.err
	}
	return Result{Success: true, Confidence: map[string]float64{}}, nil
}

func TestLimitedRetriesTransient(t *testing.T) {
	p := &flakyParser{fails: 2, err: errors.New("503 service unavailable")}
	l := &Limited{
		Parser:  p,
		Limiter: rate.NewLimiter(rate.Inf, 1),
		Retry:   RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		Log:     zap.NewNop(),
	}
	res, err := l.Parse(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestLimitedStopsOnPermanentError(t *testing.T) {
	p := &flakyParser{fails: 5, err: errors.New("invalid api key")}
	l := &Limited{Parser: p, Retry: RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}}
	_, err := l.Parse(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(genai.APIError{Code: 429}))
	assert.False(t, IsTransient(genai.APIError{Code: 400, Message: "bad request"}))
	assert.True(t, IsTransient(errors.New("upstream: connection reset by peer")))
	assert.False(t, IsTransient(errors.New("permission denied")))
}

func TestNewSelectsProvider(t *testing.T) {
	p, err := New(context.Background(), config.AIConfig{Provider: "none"}, nil)
	require.NoError(t, err)
	res, err := p.Parse(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, res.Success)

	p, err = New(context.Background(), config.AIConfig{Provider: "anthropic", AnthropicAPIKey: "k", RequestsPerMinute: 30}, zap.NewNop())
	require.NoError(t, err)
	lim, ok := p.(*Limited)
	require.True(t, ok)
	assert.IsType(t, &Anthropic{}, lim.Parser)

	_, err = New(context.Background(), config.AIConfig{Provider: "eliza"}, nil)
	assert.Error(t, err)
}
