package ai

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"syscall"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// RetryConfig controls retries with exponential backoff.
type RetryConfig struct {
	// MaxAttempts includes the first try. Default: 3.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ShouldRetry defaults to IsTransient.
	ShouldRetry func(err error) bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	return c
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	d := time.Duration(float64(c.InitialBackoff) * math.Pow(2, float64(attempt)))
	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d
}

// Limited wraps a parser with a request rate limit, a per-attempt timeout
// and retries on transient failures.
type Limited struct {
	Parser  Parser
	Limiter *rate.Limiter
	Retry   RetryConfig
	Timeout time.Duration
	Log     *zap.Logger
}

func (l *Limited) Parse(ctx context.Context, text string) (Result, error) {
	cfg := l.Retry.withDefaults()
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if l.Limiter != nil {
			if err := l.Limiter.Wait(ctx); err != nil {
				return Result{}, err
			}
		}
		res, err := l.attempt(ctx, text)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil || !cfg.ShouldRetry(err) || attempt >= cfg.MaxAttempts-1 {
			break
		}
		delay := cfg.backoff(attempt)
		log.Warn("ai parse failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, lastErr
		case <-timer.C:
		}
	}
	log.Error("ai parse failed", zap.Error(lastErr))
	return Result{}, lastErr
}

func (l *Limited) attempt(ctx context.Context, text string) (Result, error) {
	if l.Timeout <= 0 {
		return l.Parser.Parse(ctx, text)
	}
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	return l.Parser.Parse(ctx, text)
}

// IsTransient reports whether err is worth retrying: timeouts, dropped
// connections, throttling and server-side errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{"connection reset", "connection refused", "timeout", "rate limit", "overloaded", "unavailable"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
