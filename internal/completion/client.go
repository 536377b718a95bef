// Package completion talks to an OpenAI-compatible chat/completions API.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kalambet/sdr/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.x.ai/v1"
	DefaultModel   = "grok-beta"
	DefaultTimeout = 30 * time.Second
)

// ErrCompletionFailed matches every error returned by Client.Generate.
var ErrCompletionFailed = errors.New("completion failed")

// ErrEmptyAPIKey is returned by New when no credential is configured.
var ErrEmptyAPIKey = errors.New("completion API key is empty")

type Kind string

const (
	KindStatus     Kind = "status"
	KindNetwork    Kind = "network"
	KindUnexpected Kind = "unexpected"
)

// Error describes a failed completion call. The message is safe to show to
// API callers; the underlying cause is only logged.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("completion API error: %d", e.StatusCode)
	case KindNetwork:
		return "failed to connect to completion API"
	default:
		return "unexpected error from completion API"
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrCompletionFailed }

// Config holds the endpoint settings. Zero fields fall back to defaults.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is one completion. Usage is nil when the API did not report it.
type Result struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
	Model   string `json:"model"`
}

// Client sends single-turn prompts to the completion API. It is safe for
// concurrent use.
type Client struct {
	api    *openai.Client
	model  string
	tracer trace.Tracer
}

// New creates a Client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:    openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		tracer: otel.Tracer("github.com/kalambet/sdr/internal/completion"),
	}, nil
}

// Model returns the model name sent with every request.
func (c *Client) Model() string { return c.model }

// Generate sends prompt as a single user message. There is no retry; any
// failure is returned as an *Error matching ErrCompletionFailed.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "completion.Generate", trace.WithAttributes(
		attribute.String("completion.model", c.model),
		attribute.Int("completion.max_tokens", maxTokens),
		attribute.Float64("completion.temperature", temperature),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	})
	metrics.CompletionLatency.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

	if err != nil {
		return Result{}, c.fail(span, classify(err))
	}
	if len(resp.Choices) == 0 {
		return Result{}, c.fail(span, &Error{Kind: KindUnexpected, Err: errors.New("response has no choices")})
	}

	res := Result{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
	}
	if res.Model == "" {
		res.Model = c.model
	}
	if u := resp.Usage; u.TotalTokens > 0 || u.PromptTokens > 0 || u.CompletionTokens > 0 {
		res.Usage = &Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
		metrics.CompletionTokens.WithLabelValues("prompt").Add(float64(u.PromptTokens))
		metrics.CompletionTokens.WithLabelValues("completion").Add(float64(u.CompletionTokens))
		span.SetAttributes(attribute.Int("completion.total_tokens", u.TotalTokens))
	}

	metrics.CompletionRequests.WithLabelValues(c.model, "ok").Inc()
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (c *Client) fail(span trace.Span, e *Error) error {
	metrics.CompletionRequests.WithLabelValues(c.model, string(e.Kind)).Inc()
	span.RecordError(e.Err)
	span.SetStatus(codes.Error, e.Error())
	slog.Error("completion request failed",
		"kind", e.Kind,
		"status", e.StatusCode,
		"model", c.model,
		"error", e.Err,
	)
	return e
}

func classify(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindStatus, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Kind: KindStatus, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindNetwork, Err: err}
	}
	return &Error{Kind: KindUnexpected, Err: err}
}
