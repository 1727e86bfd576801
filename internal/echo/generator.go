// Package echo generates soul echoes: short metaphorical items carrying a
// calming thought, produced by a text model as a structured JSON object.
//
// [Generator.Generate] never fails outright. When the model cannot be
// reached or answers with something unusable, the result carries one of the
// built-in [Fallbacks] with Fallback set, so callers can tell a real
// discovery from a placeholder without inspecting its text.
package echo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/soulecho/internal/observe"
	"github.com/MrWong99/soulecho/pkg/provider/llm"
)

// ErrEmptyResponse is returned when the model answered with no text.
var ErrEmptyResponse = errors.New("echo: empty response")

// Default request tuning.
const (
	DefaultTemperature = 1.0
	DefaultMaxTokens   = 1024
	DefaultTimeout     = 60 * time.Second
)

// Result is the outcome of one generation.
type Result struct {
	// Content is always populated.
	Content Content

	// Fallback is true when Content is a built-in echo.
	Fallback bool

	// Err is the reason for the fallback, nil on success.
	Err error

	// CredentialRejected is true when Err indicates a rejected API key.
	CredentialRejected bool
}

// Generator requests echoes from an [llm.Provider].
type Generator struct {
	provider    llm.Provider
	metrics     *observe.Metrics
	pick        func(n int) int
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// Option configures a [Generator].
type Option func(*Generator)

// WithMetrics records generation metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithPicker overrides how a fallback index in [0, n) is chosen.
func WithPicker(pick func(n int) int) Option {
	return func(g *Generator) { g.pick = pick }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// WithTimeout bounds a single request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// New returns a generator backed by p.
func New(p llm.Provider, opts ...Option) (*Generator, error) {
	if p == nil {
		return nil, errors.New("echo: provider must not be nil")
	}
	g := &Generator{
		provider:    p,
		pick:        rand.IntN,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		timeout:     DefaultTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g, nil
}

// Generate asks the model for an echo suited to the player level.
func (g *Generator) Generate(ctx context.Context, level int) Result {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "echo.generate")
	span.SetAttributes(attribute.Int("player.level", level))

	content, err := g.request(ctx, level)
	if err == nil {
		g.metrics.RecordEcho(ctx, observe.OutcomeRemote, time.Since(start))
		observe.EndSpan(span, nil)
		return Result{Content: content}
	}

	res := Result{
		Content:            fallbacks[g.pick(len(fallbacks))],
		Fallback:           true,
		Err:                err,
		CredentialRejected: IsCredentialError(err),
	}
	span.SetAttributes(attribute.Bool("echo.credential_rejected", res.CredentialRejected))
	g.metrics.RecordEcho(ctx, observe.OutcomeFallback, time.Since(start))
	observe.EndSpan(span, err)
	observe.Logger(ctx).Warn("echo generation failed, using fallback",
		"level", level,
		"fallback", res.Content.Title,
		"credential_rejected", res.CredentialRejected,
		"err", err,
	)
	return res
}

func (g *Generator) request(ctx context.Context, level int) (Content, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := llm.CompletionRequest{
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: Prompt(level)}},
		Temperature:    g.temperature,
		MaxTokens:      g.maxTokens,
		ResponseSchema: Schema(),
		SchemaName:     "soul_echo",
	}
	if !g.provider.Capabilities().StructuredOutput {
		req.SystemPrompt = "Respond with a single JSON object and nothing else. It must match this JSON Schema: " + Schema().String()
	}

	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		return Content{}, fmt.Errorf("echo: complete: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return Content{}, ErrEmptyResponse
	}
	return Decode(resp.Content)
}

// Decode parses a model response into validated content. Markdown code
// fences around the JSON object are tolerated.
func Decode(text string) (Content, error) {
	var c Content
	if err := json.Unmarshal([]byte(unfence(text)), &c); err != nil {
		return Content{}, fmt.Errorf("echo: decode response: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Content{}, err
	}
	return c, nil
}

// unfence strips a surrounding ``` or ```json fence.
func unfence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
