// Package anyllm serves echo generation from any vendor supported by
// github.com/mozilla-ai/any-llm-go: OpenAI, Anthropic, Gemini, Ollama,
// DeepSeek, Mistral, Groq and the local llama.cpp and llamafile servers.
//
// any-llm-go has no portable structured-output switch, so the provider
// reports StructuredOutput=false and callers describe the expected JSON
// document in the prompt.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "", anyllmlib.WithAPIKey("sk-ant-..."))
//	p, err := anyllm.New("ollama", "llama3.2")
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/soulecho/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// vendor builds one any-llm-go backend and names the model used when the
// caller leaves it empty.
type vendor struct {
	build        func(...anyllmlib.Option) (anyllmlib.Provider, error)
	defaultModel string
}

// Small, fast models: an echo is a few dozen tokens of JSON.
var vendors = map[string]vendor{
	"openai":    {build: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) }, defaultModel: "gpt-4o-mini"},
	"anthropic": {build: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) }, defaultModel: "claude-3-5-haiku-latest"},
	"gemini":    {build: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) }, defaultModel: "gemini-2.5-flash"},
	"ollama":    {build: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) }, defaultModel: "llama3.2"},
	"deepseek":  {build: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) }, defaultModel: "deepseek-chat"},
	"mistral":   {build: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) }, defaultModel: "mistral-small-latest"},
	"groq":      {build: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) }, defaultModel: "llama-3.1-8b-instant"},
	"llamacpp":  {build: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) }, defaultModel: "local"},
	"llamafile": {build: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) }, defaultModel: "local"},
}

// Supported returns the accepted vendor names, sorted.
func Supported() []string {
	return slices.Sorted(maps.Keys(vendors))
}

// DefaultModel returns the model used for vendor when none is configured.
func DefaultModel(vendorName string) string {
	return vendors[strings.ToLower(vendorName)].defaultModel
}

// Provider implements llm.Provider on top of one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	vendor  string
	model   string
}

// New creates a provider for vendorName. An empty model selects the
// vendor's [DefaultModel].
//
// opts are any-llm-go options such as anyllmlib.WithAPIKey and
// anyllmlib.WithBaseURL. Without an API key option the vendor SDK reads its
// usual environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func New(vendorName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	name := strings.ToLower(vendorName)
	if name == "" {
		return nil, errors.New("anyllm: vendor must not be empty")
	}
	v, ok := vendors[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported vendor %q; supported: %s", vendorName, strings.Join(Supported(), ", "))
	}
	if model == "" {
		model = v.defaultModel
	}

	backend, err := v.build(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s backend: %w", name, err)
	}
	return &Provider{backend: backend, vendor: name, model: model}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.vendor, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s: reply has no choices", p.vendor)
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{Model: p.vendor + "/" + p.model}
}

func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}
