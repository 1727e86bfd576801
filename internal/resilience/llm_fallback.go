package resilience

import (
	"context"
	"strings"

	"github.com/MrWong99/soulecho/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] over a [FallbackGroup] of completion
// backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities merges the backend capabilities. Model joins every backend
// model with " > " in try order. StructuredOutput is reported only when every
// backend enforces response schemas, since any of them may end up serving a
// request.
func (f *LLMFallback) Capabilities() llm.Capabilities {
	caps := llm.Capabilities{StructuredOutput: len(f.group.entries) > 0}
	models := make([]string, 0, len(f.group.entries))
	for _, e := range f.group.entries {
		c := e.value.Capabilities()
		models = append(models, c.Model)
		caps.StructuredOutput = caps.StructuredOutput && c.StructuredOutput
	}
	caps.Model = strings.Join(models, " > ")
	return caps
}

// Status returns the breaker snapshot of every backend.
func (f *LLMFallback) Status() []Status { return f.group.Status() }

// Reset closes every backend breaker.
func (f *LLMFallback) Reset() { f.group.Reset() }
