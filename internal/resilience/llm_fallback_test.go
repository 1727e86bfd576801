package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/soulecho/pkg/provider/llm"
	llmmock "github.com/MrWong99/soulecho/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"title":"Lantern"}`},
	}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"title":"Pebble"}`},
	}

	fb := NewLLMFallback(primary, "gemini", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{SchemaName: "soul_echo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"title":"Lantern"}` {
		t.Fatalf("content = %q", resp.Content)
	}
	if len(primary.Calls()) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls()))
	}
	if got := primary.Calls()[0].Req.SchemaName; got != "soul_echo" {
		t.Errorf("forwarded SchemaName = %q", got)
	}
	if len(secondary.Calls()) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls()))
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"title":"Pebble"}`},
	}

	fb := NewLLMFallback(primary, "gemini", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"title":"Pebble"}` {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestLLMFallback_Complete_AllFail(t *testing.T) {
	t.Parallel()

	errKey := errors.New("API key not valid")
	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: errKey}, "gemini", FallbackConfig{})
	fb.AddFallback("openai", &llmmock.Provider{CompleteErr: errors.New("quota")})

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errKey) {
		t.Errorf("err = %v, want primary error reachable", err)
	}
}

func TestLLMFallback_Capabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		secondary      llm.Capabilities
		wantStructured bool
		wantModel      string
	}{
		{
			name:           "all structured",
			secondary:      llm.Capabilities{Model: "gpt-4o-mini", StructuredOutput: true},
			wantStructured: true,
			wantModel:      "gemini-2.5-flash > gpt-4o-mini",
		},
		{
			name:           "one unstructured",
			secondary:      llm.Capabilities{Model: "ollama/llama3"},
			wantStructured: false,
			wantModel:      "gemini-2.5-flash > ollama/llama3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fb := NewLLMFallback(&llmmock.Provider{
				Caps: llm.Capabilities{Model: "gemini-2.5-flash", StructuredOutput: true},
			}, "gemini", FallbackConfig{})
			fb.AddFallback("second", &llmmock.Provider{Caps: tt.secondary})

			caps := fb.Capabilities()
			if caps.StructuredOutput != tt.wantStructured {
				t.Errorf("StructuredOutput = %v, want %v", caps.StructuredOutput, tt.wantStructured)
			}
			if caps.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", caps.Model, tt.wantModel)
			}
		})
	}
}
