package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/soulecho/pkg/provider/llm"
)

func echoSchema() *llm.Schema {
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"title":  {Type: llm.TypeString, Description: "name"},
			"rarity": {Type: llm.TypeString, Enum: []string{"Common", "Rare", "Epic", "Legendary"}},
		},
		Required: []string{"title", "rarity"},
		Order:    []string{"title", "rarity"},
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestConvertSchema(t *testing.T) {
	t.Parallel()

	got := convertSchema(echoSchema())
	if got.Type != genai.TypeObject {
		t.Errorf("Type = %v, want object", got.Type)
	}
	if len(got.Properties) != 2 {
		t.Fatalf("Properties = %d, want 2", len(got.Properties))
	}
	if got.Properties["rarity"].Type != genai.TypeString {
		t.Errorf("rarity type = %v", got.Properties["rarity"].Type)
	}
	if len(got.Properties["rarity"].Enum) != 4 {
		t.Errorf("rarity enum = %v", got.Properties["rarity"].Enum)
	}
	if len(got.PropertyOrdering) != 2 || got.PropertyOrdering[0] != "title" {
		t.Errorf("PropertyOrdering = %v", got.PropertyOrdering)
	}
}

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	p := &Provider{model: DefaultModel}
	contents, cfg := p.buildRequest(llm.CompletionRequest{
		SystemPrompt:   "be calm",
		Messages:       []llm.Message{{Role: llm.RoleSystem, Content: "extra"}, {Role: llm.RoleUser, Content: "hi"}},
		Temperature:    0.9,
		MaxTokens:      256,
		ResponseSchema: echoSchema(),
	})

	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1 (system folded into instruction)", len(contents))
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "be calm\n\nextra" {
		t.Errorf("SystemInstruction = %+v", cfg.SystemInstruction)
	}
	if cfg.ResponseMIMEType != "application/json" {
		t.Errorf("ResponseMIMEType = %q", cfg.ResponseMIMEType)
	}
	if cfg.MaxOutputTokens != 256 {
		t.Errorf("MaxOutputTokens = %d", cfg.MaxOutputTokens)
	}
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.9) {
		t.Errorf("Temperature = %v", cfg.Temperature)
	}
}

func TestComplete_AgainstServer(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		gotPath string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath = r.URL.Path
		_ = json.Unmarshal(body, &gotBody)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"title\":\"Compass of Clarity\",\"rarity\":\"Rare\"}"}]}}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 8, "totalTokenCount": 20}
		}`)
	}))
	defer srv.Close()

	p, err := New(context.Background(), "test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: "level 3"}},
		ResponseSchema: echoSchema(),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.Contains(resp.Content, "Compass of Clarity") {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 20 || resp.Usage.PromptTokens != 12 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.HasSuffix(gotPath, "models/"+DefaultModel+":generateContent") {
		t.Errorf("path = %q", gotPath)
	}
	genCfg, _ := gotBody["generationConfig"].(map[string]any)
	if genCfg["responseMimeType"] != "application/json" {
		t.Errorf("generationConfig = %v", genCfg)
	}
}

func TestComplete_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`)
	}))
	defer srv.Close()

	p, err := New(context.Background(), "bad-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("error should carry server message, got %v", err)
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gemini-x"}
	caps := p.Capabilities()
	if caps.Model != "gemini-x" || !caps.StructuredOutput {
		t.Errorf("Capabilities = %+v", caps)
	}
}
