package echo_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/soulecho/internal/echo"
	"github.com/MrWong99/soulecho/internal/observe"
	"github.com/MrWong99/soulecho/pkg/provider/llm"
	"github.com/MrWong99/soulecho/pkg/provider/llm/mock"
)

const validJSON = `{"title":"Compass of Clarity","description":"Every path begins with a single calm breath.","icon":"🧭","color":"bg-purple-100","rarity":"Epic"}`

func newGenerator(t *testing.T, p llm.Provider) (*echo.Generator, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	g, err := echo.New(p, echo.WithMetrics(m), echo.WithPicker(func(int) int { return 4 }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g, reader
}

func outcomes(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "soulecho.echo.generated" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestNew_NilProvider(t *testing.T) {
	t.Parallel()
	if _, err := echo.New(nil); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: validJSON},
		Caps:             llm.Capabilities{StructuredOutput: true},
	}
	g, reader := newGenerator(t, p)

	res := g.Generate(context.Background(), 7)
	if res.Fallback || res.Err != nil {
		t.Fatalf("Fallback=%v Err=%v", res.Fallback, res.Err)
	}
	want := echo.Content{
		Title:       "Compass of Clarity",
		Description: "Every path begins with a single calm breath.",
		Icon:        "🧭",
		Color:       "bg-purple-100",
		Rarity:      echo.Epic,
	}
	if res.Content != want {
		t.Errorf("Content = %+v, want %+v", res.Content, want)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.ResponseSchema == nil || req.SchemaName == "" {
		t.Error("request carries no schema")
	}
	if req.SystemPrompt != "" {
		t.Errorf("SystemPrompt = %q, want empty for structured backend", req.SystemPrompt)
	}
	if !strings.Contains(req.Messages[0].Content, "The player level is 7.") {
		t.Errorf("prompt = %q", req.Messages[0].Content)
	}
	if got := outcomes(t, reader); got[observe.OutcomeRemote] != 1 || got[observe.OutcomeFallback] != 0 {
		t.Errorf("outcomes = %v", got)
	}
}

func TestGenerate_SchemaInPromptWithoutStructuredOutput(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: validJSON}}
	g, _ := newGenerator(t, p)
	g.Generate(context.Background(), 1)

	req := p.Calls()[0].Req
	if !strings.Contains(req.SystemPrompt, `"rarity"`) {
		t.Errorf("SystemPrompt = %q, want schema", req.SystemPrompt)
	}
}

func TestGenerate_Fallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		resp           *llm.CompletionResponse
		err            error
		wantCredential bool
		wantErr        error
	}{
		{name: "transport error", err: errors.New("dial tcp: connection refused")},
		{name: "credential rejected", err: errors.New("Error 400, Message: API key not valid. Please pass a valid API key., Status: INVALID_ARGUMENT"), wantCredential: true},
		{name: "entity not found", err: errors.New("Requested entity was not found."), wantCredential: true},
		{name: "nil response", resp: nil, wantErr: echo.ErrEmptyResponse},
		{name: "blank response", resp: &llm.CompletionResponse{Content: "  "}, wantErr: echo.ErrEmptyResponse},
		{name: "not json", resp: &llm.CompletionResponse{Content: "A calm thought."}},
		{name: "missing field", resp: &llm.CompletionResponse{Content: `{"title":"T","description":"D","icon":"","color":"c","rarity":"Common"}`}, wantErr: echo.ErrInvalidContent},
		{name: "bad rarity", resp: &llm.CompletionResponse{Content: `{"title":"T","description":"D","icon":"i","color":"c","rarity":"Mythic"}`}, wantErr: echo.ErrInvalidContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &mock.Provider{CompleteResponse: tt.resp, CompleteErr: tt.err}
			g, reader := newGenerator(t, p)

			res := g.Generate(context.Background(), 1)
			if !res.Fallback || res.Err == nil {
				t.Fatalf("Fallback=%v Err=%v, want fallback with error", res.Fallback, res.Err)
			}
			if res.Content.Title != "Whisper of Courage" || res.Content.Rarity != echo.Rare {
				t.Errorf("Content = %+v, want picked fallback", res.Content)
			}
			if !slices.Contains(echo.Fallbacks(), res.Content) {
				t.Error("content is not one of the built-in echoes")
			}
			if res.CredentialRejected != tt.wantCredential {
				t.Errorf("CredentialRejected = %v, want %v", res.CredentialRejected, tt.wantCredential)
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
			if got := outcomes(t, reader); got[observe.OutcomeFallback] != 1 {
				t.Errorf("outcomes = %v", got)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "plain", input: validJSON},
		{name: "json fence", input: "```json\n" + validJSON + "\n```"},
		{name: "bare fence", input: "```\n" + validJSON + "\n```"},
		{name: "padded", input: "\n  " + validJSON + "  \n"},
		{name: "fields trimmed", input: `{"title":" Compass of Clarity ","description":"Every path begins with a single calm breath.","icon":"🧭","color":"bg-purple-100","rarity":" Epic"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := echo.Decode(tt.input)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if c.Title != "Compass of Clarity" || c.Rarity != echo.Epic {
				t.Errorf("Content = %+v", c)
			}
		})
	}
}

func TestFallbacks(t *testing.T) {
	t.Parallel()

	fb := echo.Fallbacks()
	if len(fb) != 5 {
		t.Fatalf("len = %d, want 5", len(fb))
	}
	for _, c := range fb {
		cp := c
		if err := cp.Validate(); err != nil {
			t.Errorf("fallback %q invalid: %v", c.Title, err)
		}
	}
	fb[0].Title = "changed"
	if echo.Fallbacks()[0].Title != "Quiet Moment" {
		t.Error("Fallbacks returned shared slice")
	}
}

func TestIsCredentialError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: errors.New("timeout"), want: false},
		{err: errors.New("rpc error: PERMISSION_DENIED"), want: true},
		{err: errors.New(`POST "https://api.openai.com/v1/chat/completions": 401 Unauthorized`), want: true},
		{err: errors.New("Error 403, Message: forbidden"), want: true},
	}
	for _, tt := range tests {
		if got := echo.IsCredentialError(tt.err); got != tt.want {
			t.Errorf("IsCredentialError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestSchema(t *testing.T) {
	t.Parallel()

	s := echo.Schema()
	if len(s.Required) != 5 {
		t.Errorf("Required = %v", s.Required)
	}
	if got := s.Properties["rarity"].Enum; len(got) != 4 || got[0] != "Common" || got[3] != "Legendary" {
		t.Errorf("rarity enum = %v", got)
	}
}
