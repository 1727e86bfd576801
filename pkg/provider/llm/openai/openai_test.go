package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/soulecho/pkg/provider/llm"
)

var echoSchema = &llm.Schema{
	Type:       llm.TypeObject,
	Properties: map[string]*llm.Schema{"title": {Type: llm.TypeString}},
	Required:   []string{"title"},
}

func TestMessage(t *testing.T) {
	t.Parallel()

	for _, role := range []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		if _, err := message(llm.Message{Role: role, Content: "x"}); err != nil {
			t.Errorf("%s: %v", role, err)
		}
	}
	if _, err := message(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Error("tool role: expected error")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("empty api key: expected error")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("empty model: expected error")
	}
	p, err := New("sk-test", "gpt-4o", WithOrganization("org-1"), WithTimeout(1))
	if err != nil {
		t.Fatal(err)
	}
	if caps := p.Capabilities(); caps.Model != "gpt-4o" || !caps.StructuredOutput {
		t.Errorf("Capabilities = %+v", caps)
	}
}

func TestParams_SchemaName(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		req  llm.CompletionRequest
		want string
	}{
		{name: "named", req: llm.CompletionRequest{ResponseSchema: echoSchema, SchemaName: "soul_echo"}, want: "soul_echo"},
		{name: "default", req: llm.CompletionRequest{ResponseSchema: echoSchema}, want: defaultSchemaName},
		{name: "plain text", req: llm.CompletionRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.req.SystemPrompt = "sys"
			tt.req.Messages = []llm.Message{{Role: llm.RoleUser, Content: "level 3"}}
			params, err := p.params(tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if len(params.Messages) != 2 {
				t.Errorf("messages = %d, want system + user", len(params.Messages))
			}
			js := params.ResponseFormat.OfJSONSchema
			if tt.want == "" {
				if js != nil {
					t.Error("json_schema set without a schema")
				}
				return
			}
			if js == nil || js.JSONSchema.Name != tt.want {
				t.Fatalf("json_schema = %+v, want name %q", js, tt.want)
			}
		})
	}
}

// chatServer answers every chat completion with choice, recording the body.
func chatServer(t *testing.T, status int, choice string) (*httptest.Server, func() map[string]any) {
	t.Helper()
	var (
		mu   sync.Mutex
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(raw, &body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[`+choice+`],
			"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`)
	}))
	t.Cleanup(srv.Close)
	return srv, func() map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return body
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		choice      string
		wantContent string
		wantErr     error
		wantAnyErr  bool
	}{
		{
			name:        "structured reply",
			status:      http.StatusOK,
			choice:      `{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"title\":\"Lantern\"}"}}`,
			wantContent: `{"title":"Lantern"}`,
		},
		{
			name:    "refusal",
			status:  http.StatusOK,
			choice:  `{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"","refusal":"I can't help with that."}}`,
			wantErr: ErrRefused,
		},
		{
			name:    "truncated",
			status:  http.StatusOK,
			choice:  `{"index":0,"finish_reason":"length","message":{"role":"assistant","content":"{\"title\":\"Lan"}}`,
			wantErr: ErrTruncated,
		},
		{name: "rejected key", status: http.StatusUnauthorized, wantAnyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, body := chatServer(t, tt.status, tt.choice)
			p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := p.Complete(context.Background(), llm.CompletionRequest{
				Messages:       []llm.Message{{Role: llm.RoleUser, Content: "level 1"}},
				ResponseSchema: echoSchema,
			})

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			case tt.wantAnyErr:
				if err == nil {
					t.Fatal("expected error")
				}
				return
			case err != nil:
				t.Fatalf("Complete: %v", err)
			}
			if resp.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", resp.Content, tt.wantContent)
			}
			if resp.Usage.TotalTokens != 8 {
				t.Errorf("Usage = %+v", resp.Usage)
			}
			rf, _ := body()["response_format"].(map[string]any)
			if rf["type"] != "json_schema" {
				t.Errorf("response_format = %v", rf)
			}
		})
	}
}
