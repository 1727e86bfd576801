// Package llm defines the Provider interface for text-generation backends used
// to produce structured, one-shot completions.
//
// A provider wraps a remote or local model API (Gemini, OpenAI, Anthropic, a
// local Ollama instance, ...) and exposes a uniform Complete call. Requests
// may carry a [Schema] describing the JSON object the model must return;
// backends with native structured output enforce it, the others report
// StructuredOutput=false so the caller can describe the schema in the prompt.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Roles accepted in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in the conversation sent to the model.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message drives the reply.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction.
	SystemPrompt string

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int

	// ResponseSchema, when set, asks for a JSON object matching the schema.
	ResponseSchema *Schema

	// SchemaName names the schema for backends that require one.
	SchemaName string
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the text of the reply. With a ResponseSchema it is a JSON
	// document, possibly wrapped in a markdown fence by weaker backends.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Capabilities describes static properties of a provider's model.
type Capabilities struct {
	// Model is the model identifier requests are sent to.
	Model string

	// StructuredOutput reports whether ResponseSchema is enforced natively.
	StructuredOutput bool
}

// Provider is the abstraction over any text-generation backend.
//
// Complete must propagate context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata for the provider. The result is
	// constant for the lifetime of the Provider.
	Capabilities() Capabilities
}
