package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/soulecho/internal/app"
	"github.com/MrWong99/soulecho/internal/config"
	"github.com/MrWong99/soulecho/internal/credential"
	"github.com/MrWong99/soulecho/internal/resilience"
	"github.com/MrWong99/soulecho/pkg/provider/llm"
)

func TestEchoChain_FailsOverInOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.echo["primary"].CompleteErr = errors.New("primary: 503 unavailable")
	f.echo["secondary"].CompleteResponse = &llm.CompletionResponse{Content: "from secondary"}

	chain := app.NewEchoChain(f.reg, []config.ProviderEntry{{Name: "primary"}, {Name: "secondary"}},
		&credential.Stub{Secret: "k"}, testMetrics(t))

	resp, err := chain.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from secondary" {
		t.Errorf("Content = %q", resp.Content)
	}
	if got := len(f.echo["primary"].Calls()); got != 1 {
		t.Errorf("primary calls = %d, want 1", got)
	}

	status := chain.Status()
	if len(status) != 2 || status[0].Name != "primary" || status[1].Name != "secondary" {
		t.Fatalf("Status = %+v", status)
	}
}

func TestEchoChain_InjectsCredentialAndRebuildsOnKeyChange(t *testing.T) {
	t.Parallel()

	f := newFixture()
	cred := &credential.Stub{Secret: "k1", PromptKey: "k2"}
	chain := app.NewEchoChain(f.reg, []config.ProviderEntry{
		{Name: "primary"},
		{Name: "secondary", APIKey: "own"},
	}, cred, testMetrics(t))

	ctx := context.Background()
	for range 2 {
		if _, err := chain.Complete(ctx, llm.CompletionRequest{}); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	created := f.createdEntries()
	if len(created) != 2 {
		t.Fatalf("backends built %d times, want 2 (built once)", len(created))
	}
	if created[0].APIKey != "k1" || created[1].APIKey != "own" {
		t.Errorf("keys = %q, %q; want k1, own", created[0].APIKey, created[1].APIKey)
	}

	if err := cred.PromptForCredential(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := chain.Complete(ctx, llm.CompletionRequest{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	created = f.createdEntries()
	if len(created) != 4 {
		t.Fatalf("backends built %d times, want 4 after key change", len(created))
	}
	if created[2].APIKey != "k2" {
		t.Errorf("rebuilt key = %q, want k2", created[2].APIKey)
	}
}

func TestEchoChain_SkipsUnbuildableBackends(t *testing.T) {
	t.Parallel()

	f := newFixture()
	chain := app.NewEchoChain(f.reg, []config.ProviderEntry{{Name: "broken"}, {Name: "secondary"}},
		&credential.Stub{Secret: "k"}, testMetrics(t))

	caps := chain.Capabilities()
	if caps.Model != "s-1" || !caps.StructuredOutput {
		t.Errorf("Capabilities = %+v, want secondary only", caps)
	}
}

func TestEchoChain_NoBackend(t *testing.T) {
	t.Parallel()

	f := newFixture()
	chain := app.NewEchoChain(f.reg, []config.ProviderEntry{{Name: "broken"}, {Name: "unknown"}},
		&credential.Stub{}, testMetrics(t))

	_, err := chain.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, app.ErrNoEchoBackend) {
		t.Fatalf("err = %v, want ErrNoEchoBackend", err)
	}
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want the unknown backend cause joined", err)
	}
	if caps := chain.Capabilities(); caps != (llm.Capabilities{}) {
		t.Errorf("Capabilities = %+v, want zero", caps)
	}
	if st := chain.Status(); st != nil {
		t.Errorf("Status = %+v, want nil", st)
	}
}

func TestEchoChain_AllFailed(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.echo["primary"].CompleteErr = errors.New("Error 400, Message: API key not valid")
	chain := app.NewEchoChain(f.reg, []config.ProviderEntry{{Name: "primary"}},
		&credential.Stub{Secret: "k"}, testMetrics(t))

	_, err := chain.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
