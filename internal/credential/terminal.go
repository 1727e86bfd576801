package credential

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

var _ Checker = (*Terminal)(nil)

// Terminal reads the key from a file, falls back to the environment and
// prompts on the controlling terminal. Entered keys are written to the key
// file with mode 0600.
type Terminal struct {
	path  string
	in    io.Reader
	fd    int
	out   io.Writer
	state keyState
}

// TerminalOption configures a [Terminal].
type TerminalOption func(*Terminal)

// WithInput reads prompted keys from r instead of the terminal. Input is
// echoed as typed.
func WithInput(r io.Reader) TerminalOption {
	return func(t *Terminal) {
		t.in = r
		t.fd = -1
	}
}

// WithOutput sets where prompts are written. Defaults to stderr.
func WithOutput(w io.Writer) TerminalOption {
	return func(t *Terminal) { t.out = w }
}

// NewTerminal loads the key from path, then from lookup. A missing key file
// is not an error.
func NewTerminal(path string, lookup LookupFunc, opts ...TerminalOption) (*Terminal, error) {
	t := &Terminal{
		path: path,
		in:   os.Stdin,
		fd:   int(os.Stdin.Fd()),
		out:  os.Stderr,
	}
	for _, o := range opts {
		o(t)
	}

	key, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}
	if key == "" && lookup != nil {
		key = FromEnv(lookup)
	}
	t.state.set(key)
	return t, nil
}

func readKeyFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("credential: read key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// HasCredential implements [Checker].
func (t *Terminal) HasCredential(context.Context) bool { return t.state.has() }

// Key implements [Checker].
func (t *Terminal) Key() string { return t.state.get() }

// MarkInvalid implements [Checker].
func (t *Terminal) MarkInvalid() { t.state.markInvalid() }

// PromptForCredential implements [Checker]. The prompt is abandoned when ctx
// is done, though a pending terminal read is only released by input.
func (t *Terminal) PromptForCredential(ctx context.Context) error {
	type result struct {
		key string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		k, err := t.read()
		ch <- result{k, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r = <-ch:
	}
	if r.err != nil {
		return r.err
	}
	key := strings.TrimSpace(r.key)
	if key == "" {
		return ErrNoKey
	}

	if err := t.save(key); err != nil {
		return err
	}
	t.state.set(key)
	slog.Info("credential stored", "path", t.path)
	return nil
}

func (t *Terminal) read() (string, error) {
	fmt.Fprint(t.out, "Enter your API key: ")
	if t.fd >= 0 {
		if !term.IsTerminal(t.fd) {
			return "", ErrNotInteractive
		}
		b, err := term.ReadPassword(t.fd)
		fmt.Fprintln(t.out)
		if err != nil {
			return "", fmt.Errorf("credential: read key: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(t.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("credential: read key: %w", err)
	}
	return line, nil
}

func (t *Terminal) save(key string) error {
	if t.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o700); err != nil {
		return fmt.Errorf("credential: create key dir: %w", err)
	}
	if err := os.WriteFile(t.path, []byte(key+"\n"), 0o600); err != nil {
		return fmt.Errorf("credential: write key file: %w", err)
	}
	return nil
}
