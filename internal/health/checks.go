package health

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrWong99/soulecho/internal/resilience"
	"github.com/MrWong99/soulecho/pkg/persist"
)

// ProbeKey is the key written by [StorageChecker]. It never collides with
// the save slot.
const ProbeKey = "soulecho_health_probe"

// StorageChecker writes a timestamped JSON probe value to kv and reads it
// back.
func StorageChecker(kv persist.KV) Checker {
	return Checker{
		Name: "storage",
		Check: func(ctx context.Context) error {
			want := []byte(`{"probe":` + strconv.FormatInt(time.Now().UnixNano(), 10) + `}`)
			if err := kv.Put(ctx, ProbeKey, want); err != nil {
				return fmt.Errorf("write probe: %w", err)
			}
			got, err := kv.Get(ctx, ProbeKey)
			if err != nil {
				return fmt.Errorf("read probe: %w", err)
			}
			if !jsonEqualSpace(got, want) {
				return errors.New("probe value mismatch")
			}
			return nil
		},
	}
}

// jsonEqualSpace compares ignoring whitespace; JSONB backends may
// re-serialise the probe with a space after the colon.
func jsonEqualSpace(a, b []byte) bool {
	strip := func(p []byte) []byte {
		return bytes.Join(bytes.Fields(p), nil)
	}
	return bytes.Equal(strip(a), strip(b))
}

// CredentialChecker reports a missing API credential. It is optional: the
// game stays playable without one.
func CredentialChecker(has func(ctx context.Context) bool) Checker {
	return Checker{
		Name:     "credential",
		Optional: true,
		Check: func(ctx context.Context) error {
			if !has(ctx) {
				return errors.New("no API key configured")
			}
			return nil
		},
	}
}

// BreakerChecker degrades readiness while any echo backend breaker is not
// closed. All breakers open means only fallback echoes can be served.
func BreakerChecker(status func() []resilience.Status) Checker {
	return Checker{
		Name:     "echo_providers",
		Optional: true,
		Check: func(context.Context) error {
			var errs []error
			for _, st := range status() {
				if st.State != resilience.StateClosed {
					errs = append(errs, fmt.Errorf("%s: %s (%s)", st.Name, st.State, st.LastError))
				}
			}
			return errors.Join(errs...)
		},
	}
}
