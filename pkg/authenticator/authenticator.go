// Package authenticator defines the platform public-key credential capability
// consumed by the ceremony layer, and ships an in-memory software token for
// environments without hardware.
package authenticator

import (
	"context"
	"errors"

	"github.com/go-passkey/ceremony/pkg/webauthntypes"
)

var (
	ErrUnsupported          = errors.New("authenticator: public-key credential capability unavailable")
	ErrCancelled            = errors.New("authenticator: ceremony cancelled by user")
	ErrTimeout              = errors.New("authenticator: ceremony timed out")
	ErrNoMatchingCredential = errors.New("authenticator: no matching credential")
	ErrAlgorithmUnsupported = errors.New("authenticator: no supported algorithm in parameters")
	ErrSeedTooShort         = errors.New("authenticator: seed must be at least 16 bytes")
)

// Authenticator is the capability boundary to a platform authenticator. Both
// operations suspend until the user completes the ceremony, cancels it, or
// the timeout elapses; a failed attempt retains no partial state.
type Authenticator interface {
	// Supported reports whether the capability is usable in this environment.
	// Callers must check it before fetching ceremony options.
	Supported() bool

	// CreateCredential generates a new key pair bound to the relying party
	// and user described by opts, requiring user presence.
	CreateCredential(ctx context.Context, opts *webauthntypes.CreationOptions) (*webauthntypes.CredentialResult, error)

	// GetAssertion produces a signature proving possession of a previously
	// registered credential, constrained to opts.AllowCredentials when
	// non-empty.
	GetAssertion(ctx context.Context, opts *webauthntypes.RequestOptions) (*webauthntypes.AssertionResult, error)
}
