// Package ceremony runs complete WebAuthn ceremonies against a relying party:
// options fetch, authenticator invocation, transport encoding and
// verification submit, as one state machine shared by registration and
// authentication.
package ceremony

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-passkey/ceremony/pkg/authenticator"
	"github.com/go-passkey/ceremony/pkg/options"
	"github.com/go-passkey/ceremony/pkg/rpclient"
)

// State is the observable position of a Flow in the shared ceremony state
// machine. Success, VerificationFailed and CeremonyFailed are terminal; a new
// ceremony (or Reset) is the only way out of them.
type State string

const (
	StateIdle               State = "idle"
	StateOptionsRequested   State = "options-requested"
	StateOptionsReady       State = "options-ready"
	StateCeremonyInProgress State = "ceremony-in-progress"
	StateCeremonyComplete   State = "ceremony-complete"
	StateVerifying          State = "verifying"
	StateSuccess            State = "success"
	StateVerificationFailed State = "verification-failed"
	StateCeremonyFailed     State = "ceremony-failed"
)

func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateVerificationFailed, StateCeremonyFailed:
		return true
	}
	return false
}

var (
	ErrCapabilityUnsupported = errors.New("ceremony: platform authenticator capability unavailable")
	ErrCeremonyInFlight      = errors.New("ceremony: another ceremony is in flight")
	ErrAttemptSuperseded     = errors.New("ceremony: attempt superseded")
)

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeEnrolled OutcomeKind = iota + 1
	OutcomeVerified
)

// Outcome is the tagged result of a successful ceremony: Enrolled carries the
// stored credential, Verified carries the established session. Failure is the
// error return of the ceremony entry points.
type Outcome struct {
	Kind       OutcomeKind
	Credential *rpclient.EnrolledCredential // Kind == OutcomeEnrolled
	Session    *rpclient.Session            // Kind == OutcomeVerified
}

// Flow drives ceremonies for one user session. Only one ceremony may be in
// flight at a time; a second start is rejected, never interleaved. Cancelling
// the context aborts the current attempt, and its challenge is never reused:
// every retry starts with a fresh options fetch.
type Flow struct {
	rp      *rpclient.Client
	authn   authenticator.Authenticator
	logger  *slog.Logger
	timeout time.Duration

	mu         sync.Mutex
	state      State
	generation uint64
}

func New(rp *rpclient.Client, authn authenticator.Authenticator, opts ...options.Option) *Flow {
	oo := options.NewOptions(opts...)

	return &Flow{
		rp:      rp,
		authn:   authn,
		logger:  oo.Logger,
		timeout: oo.Timeout,
		state:   StateIdle,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Reset returns the flow to Idle and invalidates any attempt still running,
// so its late results are discarded rather than applied.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.state = StateIdle
}

// Enroll runs the registration ceremony: fetch creation options, create a
// credential on the authenticator, submit the encoded result with the
// original challenge.
func (f *Flow) Enroll(ctx context.Context, credentialName string) (*Outcome, error) {
	// Fail fast, before any network round trip.
	if !f.authn.Supported() {
		return nil, ErrCapabilityUnsupported
	}

	gen, err := f.begin()
	if err != nil {
		return nil, err
	}
	f.logger.Debug("registration ceremony started", "credentialName", credentialName)

	opts, challenge, err := f.rp.RegistrationOptions(ctx, credentialName)
	if err != nil {
		f.transition(gen, StateCeremonyFailed)
		return nil, err
	}
	f.transition(gen, StateOptionsReady)

	f.transition(gen, StateCeremonyInProgress)
	cctx, cancel := f.ceremonyContext(ctx, opts.Timeout)
	defer cancel()
	cred, err := f.authn.CreateCredential(cctx, opts)
	if err != nil {
		f.transition(gen, StateCeremonyFailed)
		return nil, err
	}
	if !f.transition(gen, StateCeremonyComplete) {
		// The attempt was invalidated while the user interacted with the
		// authenticator; its result must not reach the server.
		return nil, ErrAttemptSuperseded
	}

	f.transition(gen, StateVerifying)
	enrolled, err := f.rp.CompleteRegistration(ctx, credentialName, challenge, cred)
	if err != nil {
		f.transition(gen, StateVerificationFailed)
		return nil, err
	}
	f.transition(gen, StateSuccess)
	f.logger.Debug("registration ceremony succeeded", "credentialId", enrolled.ID)

	return &Outcome{Kind: OutcomeEnrolled, Credential: enrolled}, nil
}

// Authenticate runs the authentication ceremony for email and returns the
// established session.
func (f *Flow) Authenticate(ctx context.Context, email string) (*Outcome, error) {
	if !f.authn.Supported() {
		return nil, ErrCapabilityUnsupported
	}

	gen, err := f.begin()
	if err != nil {
		return nil, err
	}
	f.logger.Debug("authentication ceremony started", "email", email)

	opts, challenge, err := f.rp.AuthenticationOptions(ctx, email)
	if err != nil {
		f.transition(gen, StateCeremonyFailed)
		return nil, err
	}
	f.transition(gen, StateOptionsReady)

	f.transition(gen, StateCeremonyInProgress)
	cctx, cancel := f.ceremonyContext(ctx, opts.Timeout)
	defer cancel()
	assertion, err := f.authn.GetAssertion(cctx, opts)
	if err != nil {
		f.transition(gen, StateCeremonyFailed)
		return nil, err
	}
	if !f.transition(gen, StateCeremonyComplete) {
		return nil, ErrAttemptSuperseded
	}

	f.transition(gen, StateVerifying)
	session, err := f.rp.CompleteAuthentication(ctx, email, challenge, assertion)
	if err != nil {
		f.transition(gen, StateVerificationFailed)
		return nil, err
	}
	f.transition(gen, StateSuccess)
	f.logger.Debug("authentication ceremony succeeded", "userId", session.User.ID)

	return &Outcome{Kind: OutcomeVerified, Session: session}, nil
}

// begin claims the single in-flight slot. A terminal state counts as idle:
// starting a new ceremony is the explicit user-initiated restart.
func (f *Flow) begin() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateIdle && !f.state.Terminal() {
		return 0, ErrCeremonyInFlight
	}

	f.generation++
	f.state = StateOptionsRequested
	return f.generation, nil
}

// transition moves the current attempt to s. It reports false when the
// attempt has been superseded, in which case the state is left alone.
func (f *Flow) transition(gen uint64, s State) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.generation {
		return false
	}
	f.state = s
	f.logger.Debug("ceremony state", "state", s)
	return true
}

func (f *Flow) ceremonyContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = f.timeout
	}
	return context.WithTimeout(ctx, timeout)
}

// UserMessage maps any ceremony error to one human-readable message class.
// Server internals never leak past the short reason code.
func UserMessage(err error) string {
	var verErr *rpclient.VerificationError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCapabilityUnsupported), errors.Is(err, authenticator.ErrUnsupported):
		return "Your device does not support biometric authentication"
	case errors.Is(err, authenticator.ErrCancelled):
		return "Biometric prompt was cancelled"
	case errors.Is(err, authenticator.ErrTimeout):
		return "Biometric prompt timed out, please try again"
	case errors.Is(err, ErrCeremonyInFlight):
		return "Another biometric prompt is already open"
	case errors.As(err, &verErr):
		return "The server rejected the attempt (" + string(verErr.Reason) + "), please try again"
	default:
		return "Could not reach the server, please try again"
	}
}
