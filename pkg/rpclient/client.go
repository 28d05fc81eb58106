// Package rpclient talks to the relying-party server: it fetches single-use
// ceremony options, submits encoded ceremony results for verification, and
// manages enrolled credentials.
package rpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-passkey/ceremony/pkg/options"
	"github.com/go-passkey/ceremony/pkg/webauthntypes"
	"github.com/go-passkey/ceremony/pkg/wire"
)

// maxReasonLen caps how much of a server error body may surface to callers.
const maxReasonLen = 64

type Client struct {
	baseURL string
	http    *http.Client
	enc     wire.Encoding
	logger  *slog.Logger
	token   string
}

func New(baseURL string, opts ...options.Option) *Client {
	oo := options.NewOptions(opts...)

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    oo.HTTPClient,
		enc:     oo.Encoding,
		logger:  oo.Logger,
		token:   oo.BearerToken,
	}
}

// Encoding returns the transport encoding this client applies to every byte
// field, in both directions.
func (c *Client) Encoding() wire.Encoding {
	return c.enc
}

// SetBearerToken replaces the Authorization token used on subsequent
// requests, typically after a successful authentication ceremony.
func (c *Client) SetBearerToken(token string) {
	c.token = token
}

// RegistrationOptions requests single-use registration ceremony options. The
// returned challenge string is the server's verbatim value and must be echoed
// on CompleteRegistration for the same attempt.
func (c *Client) RegistrationOptions(ctx context.Context, credentialName string) (*webauthntypes.CreationOptions, string, error) {
	var env creationOptionsEnvelope
	status, raw, err := c.do(ctx, http.MethodPost, "/biometric/enroll/start",
		&registrationStartRequest{CredentialName: credentialName}, &env)
	if err != nil {
		return nil, "", err
	}
	if status/100 != 2 {
		return nil, "", &OptionsError{Op: "enroll/start", Status: status, Reason: reasonFrom(raw)}
	}

	opts, err := c.decodeCreationOptions(&env)
	if err != nil {
		return nil, "", err
	}
	if err := opts.Validate(); err != nil {
		return nil, "", &OptionsError{Op: "enroll/start", Status: status, Reason: err.Error(), err: err}
	}

	return opts, env.Challenge, nil
}

// AuthenticationOptions requests single-use authentication ceremony options
// for the given email.
func (c *Client) AuthenticationOptions(ctx context.Context, email string) (*webauthntypes.RequestOptions, string, error) {
	var env requestOptionsEnvelope
	status, raw, err := c.do(ctx, http.MethodPost, "/biometric/authenticate/start",
		&authenticationStartRequest{Email: email}, &env)
	if err != nil {
		return nil, "", err
	}
	if status/100 != 2 {
		return nil, "", &OptionsError{Op: "authenticate/start", Status: status, Reason: reasonFrom(raw)}
	}

	opts, err := c.decodeRequestOptions(&env)
	if err != nil {
		return nil, "", err
	}
	if err := opts.Validate(); err != nil {
		return nil, "", &OptionsError{Op: "authenticate/start", Status: status, Reason: err.Error(), err: err}
	}

	return opts, env.Challenge, nil
}

// CompleteRegistration submits an encoded registration result together with
// the original challenge. A rejection is terminal for the attempt: the
// challenge is consumed either way, so the caller must restart from
// RegistrationOptions rather than resend.
func (c *Client) CompleteRegistration(
	ctx context.Context,
	credentialName, challenge string,
	cred *webauthntypes.CredentialResult,
) (*EnrolledCredential, error) {
	req := &registrationCompleteRequest{
		Credential:     c.encodeCredential(cred),
		CredentialName: credentialName,
		Challenge:      challenge,
	}

	var resp registrationCompleteResponse
	status, raw, err := c.do(ctx, http.MethodPost, "/biometric/enroll/complete", req, &resp)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, &VerificationError{Ceremony: "registration", Status: status, Reason: verificationReasonFrom(raw)}
	}

	return &resp.Credential, nil
}

// CompleteAuthentication submits an encoded assertion together with the
// original challenge and returns the established session. Same no-resend rule
// as CompleteRegistration.
func (c *Client) CompleteAuthentication(
	ctx context.Context,
	email, challenge string,
	assertion *webauthntypes.AssertionResult,
) (*Session, error) {
	req := &authenticationCompleteRequest{
		Email:     email,
		Assertion: c.encodeAssertion(assertion),
		Challenge: challenge,
	}

	var session Session
	status, raw, err := c.do(ctx, http.MethodPost, "/biometric/authenticate/complete", req, &session)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, &VerificationError{Ceremony: "authentication", Status: status, Reason: verificationReasonFrom(raw)}
	}

	return &session, nil
}

// Credentials lists the caller's enrolled credentials.
func (c *Client) Credentials(ctx context.Context) ([]EnrolledCredential, error) {
	var env credentialListEnvelope
	status, raw, err := c.do(ctx, http.MethodGet, "/biometric/credentials", nil, &env)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, &StatusError{Op: "list credentials", Status: status, Reason: reasonFrom(raw)}
	}

	return env.Credentials, nil
}

// RenameCredential updates the display name of an enrolled credential.
func (c *Client) RenameCredential(ctx context.Context, id, name string) error {
	status, raw, err := c.do(ctx, http.MethodPut, "/biometric/credentials/"+url.PathEscape(id),
		&renameCredentialRequest{Name: name}, nil)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return &StatusError{Op: "rename credential", Status: status, Reason: reasonFrom(raw)}
	}
	return nil
}

// DeleteCredential removes an enrolled credential.
func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	status, raw, err := c.do(ctx, http.MethodDelete, "/biometric/credentials/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return &StatusError{Op: "delete credential", Status: status, Reason: reasonFrom(raw)}
	}
	return nil
}

// EnrollFace stores a face embedding for the authenticated user. Capturing
// the embedding is the caller's concern.
func (c *Client) EnrollFace(ctx context.Context, embedding []float64) error {
	status, raw, err := c.do(ctx, http.MethodPost, "/face/enroll", &faceEnrollRequest{Embedding: embedding}, nil)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return &StatusError{Op: "enroll face", Status: status, Reason: reasonFrom(raw)}
	}
	return nil
}

// VerifyFace matches a face embedding against the enrolled one. A
// non-matching face is a negative result, not an error.
func (c *Client) VerifyFace(ctx context.Context, embedding []float64) (bool, error) {
	var resp faceVerifyResponse
	status, raw, err := c.do(ctx, http.MethodPost, "/face/verify", &faceEnrollRequest{Embedding: embedding}, &resp)
	if err != nil {
		return false, err
	}
	if status/100 != 2 {
		return false, &StatusError{Op: "verify face", Status: status, Reason: reasonFrom(raw)}
	}

	return resp.Verified, nil
}

// do performs one JSON request/response exchange. Non-2xx responses are not
// an error here; callers map status and body to their own taxonomy.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, []byte, error) {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("rpclient: cannot marshal %s request: %w", op, err)
		}
		c.logger.Debug("rp request", "op", op, "body", string(b))
		body = bytes.NewReader(b)
	} else {
		c.logger.Debug("rp request", "op", op)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("rpclient: cannot build %s request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, &TransportError{Op: op, err: err}
	}
	c.logger.Debug("rp response", "op", op, "status", resp.StatusCode, "body", string(raw))

	if resp.StatusCode/100 == 2 && out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, raw, fmt.Errorf("rpclient: malformed %s response: %w", op, err)
		}
	}

	return resp.StatusCode, raw, nil
}

// reasonFrom extracts a short reason code from an error body. Anything beyond
// a short printable code is discarded.
func reasonFrom(raw []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}

	reason := strings.TrimSpace(env.Error)
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, reason)
}

func verificationReasonFrom(raw []byte) VerificationReason {
	reason := VerificationReason(reasonFrom(raw))
	if knownReasons[reason] {
		return reason
	}
	return ReasonRejected
}
