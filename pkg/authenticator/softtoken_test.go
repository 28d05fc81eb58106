package authenticator

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-passkey/ceremony/pkg/options"
	"github.com/go-passkey/ceremony/pkg/webauthntypes"
	"github.com/go-passkey/ceremony/pkg/wire"
)

var testSeed = []byte("0123456789abcdef0123456789abcdef")

func creationOptions() *webauthntypes.CreationOptions {
	return &webauthntypes.CreationOptions{
		Challenge: []byte("chal"),
		RP:        webauthntypes.PublicKeyCredentialRpEntity{ID: "example.com", Name: "Example"},
		User: webauthntypes.PublicKeyCredentialUserEntity{
			ID:          []byte("user1"),
			Name:        "a@b.com",
			DisplayName: "A",
		},
		PubKeyCredParams: []webauthntypes.PublicKeyCredentialParameters{
			{Type: webauthntypes.PublicKeyCredentialTypePublicKey, Algorithm: -7},
			{Type: webauthntypes.PublicKeyCredentialTypePublicKey, Algorithm: -257},
		},
		Attestation: webauthntypes.AttestationConveyanceDirect,
	}
}

func verifySignature(t *testing.T, spki, authData, clientDataJSON, sig []byte) {
	t.Helper()

	pubAny, err := x509.ParsePKIXPublicKey(spki)
	require.NoError(t, err)
	pub, ok := pubAny.(*ecdsa.PublicKey)
	require.True(t, ok)

	clientDataHash := sha256.Sum256(clientDataJSON)
	digest := sha256.Sum256(slices.Concat(authData, clientDataHash[:]))
	assert.True(t, ecdsa.VerifyASN1(pub, digest[:], sig))
}

func TestSoftTokenCreateCredential(t *testing.T) {
	token, err := NewSoftToken("https://example.com", testSeed)
	require.NoError(t, err)
	require.True(t, token.Supported())

	cred, err := token.CreateCredential(context.Background(), creationOptions())
	require.NoError(t, err)

	assert.Len(t, cred.ID, 32)
	assert.Equal(t, uint32(0), cred.SignCount)
	assert.Equal(t, []webauthntypes.AuthenticatorTransport{webauthntypes.AuthenticatorTransportInternal}, cred.Transports)

	var clientData webauthntypes.CollectedClientData
	require.NoError(t, json.Unmarshal(cred.ClientDataJSON, &clientData))
	assert.Equal(t, "webauthn.create", clientData.Type)
	assert.Equal(t, wire.Base64URL.EncodeString([]byte("chal")), clientData.Challenge)
	assert.Equal(t, "https://example.com", clientData.Origin)

	var attObj webauthntypes.AttestationObject
	require.NoError(t, cbor.Unmarshal(cred.AttestationObject, &attObj))
	assert.Equal(t, webauthntypes.AttestationStatementFormatIdentifierPacked, attObj.Format)

	authData, err := webauthntypes.ParseAuthenticatorData(attObj.AuthData)
	require.NoError(t, err)

	rpIDHash := sha256.Sum256([]byte("example.com"))
	assert.Equal(t, rpIDHash[:], authData.RPIDHash)
	assert.True(t, authData.Flags.UserPresent())
	assert.True(t, authData.Flags.UserVerified())
	require.NotNil(t, authData.AttestedCredentialData)
	assert.Equal(t, cred.ID, authData.AttestedCredentialData.CredentialID)
	assert.Equal(t, softTokenAAGUID, authData.AttestedCredentialData.AAGUID)

	var attStmt webauthntypes.PackedAttestationStatementFormat
	require.NoError(t, cbor.Unmarshal(attObj.AttStmt, &attStmt))

	spki, exposed := cred.PublicKey.Get()
	require.True(t, exposed)
	verifySignature(t, spki, attObj.AuthData, cred.ClientDataJSON, attStmt.Signature)
}

func TestSoftTokenAssertion(t *testing.T) {
	token, err := NewSoftToken("https://example.com", testSeed)
	require.NoError(t, err)

	cred, err := token.CreateCredential(context.Background(), creationOptions())
	require.NoError(t, err)
	spki, _ := cred.PublicKey.Get()

	reqOpts := &webauthntypes.RequestOptions{
		Challenge: []byte("second chal"),
		RPID:      "example.com",
		AllowCredentials: []webauthntypes.PublicKeyCredentialDescriptor{
			{Type: webauthntypes.PublicKeyCredentialTypePublicKey, ID: cred.ID},
		},
	}

	assertion, err := token.GetAssertion(context.Background(), reqOpts)
	require.NoError(t, err)

	assert.Equal(t, cred.ID, assertion.CredentialID)
	assert.Equal(t, []byte("user1"), assertion.UserHandle)
	assert.Equal(t, uint32(1), assertion.SignCount)

	var clientData webauthntypes.CollectedClientData
	require.NoError(t, json.Unmarshal(assertion.ClientDataJSON, &clientData))
	assert.Equal(t, "webauthn.get", clientData.Type)
	assert.Equal(t, wire.Base64URL.EncodeString([]byte("second chal")), clientData.Challenge)

	authData, err := webauthntypes.ParseAuthenticatorData(assertion.AuthenticatorData)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), authData.SignCount)
	assert.Nil(t, authData.AttestedCredentialData)

	verifySignature(t, spki, assertion.AuthenticatorData, assertion.ClientDataJSON, assertion.Signature)

	// counter strictly increases
	again, err := token.GetAssertion(context.Background(), reqOpts)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), again.SignCount)
}

func TestSoftTokenDiscoverableAssertion(t *testing.T) {
	token, err := NewSoftToken("https://example.com", testSeed)
	require.NoError(t, err)

	_, err = token.CreateCredential(context.Background(), creationOptions())
	require.NoError(t, err)

	assertion, err := token.GetAssertion(context.Background(), &webauthntypes.RequestOptions{
		Challenge: []byte("chal"),
		RPID:      "example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("user1"), assertion.UserHandle)
}

func TestSoftTokenNoMatchingCredential(t *testing.T) {
	token, err := NewSoftToken("https://example.com", testSeed)
	require.NoError(t, err)

	_, err = token.GetAssertion(context.Background(), &webauthntypes.RequestOptions{
		Challenge: []byte("chal"),
		AllowCredentials: []webauthntypes.PublicKeyCredentialDescriptor{
			{Type: webauthntypes.PublicKeyCredentialTypePublicKey, ID: []byte("unknown")},
		},
	})
	assert.ErrorIs(t, err, ErrNoMatchingCredential)
}

func TestSoftTokenPresenceCancelled(t *testing.T) {
	token, err := NewSoftToken("https://example.com", testSeed, options.WithPresence(
		func(ctx context.Context) error {
			return context.Canceled
		},
	))
	require.NoError(t, err)

	_, err = token.CreateCredential(context.Background(), creationOptions())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestSoftTokenPresenceTimeout(t *testing.T) {
	token, err := NewSoftToken("https://example.com", testSeed, options.WithPresence(
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	))
	require.NoError(t, err)

	opts := creationOptions()
	opts.Timeout = 10 * time.Millisecond

	_, err = token.CreateCredential(context.Background(), opts)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSoftTokenRejectsUnsupportedAlgorithms(t *testing.T) {
	token, err := NewSoftToken("https://example.com", testSeed)
	require.NoError(t, err)

	opts := creationOptions()
	opts.PubKeyCredParams = []webauthntypes.PublicKeyCredentialParameters{
		{Type: webauthntypes.PublicKeyCredentialTypePublicKey, Algorithm: -257},
	}

	_, err = token.CreateCredential(context.Background(), opts)
	assert.ErrorIs(t, err, ErrAlgorithmUnsupported)
}

func TestSoftTokenRejectsInvalidOptions(t *testing.T) {
	token, err := NewSoftToken("https://example.com", testSeed)
	require.NoError(t, err)

	opts := creationOptions()
	opts.RP.ID = ""
	_, err = token.CreateCredential(context.Background(), opts)
	assert.ErrorIs(t, err, webauthntypes.ErrMissingRPID)

	_, err = token.GetAssertion(context.Background(), &webauthntypes.RequestOptions{})
	assert.ErrorIs(t, err, webauthntypes.ErrMissingChallenge)
}

func TestSoftTokenSeedTooShort(t *testing.T) {
	_, err := NewSoftToken("https://example.com", []byte("short"))
	assert.ErrorIs(t, err, ErrSeedTooShort)
}
