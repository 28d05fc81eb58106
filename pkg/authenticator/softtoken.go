package authenticator

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"golang.org/x/crypto/hkdf"

	"github.com/go-passkey/ceremony/pkg/options"
	"github.com/go-passkey/ceremony/pkg/webauthntypes"
	"github.com/go-passkey/ceremony/pkg/wire"
)

// softTokenAAGUID identifies the software token model. Stable across
// instances so relying parties can recognize it.
var softTokenAAGUID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("go-passkey soft token"))

// SoftToken is an in-memory ES256 authenticator. Credential private keys are
// derived from a seed via HKDF keyed by the credential id, so nothing but the
// seed needs protecting. It produces packed self-attestation.
type SoftToken struct {
	origin  string
	seed    []byte
	encMode cbor.EncMode
	logger  *slog.Logger
	confirm func(ctx context.Context) error

	mu    sync.Mutex
	creds []*softCredential
}

type softCredential struct {
	id         []byte
	rpID       string
	userHandle []byte
	signCount  uint32
	key        *ecdsa.PrivateKey
}

// NewSoftToken creates a software token answering for origin. The seed must
// be at least 16 bytes and is the only secret material.
func NewSoftToken(origin string, seed []byte, opts ...options.Option) (*SoftToken, error) {
	if len(seed) < 16 {
		return nil, ErrSeedTooShort
	}
	oo := options.NewOptions(opts...)

	return &SoftToken{
		origin:  origin,
		seed:    bytes.Clone(seed),
		encMode: oo.EncMode,
		logger:  oo.Logger,
		confirm: oo.Presence,
	}, nil
}

func (t *SoftToken) Supported() bool {
	return true
}

func (t *SoftToken) CreateCredential(
	ctx context.Context,
	opts *webauthntypes.CreationOptions,
) (*webauthntypes.CredentialResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(opts.PubKeyCredParams, func(p webauthntypes.PublicKeyCredentialParameters) bool {
		return p.Type == webauthntypes.PublicKeyCredentialTypePublicKey && p.Algorithm == key.Alg(iana.AlgorithmES256)
	}) {
		return nil, ErrAlgorithmUnsupported
	}

	if err := t.awaitPresence(ctx, opts.Timeout); err != nil {
		return nil, err
	}

	credentialID := make([]byte, 32)
	if _, err := rand.Read(credentialID); err != nil {
		return nil, err
	}

	priv, err := t.deriveKey(credentialID)
	if err != nil {
		return nil, err
	}

	coseKey, err := t.encMode.Marshal(es256CoseKey(&priv.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("cannot marshal credential COSE key: %w", err)
	}

	authData := buildAuthData(
		opts.RP.ID,
		webauthntypes.AuthDataFlagUserPresent|
			webauthntypes.AuthDataFlagUserVerified|
			webauthntypes.AuthDataFlagAttestedCredentialDataIncluded,
		0,
		&attestedCredential{id: credentialID, coseKey: coseKey},
	)

	clientData, err := json.Marshal(&webauthntypes.CollectedClientData{
		Type:      "webauthn.create",
		Challenge: clientDataChallenge(opts.Challenge),
		Origin:    t.origin,
	})
	if err != nil {
		return nil, err
	}

	sig, err := signES256(priv, authData, clientData)
	if err != nil {
		return nil, err
	}

	attStmt, err := t.encMode.Marshal(&webauthntypes.PackedAttestationStatementFormat{
		Algorithm: key.Alg(iana.AlgorithmES256),
		Signature: sig,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot marshal packed attestation statement: %w", err)
	}
	attObj, err := t.encMode.Marshal(&webauthntypes.AttestationObject{
		Format:   webauthntypes.AttestationStatementFormatIdentifierPacked,
		AttStmt:  attStmt,
		AuthData: authData,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot marshal attestation object: %w", err)
	}

	spki, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.creds = append(t.creds, &softCredential{
		id:         credentialID,
		rpID:       opts.RP.ID,
		userHandle: bytes.Clone(opts.User.ID),
		key:        priv,
	})
	t.mu.Unlock()

	t.logger.Debug("soft token created credential", "rpId", opts.RP.ID, "credentialIdLen", len(credentialID))

	return &webauthntypes.CredentialResult{
		ID:                credentialID,
		AttestationObject: attObj,
		ClientDataJSON:    clientData,
		PublicKey:         mo.Some(spki),
		Transports:        []webauthntypes.AuthenticatorTransport{webauthntypes.AuthenticatorTransportInternal},
		SignCount:         0,
	}, nil
}

func (t *SoftToken) GetAssertion(
	ctx context.Context,
	opts *webauthntypes.RequestOptions,
) (*webauthntypes.AssertionResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	cred := t.selectCredential(opts)
	t.mu.Unlock()
	if cred == nil {
		return nil, ErrNoMatchingCredential
	}

	if err := t.awaitPresence(ctx, opts.Timeout); err != nil {
		return nil, err
	}

	rpID := opts.RPID
	if rpID == "" {
		rpID = cred.rpID
	}

	t.mu.Lock()
	cred.signCount++
	signCount := cred.signCount
	t.mu.Unlock()

	authData := buildAuthData(
		rpID,
		webauthntypes.AuthDataFlagUserPresent|webauthntypes.AuthDataFlagUserVerified,
		signCount,
		nil,
	)

	clientData, err := json.Marshal(&webauthntypes.CollectedClientData{
		Type:      "webauthn.get",
		Challenge: clientDataChallenge(opts.Challenge),
		Origin:    t.origin,
	})
	if err != nil {
		return nil, err
	}

	sig, err := signES256(cred.key, authData, clientData)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("soft token produced assertion", "rpId", rpID, "signCount", signCount)

	return &webauthntypes.AssertionResult{
		CredentialID:      bytes.Clone(cred.id),
		AuthenticatorData: authData,
		Signature:         sig,
		ClientDataJSON:    clientData,
		UserHandle:        bytes.Clone(cred.userHandle),
		SignCount:         signCount,
	}, nil
}

// selectCredential picks the credential to assert with. With an allow list the
// first listed match wins; without one (discoverable flow), the most recently
// created credential for the relying party. Caller holds t.mu.
func (t *SoftToken) selectCredential(opts *webauthntypes.RequestOptions) *softCredential {
	if len(opts.AllowCredentials) == 0 {
		for i := len(t.creds) - 1; i >= 0; i-- {
			if opts.RPID == "" || t.creds[i].rpID == opts.RPID {
				return t.creds[i]
			}
		}
		return nil
	}

	for _, desc := range opts.AllowCredentials {
		cred, ok := lo.Find(t.creds, func(c *softCredential) bool {
			return bytes.Equal(c.id, desc.ID)
		})
		if ok {
			return cred
		}
	}

	return nil
}

// awaitPresence runs the presence hook under the ceremony timeout. The hook is
// expected to honor ctx; context errors are mapped to the ceremony error
// taxonomy.
func (t *SoftToken) awaitPresence(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var err error
	if t.confirm != nil {
		err = t.confirm(ctx)
	} else {
		err = ctx.Err()
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	default:
		return err
	}
}

// deriveKey derives the ES256 private key for a credential id from the seed.
func (t *SoftToken) deriveKey(credentialID []byte) (*ecdsa.PrivateKey, error) {
	rd := hkdf.New(sha256.New, t.seed, credentialID, []byte("es256 credential key"))

	// Uniform scalar in [1, N-1] via oversampling and reduction.
	buf := make([]byte, 40)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return nil, err
	}

	curve := elliptic.P256()
	one := big.NewInt(1)
	k := new(big.Int).SetBytes(buf)
	k.Mod(k, new(big.Int).Sub(curve.Params().N, one))
	k.Add(k, one)

	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         k,
	}
	priv.X, priv.Y = curve.ScalarBaseMult(k.Bytes())

	return priv, nil
}

type attestedCredential struct {
	id      []byte
	coseKey []byte
}

func buildAuthData(rpID string, flags webauthntypes.AuthDataFlag, signCount uint32, att *attestedCredential) []byte {
	rpIDHash := sha256.Sum256([]byte(rpID))

	buf := make([]byte, 0, 37)
	buf = append(buf, rpIDHash[:]...)
	buf = append(buf, byte(flags))
	buf = binary.BigEndian.AppendUint32(buf, signCount)

	if att != nil {
		buf = append(buf, softTokenAAGUID[:]...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(att.id)))
		buf = append(buf, att.id...)
		buf = append(buf, att.coseKey...)
	}

	return buf
}

func signES256(priv *ecdsa.PrivateKey, authData, clientDataJSON []byte) ([]byte, error) {
	clientDataHash := sha256.Sum256(clientDataJSON)
	digest := sha256.Sum256(slices.Concat(authData, clientDataHash[:]))

	return ecdsa.SignASN1(rand.Reader, priv, digest[:])
}

func es256CoseKey(pub *ecdsa.PublicKey) key.Key {
	return key.Key{
		iana.KeyParameterKty:    iana.KeyTypeEC2,
		iana.KeyParameterAlg:    iana.AlgorithmES256,
		iana.EC2KeyParameterCrv: iana.EllipticCurveP_256,
		iana.EC2KeyParameterX:   pub.X.FillBytes(make([]byte, 32)),
		iana.EC2KeyParameterY:   pub.Y.FillBytes(make([]byte, 32)),
	}
}

// clientDataChallenge is the challenge representation inside clientDataJSON,
// fixed to unpadded base64url per the W3C WebAuthn serialization rules.
func clientDataChallenge(challenge []byte) string {
	return wire.Base64URL.EncodeString(challenge)
}
