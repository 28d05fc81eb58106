package webauthntypes

import (
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/key"
	"github.com/samber/mo"
)

type (
	// PublicKeyCredentialType defines the valid credential types.
	// https://www.w3.org/TR/webauthn-3/#enumdef-publickeycredentialtype
	PublicKeyCredentialType string
	// AuthenticatorTransport defines hints as to how clients might communicate
	// with a particular authenticator in order to obtain an assertion for a specific credential.
	// https://www.w3.org/TR/webauthn-3/#enumdef-authenticatortransport
	AuthenticatorTransport string
	// UserVerificationRequirement expresses how strongly the relying party wants
	// the user verified during a ceremony.
	// https://www.w3.org/TR/webauthn-3/#enumdef-userverificationrequirement
	UserVerificationRequirement string
	// AttestationConveyancePreference expresses the relying party's interest in
	// receiving an attestation statement at registration.
	// https://www.w3.org/TR/webauthn-3/#enumdef-attestationconveyancepreference
	AttestationConveyancePreference string
	// AuthenticatorAttachment describes the attachment modality of an authenticator.
	// https://www.w3.org/TR/webauthn-3/#enumdef-authenticatorattachment
	AuthenticatorAttachment string
	// ResidentKeyRequirement expresses the relying party's preference for
	// client-side discoverable credentials.
	// https://www.w3.org/TR/webauthn-3/#enumdef-residentkeyrequirement
	ResidentKeyRequirement string
	// AttestationStatementFormatIdentifier is an enum consisting of IANA registered Attestation Statement Format Identifiers.
	// https://www.iana.org/assignments/webauthn/webauthn.xhtml
	AttestationStatementFormatIdentifier string
)

const (
	PublicKeyCredentialTypePublicKey PublicKeyCredentialType = "public-key"
)

const (
	AuthenticatorTransportUSB       AuthenticatorTransport = "usb"
	AuthenticatorTransportNFC       AuthenticatorTransport = "nfc"
	AuthenticatorTransportBLE       AuthenticatorTransport = "ble"
	AuthenticatorTransportSmartCard AuthenticatorTransport = "smart-card"
	AuthenticatorTransportHybrid    AuthenticatorTransport = "hybrid"
	AuthenticatorTransportInternal  AuthenticatorTransport = "internal"
)

const (
	UserVerificationRequired    UserVerificationRequirement = "required"
	UserVerificationPreferred   UserVerificationRequirement = "preferred"
	UserVerificationDiscouraged UserVerificationRequirement = "discouraged"
)

const (
	AttestationConveyanceNone     AttestationConveyancePreference = "none"
	AttestationConveyanceIndirect AttestationConveyancePreference = "indirect"
	AttestationConveyanceDirect   AttestationConveyancePreference = "direct"
)

const (
	AuthenticatorAttachmentPlatform      AuthenticatorAttachment = "platform"
	AuthenticatorAttachmentCrossPlatform AuthenticatorAttachment = "cross-platform"
)

const (
	ResidentKeyDiscouraged ResidentKeyRequirement = "discouraged"
	ResidentKeyPreferred   ResidentKeyRequirement = "preferred"
	ResidentKeyRequired    ResidentKeyRequirement = "required"
)

const (
	AttestationStatementFormatIdentifierPacked AttestationStatementFormatIdentifier = "packed"
	AttestationStatementFormatIdentifierNone   AttestationStatementFormatIdentifier = "none"
)

var (
	ErrMissingChallenge = errors.New("webauthntypes: ceremony options missing challenge")
	ErrMissingRPID      = errors.New("webauthntypes: creation options missing relying party id")
	ErrMissingUserID    = errors.New("webauthntypes: creation options missing user id")
)

// PublicKeyCredentialRpEntity is used to supply additional Relying Party attributes when creating a new credential.
// https://www.w3.org/TR/webauthn-3/#dictdef-publickeycredentialrpentity
type PublicKeyCredentialRpEntity struct {
	ID   string
	Name string
}

// PublicKeyCredentialUserEntity is used to supply additional user account attributes when creating a new credential.
// https://www.w3.org/TR/webauthn-3/#dictdef-publickeycredentialuserentity
type PublicKeyCredentialUserEntity struct {
	ID          []byte
	Name        string
	DisplayName string
}

// PublicKeyCredentialDescriptor identifies a specific public key credential.
// https://www.w3.org/TR/webauthn-3/#dictdef-publickeycredentialdescriptor
type PublicKeyCredentialDescriptor struct {
	Type       PublicKeyCredentialType
	ID         []byte
	Transports []AuthenticatorTransport
}

// PublicKeyCredentialParameters is used to supply additional parameters when creating a new credential.
// https://www.w3.org/TR/webauthn-3/#dictdef-publickeycredentialparameters
type PublicKeyCredentialParameters struct {
	Type      PublicKeyCredentialType `json:"type"`
	Algorithm key.Alg                 `json:"alg"`
}

// AuthenticatorSelectionCriteria restricts the set of authenticators eligible
// for a registration ceremony.
// https://www.w3.org/TR/webauthn-3/#dictdef-authenticatorselectioncriteria
type AuthenticatorSelectionCriteria struct {
	AuthenticatorAttachment AuthenticatorAttachment     `json:"authenticatorAttachment,omitempty"`
	ResidentKey             ResidentKeyRequirement      `json:"residentKey,omitempty"`
	RequireResidentKey      bool                        `json:"requireResidentKey,omitempty"`
	UserVerification        UserVerificationRequirement `json:"userVerification,omitempty"`
}

// CreationOptions is the decoded, single-use configuration for a registration
// ceremony. The challenge and user id arrive transport-encoded and are already
// byte buffers here, ready for the authenticator.
type CreationOptions struct {
	Challenge              []byte
	RP                     PublicKeyCredentialRpEntity
	User                   PublicKeyCredentialUserEntity
	PubKeyCredParams       []PublicKeyCredentialParameters
	Timeout                time.Duration
	ExcludeCredentials     []PublicKeyCredentialDescriptor
	AuthenticatorSelection *AuthenticatorSelectionCriteria
	Attestation            AttestationConveyancePreference
}

// Validate rejects options the authenticator must never see. The relying
// party id is required exactly as sent by the server; clients never derive it
// from their own origin.
func (o *CreationOptions) Validate() error {
	if len(o.Challenge) == 0 {
		return ErrMissingChallenge
	}
	if o.RP.ID == "" {
		return ErrMissingRPID
	}
	if len(o.User.ID) == 0 {
		return ErrMissingUserID
	}
	return nil
}

// RequestOptions is the decoded, single-use configuration for an
// authentication ceremony.
type RequestOptions struct {
	Challenge        []byte
	RPID             string
	Timeout          time.Duration
	AllowCredentials []PublicKeyCredentialDescriptor
	UserVerification UserVerificationRequirement
}

func (o *RequestOptions) Validate() error {
	if len(o.Challenge) == 0 {
		return ErrMissingChallenge
	}
	return nil
}

// CredentialResult is the authenticator's output for a successful registration
// ceremony. It is consumed immediately by the response encoder and never
// persisted client-side.
//
// PublicKey is mo.None when the authenticator does not expose the credential
// public key; the encoder keeps that distinct from an empty key.
type CredentialResult struct {
	ID                []byte
	AttestationObject []byte
	ClientDataJSON    []byte
	PublicKey         mo.Option[[]byte]
	Transports        []AuthenticatorTransport
	SignCount         uint32
}

// AssertionResult is the authenticator's output for a successful
// authentication ceremony. Same lifecycle as CredentialResult.
type AssertionResult struct {
	CredentialID      []byte
	AuthenticatorData []byte
	Signature         []byte
	ClientDataJSON    []byte
	UserHandle        []byte
	SignCount         uint32
}

// CollectedClientData represents the contextual bindings of both the relying
// party and the client, serialized into clientDataJSON.
// https://www.w3.org/TR/webauthn-3/#dictdef-collectedclientdata
//
// Challenge is always unpadded base64url here, regardless of the transport
// encoding negotiated with the relying party.
type CollectedClientData struct {
	Type        string `json:"type"`
	Challenge   string `json:"challenge"`
	Origin      string `json:"origin"`
	CrossOrigin bool   `json:"crossOrigin,omitempty"`
}

// PackedAttestationStatementFormat is a WebAuthn optimized attestation statement format.
// https://www.w3.org/TR/webauthn-3/#sctn-packed-attestation
type PackedAttestationStatementFormat struct {
	Algorithm key.Alg  `cbor:"alg"`
	Signature []byte   `cbor:"sig"`
	X509Chain [][]byte `cbor:"x5c,omitempty"`
}

// AttestationObject is the registration ceremony output conveying the
// authenticator data and the attestation statement.
// https://www.w3.org/TR/webauthn-3/#sctn-attestation
type AttestationObject struct {
	Format   AttestationStatementFormatIdentifier `cbor:"fmt"`
	AttStmt  cbor.RawMessage                      `cbor:"attStmt"`
	AuthData []byte                               `cbor:"authData"`
}
