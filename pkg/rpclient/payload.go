package rpclient

import (
	"time"

	"github.com/samber/lo"

	"github.com/go-passkey/ceremony/pkg/webauthntypes"
)

// Wire schemas for the consolidated /biometric endpoints. Byte fields travel
// as strings in the client's transport encoding; the server-issued challenge
// is echoed verbatim, never re-encoded.

type rpEntityEnvelope struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type userEntityEnvelope struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type descriptorEnvelope struct {
	Type       string   `json:"type"`
	ID         string   `json:"id"`
	Transports []string `json:"transports,omitempty"`
}

type creationOptionsEnvelope struct {
	Challenge              string                                          `json:"challenge"`
	RP                     rpEntityEnvelope                                `json:"rp"`
	User                   userEntityEnvelope                              `json:"user"`
	PubKeyCredParams       []webauthntypes.PublicKeyCredentialParameters   `json:"pubKeyCredParams"`
	Timeout                int64                                           `json:"timeout,omitempty"`
	ExcludeCredentials     []descriptorEnvelope                            `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection *webauthntypes.AuthenticatorSelectionCriteria   `json:"authenticatorSelection,omitempty"`
	Attestation            webauthntypes.AttestationConveyancePreference   `json:"attestation,omitempty"`
}

type requestOptionsEnvelope struct {
	Challenge        string                                    `json:"challenge"`
	RPID             string                                    `json:"rpId,omitempty"`
	Timeout          int64                                     `json:"timeout,omitempty"`
	AllowCredentials []descriptorEnvelope                      `json:"allowCredentials"`
	UserVerification webauthntypes.UserVerificationRequirement `json:"userVerification,omitempty"`
}

type registrationStartRequest struct {
	CredentialName string `json:"credentialName"`
}

type registrationCompleteRequest struct {
	Credential     credentialEnvelope `json:"credential"`
	CredentialName string             `json:"credentialName"`
	Challenge      string             `json:"challenge"`
}

type registrationCompleteResponse struct {
	Success    bool               `json:"success"`
	Credential EnrolledCredential `json:"credential"`
}

type authenticationStartRequest struct {
	Email string `json:"email"`
}

type authenticationCompleteRequest struct {
	Email     string            `json:"email"`
	Assertion assertionEnvelope `json:"assertion"`
	Challenge string            `json:"challenge"`
}

type credentialEnvelope struct {
	ID       string                     `json:"id"`
	Response credentialResponseEnvelope `json:"response"`
}

type credentialResponseEnvelope struct {
	ClientDataJSON    string   `json:"clientDataJSON"`
	AttestationObject string   `json:"attestationObject"`
	PublicKey         *string  `json:"publicKey"`
	SignCount         uint32   `json:"signCount"`
	Transports        []string `json:"transports"`
}

type assertionEnvelope struct {
	ID       string                    `json:"id"`
	Response assertionResponseEnvelope `json:"response"`
}

type assertionResponseEnvelope struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AuthenticatorData string `json:"authenticatorData"`
	Signature         string `json:"signature"`
	SignCount         uint32 `json:"signCount"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

type credentialListEnvelope struct {
	Credentials []EnrolledCredential `json:"credentials"`
}

type renameCredentialRequest struct {
	Name string `json:"name"`
}

type faceEnrollRequest struct {
	Embedding []float64 `json:"embedding"`
}

type faceVerifyResponse struct {
	Verified bool `json:"verified"`
}

// EnrolledCredential is the server's record of a stored credential, as listed
// and managed via the credential endpoints.
type EnrolledCredential struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// Session is the authentication outcome: a bearer token plus the identity it
// belongs to.
type Session struct {
	Token string     `json:"token"`
	User  UserRecord `json:"user"`
}

type UserRecord struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// encodeCredential serializes a registration result for transport. An absent
// public key is emitted as an explicit JSON null, never an empty string: the
// server distinguishes "not provided" from "empty". The sign count is the
// authenticator-reported value, transmitted verbatim.
func (c *Client) encodeCredential(cred *webauthntypes.CredentialResult) credentialEnvelope {
	resp := credentialResponseEnvelope{
		ClientDataJSON:    c.enc.EncodeString(cred.ClientDataJSON),
		AttestationObject: c.enc.EncodeString(cred.AttestationObject),
		SignCount:         cred.SignCount,
		Transports: lo.Map(cred.Transports, func(t webauthntypes.AuthenticatorTransport, _ int) string {
			return string(t)
		}),
	}
	if resp.Transports == nil {
		resp.Transports = []string{}
	}
	if pk, exposed := cred.PublicKey.Get(); exposed {
		resp.PublicKey = lo.ToPtr(c.enc.EncodeString(pk))
	}

	return credentialEnvelope{
		ID:       c.enc.EncodeString(cred.ID),
		Response: resp,
	}
}

func (c *Client) encodeAssertion(assertion *webauthntypes.AssertionResult) assertionEnvelope {
	return assertionEnvelope{
		ID: c.enc.EncodeString(assertion.CredentialID),
		Response: assertionResponseEnvelope{
			ClientDataJSON:    c.enc.EncodeString(assertion.ClientDataJSON),
			AuthenticatorData: c.enc.EncodeString(assertion.AuthenticatorData),
			Signature:         c.enc.EncodeString(assertion.Signature),
			SignCount:         assertion.SignCount,
		},
	}
}

func (c *Client) decodeCreationOptions(env *creationOptionsEnvelope) (*webauthntypes.CreationOptions, error) {
	challenge, err := c.enc.DecodeString(env.Challenge)
	if err != nil {
		return nil, err
	}
	userID, err := c.enc.DecodeString(env.User.ID)
	if err != nil {
		return nil, err
	}
	exclude, err := c.decodeDescriptors(env.ExcludeCredentials)
	if err != nil {
		return nil, err
	}

	return &webauthntypes.CreationOptions{
		Challenge: challenge,
		RP: webauthntypes.PublicKeyCredentialRpEntity{
			ID:   env.RP.ID,
			Name: env.RP.Name,
		},
		User: webauthntypes.PublicKeyCredentialUserEntity{
			ID:          userID,
			Name:        env.User.Name,
			DisplayName: env.User.DisplayName,
		},
		PubKeyCredParams:       env.PubKeyCredParams,
		Timeout:                time.Duration(env.Timeout) * time.Millisecond,
		ExcludeCredentials:     exclude,
		AuthenticatorSelection: env.AuthenticatorSelection,
		Attestation:            env.Attestation,
	}, nil
}

func (c *Client) decodeRequestOptions(env *requestOptionsEnvelope) (*webauthntypes.RequestOptions, error) {
	challenge, err := c.enc.DecodeString(env.Challenge)
	if err != nil {
		return nil, err
	}
	allow, err := c.decodeDescriptors(env.AllowCredentials)
	if err != nil {
		return nil, err
	}

	return &webauthntypes.RequestOptions{
		Challenge:        challenge,
		RPID:             env.RPID,
		Timeout:          time.Duration(env.Timeout) * time.Millisecond,
		AllowCredentials: allow,
		UserVerification: env.UserVerification,
	}, nil
}

func (c *Client) decodeDescriptors(envs []descriptorEnvelope) ([]webauthntypes.PublicKeyCredentialDescriptor, error) {
	if envs == nil {
		return nil, nil
	}

	descriptors := make([]webauthntypes.PublicKeyCredentialDescriptor, 0, len(envs))
	for _, env := range envs {
		id, err := c.enc.DecodeString(env.ID)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, webauthntypes.PublicKeyCredentialDescriptor{
			Type: webauthntypes.PublicKeyCredentialType(env.Type),
			ID:   id,
			Transports: lo.Map(env.Transports, func(t string, _ int) webauthntypes.AuthenticatorTransport {
				return webauthntypes.AuthenticatorTransport(t)
			}),
		})
	}

	return descriptors, nil
}
