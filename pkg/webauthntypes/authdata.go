package webauthntypes

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/key"
)

// AuthDataFlag is the flags byte of the authenticator data structure.
// https://www.w3.org/TR/webauthn-3/#sctn-authenticator-data
type AuthDataFlag byte

const (
	AuthDataFlagUserPresent                    AuthDataFlag = 0x01
	AuthDataFlagUserVerified                   AuthDataFlag = 0x04
	AuthDataFlagBackupEligibility              AuthDataFlag = 0x08
	AuthDataFlagBackupState                    AuthDataFlag = 0x10
	AuthDataFlagAttestedCredentialDataIncluded AuthDataFlag = 0x40
	AuthDataFlagExtensionDataIncluded          AuthDataFlag = 0x80
)

func (f AuthDataFlag) UserPresent() bool {
	return f&AuthDataFlagUserPresent != 0
}
func (f AuthDataFlag) UserVerified() bool {
	return f&AuthDataFlagUserVerified != 0
}
func (f AuthDataFlag) AttestedCredentialDataIncluded() bool {
	return f&AuthDataFlagAttestedCredentialDataIncluded != 0
}
func (f AuthDataFlag) ExtensionDataIncluded() bool {
	return f&AuthDataFlagExtensionDataIncluded != 0
}

var ErrMalformedAuthData = errors.New("webauthntypes: malformed authenticator data")

// AuthenticatorData is the parsed authenticator data structure.
type AuthenticatorData struct {
	RPIDHash               []byte
	Flags                  AuthDataFlag
	SignCount              uint32
	AttestedCredentialData *AttestedCredentialData
	Extensions             []byte
}

// AttestedCredentialData carries the new credential's id and public key,
// present only at registration.
type AttestedCredentialData struct {
	AAGUID              uuid.UUID
	CredentialID        []byte
	CredentialPublicKey key.Key
}

// ParseAuthenticatorData parses the raw authenticator data returned by an
// authenticator at registration or authentication.
func ParseAuthenticatorData(data []byte) (*AuthenticatorData, error) {
	if len(data) < 37 {
		return nil, ErrMalformedAuthData
	}

	d := &AuthenticatorData{
		RPIDHash:  data[:32],
		Flags:     AuthDataFlag(data[32]),
		SignCount: binary.BigEndian.Uint32(data[33:37]),
	}
	offset := 37

	if d.Flags.AttestedCredentialDataIncluded() {
		if len(data) < offset+18 {
			return nil, ErrMalformedAuthData
		}

		credData := &AttestedCredentialData{
			AAGUID: uuid.UUID(data[offset : offset+16]),
		}
		offset += 16

		length := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
		if len(data) < offset+int(length) {
			return nil, ErrMalformedAuthData
		}
		credData.CredentialID = data[offset : offset+int(length)]
		offset += int(length)

		dec := cbor.NewDecoder(bytes.NewReader(data[offset:]))
		if err := dec.Decode(&credData.CredentialPublicKey); err != nil {
			return nil, err
		}
		offset += dec.NumBytesRead()

		d.AttestedCredentialData = credData
	}

	if d.Flags.ExtensionDataIncluded() {
		d.Extensions = data[offset:]
	}

	return d, nil
}
