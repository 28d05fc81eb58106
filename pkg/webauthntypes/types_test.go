package webauthntypes

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCreationOptions() *CreationOptions {
	return &CreationOptions{
		Challenge: []byte("chal"),
		RP:        PublicKeyCredentialRpEntity{ID: "example.com", Name: "Example"},
		User: PublicKeyCredentialUserEntity{
			ID:          []byte("user1"),
			Name:        "a@b.com",
			DisplayName: "A",
		},
		PubKeyCredParams: []PublicKeyCredentialParameters{
			{Type: PublicKeyCredentialTypePublicKey, Algorithm: -7},
		},
	}
}

func TestCreationOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreationOptions)
		wantErr error
	}{
		{"valid", func(o *CreationOptions) {}, nil},
		{"missing challenge", func(o *CreationOptions) { o.Challenge = nil }, ErrMissingChallenge},
		{"missing rp id", func(o *CreationOptions) { o.RP.ID = "" }, ErrMissingRPID},
		{"missing user id", func(o *CreationOptions) { o.User.ID = []byte{} }, ErrMissingUserID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validCreationOptions()
			tt.mutate(o)

			err := o.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRequestOptionsValidate(t *testing.T) {
	o := &RequestOptions{Challenge: []byte("chal")}
	assert.NoError(t, o.Validate())

	o.Challenge = nil
	assert.ErrorIs(t, o.Validate(), ErrMissingChallenge)
}

func TestAuthDataFlags(t *testing.T) {
	f := AuthDataFlagUserPresent | AuthDataFlagUserVerified | AuthDataFlagAttestedCredentialDataIncluded

	assert.True(t, f.UserPresent())
	assert.True(t, f.UserVerified())
	assert.True(t, f.AttestedCredentialDataIncluded())
	assert.False(t, f.ExtensionDataIncluded())
}

func TestParseAuthenticatorDataAssertion(t *testing.T) {
	rpIDHash := sha256.Sum256([]byte("example.com"))

	data := make([]byte, 0, 37)
	data = append(data, rpIDHash[:]...)
	data = append(data, byte(AuthDataFlagUserPresent|AuthDataFlagUserVerified))
	data = binary.BigEndian.AppendUint32(data, 7)

	d, err := ParseAuthenticatorData(data)
	require.NoError(t, err)

	assert.Equal(t, rpIDHash[:], d.RPIDHash)
	assert.True(t, d.Flags.UserPresent())
	assert.Equal(t, uint32(7), d.SignCount)
	assert.Nil(t, d.AttestedCredentialData)
}

func TestParseAuthenticatorDataTooShort(t *testing.T) {
	_, err := ParseAuthenticatorData(make([]byte, 36))
	assert.ErrorIs(t, err, ErrMalformedAuthData)

	// attested flag set but no attested credential data present
	data := make([]byte, 37)
	data[32] = byte(AuthDataFlagAttestedCredentialDataIncluded)
	_, err = ParseAuthenticatorData(data)
	assert.ErrorIs(t, err, ErrMalformedAuthData)
}
