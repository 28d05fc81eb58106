// Package wire implements the transport encoding for byte fields exchanged
// with the relying party. WebAuthn convention is unpadded base64url; the
// legacy attendance endpoints speak padded standard base64. A client picks
// exactly one scheme at construction and uses it in both directions.
package wire

import (
	"encoding/base64"
)

// Encoding is one of the supported transport encodings. The zero value is not
// usable; always start from Base64URL or Base64Std.
type Encoding struct {
	name string
	enc  *base64.Encoding
}

var (
	// Base64URL is the canonical scheme: unpadded, URL-safe alphabet.
	Base64URL = Encoding{name: "base64url", enc: base64.RawURLEncoding.Strict()}

	// Base64Std is the legacy scheme: padded, standard alphabet.
	Base64Std = Encoding{name: "base64", enc: base64.StdEncoding.Strict()}
)

func (e Encoding) Name() string {
	return e.name
}

// EncodeString encodes b into a transport-safe string.
func (e Encoding) EncodeString(b []byte) string {
	return e.enc.EncodeToString(b)
}

// DecodeString is the left inverse of EncodeString. Input outside the
// scheme's alphabet or with wrong padding fails with a *DecodeError; it is
// never silently truncated.
func (e Encoding) DecodeString(s string) ([]byte, error) {
	b, err := e.enc.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Scheme: e.name, Length: len(s), err: err}
	}
	return b, nil
}

// DecodeError reports a malformed transport string. It carries the scheme
// name and the input length, not the input itself, so it is safe to log.
type DecodeError struct {
	Scheme string
	Length int
	err    error
}

func (e *DecodeError) Error() string {
	return "wire: malformed " + e.Scheme + " input (" + e.err.Error() + ")"
}

func (e *DecodeError) Unwrap() error {
	return e.err
}
