package wire

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for _, enc := range []Encoding{Base64URL, Base64Std} {
		t.Run(enc.Name(), func(t *testing.T) {
			seen := make(map[string][]byte)

			for i := range 64 {
				b := make([]byte, i)
				_, err := r.Read(b)
				require.NoError(t, err)

				s := enc.EncodeString(b)
				got, err := enc.DecodeString(s)
				require.NoError(t, err)
				assert.Equal(t, b, got)

				// injectivity over the sampled domain
				prev, dup := seen[s]
				require.False(t, dup, "encodings of %x and %x collide", prev, b)
				seen[s] = b
			}
		})
	}
}

func TestRoundTripAllByteValues(t *testing.T) {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}

	for _, enc := range []Encoding{Base64URL, Base64Std} {
		got, err := enc.DecodeString(enc.EncodeString(b))
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		enc  Encoding
		in   string
	}{
		{"std invalid alphabet", Base64Std, "AQ!D"},
		{"std missing padding", Base64Std, "AQI"},
		{"std url alphabet", Base64Std, "-_-_"},
		{"url padded", Base64URL, "CQk="},
		{"url std alphabet", Base64URL, "++//"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.enc.DecodeString(tt.in)
			require.Error(t, err)

			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			assert.Equal(t, tt.enc.Name(), decErr.Scheme)
			assert.Equal(t, len(tt.in), decErr.Length)
		})
	}
}

func TestEncodeEmpty(t *testing.T) {
	for _, enc := range []Encoding{Base64URL, Base64Std} {
		s := enc.EncodeString(nil)
		assert.Empty(t, s)

		got, err := enc.DecodeString(s)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestSchemesDiffer(t *testing.T) {
	b := []byte{0xfb, 0xff, 0xfe}
	assert.Equal(t, "-__-", Base64URL.EncodeString(b))
	assert.Equal(t, "+//+", Base64Std.EncodeString(b))
}
