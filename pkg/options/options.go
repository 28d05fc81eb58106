package options

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/go-passkey/ceremony/pkg/wire"
)

type Options struct {
	Logger      *slog.Logger
	HTTPClient  *http.Client
	Encoding    wire.Encoding
	EncMode     cbor.EncMode
	Timeout     time.Duration
	BearerToken string

	// Presence is invoked by software authenticators to confirm user
	// presence; nil means presence is granted immediately.
	Presence func(ctx context.Context) error
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithEncoding selects the transport encoding for byte fields. The default is
// wire.Base64URL; wire.Base64Std matches the legacy attendance endpoints.
func WithEncoding(enc wire.Encoding) Option {
	return func(opts *Options) {
		opts.Encoding = enc
	}
}

func WithEncMode(encMode cbor.EncMode) Option {
	return func(opts *Options) {
		opts.EncMode = encMode
	}
}

// WithTimeout sets the fallback ceremony timeout used when the server-issued
// options carry none.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.Timeout = timeout
	}
}

func WithBearerToken(token string) Option {
	return func(opts *Options) {
		opts.BearerToken = token
	}
}

func WithPresence(confirm func(ctx context.Context) error) Option {
	return func(opts *Options) {
		opts.Presence = confirm
	}
}

func NewOptions(opts ...Option) *Options {
	encMode, _ := cbor.CTAP2EncOptions().EncMode()
	oo := &Options{
		Logger:     slog.Default(),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Encoding:   wire.Base64URL,
		EncMode:    encMode,
		Timeout:    60 * time.Second,
	}

	for _, opt := range opts {
		opt(oo)
	}

	return oo
}
