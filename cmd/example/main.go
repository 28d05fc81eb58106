package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-passkey/ceremony/pkg/authenticator"
	"github.com/go-passkey/ceremony/pkg/ceremony"
	"github.com/go-passkey/ceremony/pkg/options"
	"github.com/go-passkey/ceremony/pkg/rpclient"
	"github.com/go-passkey/ceremony/pkg/wire"
)

func main() {
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))

	baseURL := os.Getenv("RP_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	email := os.Getenv("RP_EMAIL")
	if email == "" {
		email = "employee@example.com"
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		panic(err)
	}

	token, err := authenticator.NewSoftToken(baseURL, seed,
		options.WithLogger(logger),
	)
	if err != nil {
		panic(err)
	}

	// Legacy servers speak padded standard base64 on the wire.
	rp := rpclient.New(baseURL,
		options.WithEncoding(wire.Base64Std),
		options.WithLogger(logger),
	)

	flow := ceremony.New(rp, token, options.WithLogger(logger))
	ctx := context.Background()

	out, err := flow.Enroll(ctx, "Example Soft Token")
	if err != nil {
		fmt.Println(ceremony.UserMessage(err))
		panic(err)
	}
	fmt.Printf("Enrolled credential: %s (%s)\n", out.Credential.ID, out.Credential.Name)

	out, err = flow.Authenticate(ctx, email)
	if err != nil {
		fmt.Println(ceremony.UserMessage(err))
		panic(err)
	}
	fmt.Printf("Authenticated as %s, token %q\n", out.Session.User.Email, out.Session.Token)

	rp.SetBearerToken(out.Session.Token)
	creds, err := rp.Credentials(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Enrolled credentials: %d\n", len(creds))
	for i, cred := range creds {
		fmt.Printf("%d) %s: %s (created %s)\n", i+1, cred.ID, cred.Name, cred.CreatedAt)
	}
}
