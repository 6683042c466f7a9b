// This command is only used for local testing: it signs an application token
// with the secret shared with a local Clue server, and can store it as the
// current credential so the client can be used without a login round trip.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cccs/clue-client/internal/config"
	"github.com/cccs/clue-client/internal/credentials"
	"github.com/cccs/clue-client/internal/encryption"
	"github.com/cccs/clue-client/internal/storage"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Audience        string `env:"UTIL_AUDIENCE, default=clue"`
	Subject         string `env:"UTIL_SUBJECT, default=test-analyst"`
	Issuer          string `env:"UTIL_ISSUER, default=https://local.testing"`
	SigningKeyFile  string `env:"UTIL_SIGNING_KEY_FILE, default=.development/keys/app-token-secret"`
	ValidityMinutes int    `env:"UTIL_VALIDITY_MINS, default=60"`
	Save            bool   `env:"UTIL_SAVE, default=false"`
}

func main() {
	ctx := context.Background()

	cfg := Config{}
	err := envconfig.Process(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	secret, err := os.ReadFile(cfg.SigningKeyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading signing key: %v\n", err)
		os.Exit(1)
	}

	tokenStr, err := createJWT([]byte(strings.TrimSpace(string(secret))), claims(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating JWT: %v\n", err)
		os.Exit(1)
	}

	if cfg.Save {
		if err := save(ctx, tokenStr); err != nil {
			fmt.Fprintf(os.Stderr, "error saving credential: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("%s", tokenStr)
}

func claims(cfg Config) jwt.RegisteredClaims {
	now := time.Now().UTC()

	return jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{cfg.Audience},
		Subject:   cfg.Subject,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ValidityMinutes) * time.Minute)),
	}
}

func createJWT(secret []byte, claims jwt.RegisteredClaims) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("signing key is empty")
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// save stores the token in the client's durable storage, as a login would.
func save(ctx context.Context, token string) error {
	clueCfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	aead, err := encryption.NewFromConfig(ctx, clueCfg.Storage.Encryption)
	if err != nil {
		return err
	}

	store, err := storage.OpenDurable(ctx, clueCfg.Storage, aead)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = credentials.SaveLoginCredential(ctx, store, &credentials.LoginResult{
		AppToken: token,
		Provider: "local",
	})
	return err
}
