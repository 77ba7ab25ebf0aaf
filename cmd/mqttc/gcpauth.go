package main

import (
	"fmt"
	"os"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
)

// cloudIoTPassword builds the RS256 JWT that Cloud IoT style brokers expect
// as the CONNECT password. The audience is the project id; the token is
// valid for 24 hours.
func cloudIoTPassword(keyFile, project string) (string, error) {
	if project == "" {
		return "", fmt.Errorf("--gcp-project is required with --gcp-key-file")
	}

	keyBytes, err := os.ReadFile(keyFile)
	if err != nil {
		return "", fmt.Errorf("reading key file: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyBytes)
	if err != nil {
		return "", fmt.Errorf("parsing PEM key: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.StandardClaims{
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(24 * time.Hour).Unix(),
		Audience:  project,
	})
	return token.SignedString(key)
}
