package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendrickPhan/go-verify-apple-id-token/validator"
	"google.golang.org/api/idtoken"
)

const (
	ProviderGoogle = "google"
	ProviderApple  = "apple"
)

// ExternalTokenClaims is the identity asserted by a verified provider ID token.
type ExternalTokenClaims struct {
	Provider      string
	Issuer        string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// IDTokenVerifier validates tokenString for the audience expectedAud.
type IDTokenVerifier func(ctx context.Context, tokenString, expectedAud string) (*ExternalTokenClaims, error)

func VerifyGoogleIDToken(ctx context.Context, tokenString, expectedAud string) (*ExternalTokenClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, errors.New("missing id token")
	}
	if strings.TrimSpace(expectedAud) == "" {
		return nil, errors.New("missing google client id")
	}

	payload, err := idtoken.Validate(ctx, tokenString, expectedAud)
	if err != nil {
		return nil, err
	}
	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return nil, fmt.Errorf("unexpected issuer: %s", payload.Issuer)
	}

	return &ExternalTokenClaims{
		Provider:      ProviderGoogle,
		Issuer:        payload.Issuer,
		Subject:       payload.Subject,
		Email:         strings.TrimSpace(strings.ToLower(stringClaim(payload.Claims, "email"))),
		EmailVerified: boolClaim(payload.Claims, "email_verified"),
		Name:          strings.TrimSpace(stringClaim(payload.Claims, "name")),
	}, nil
}

func VerifyAppleIDToken(ctx context.Context, tokenString, expectedAud string) (*ExternalTokenClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, errors.New("missing id token")
	}
	if strings.TrimSpace(expectedAud) == "" {
		return nil, errors.New("missing apple service id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := validator.NewClient()
	idToken, err := client.VerifyIdToken(expectedAud, tokenString)
	if err != nil {
		return nil, err
	}
	if idToken.Iss != "https://appleid.apple.com" {
		return nil, fmt.Errorf("unexpected issuer: %s", idToken.Iss)
	}

	email := strings.TrimSpace(strings.ToLower(idToken.Email))
	// Apple only releases addresses it has verified (including relay addresses).
	return &ExternalTokenClaims{
		Provider:      ProviderApple,
		Issuer:        idToken.Iss,
		Subject:       idToken.Sub,
		Email:         email,
		EmailVerified: email != "",
	}, nil
}

func stringClaim(claims map[string]any, key string) string {
	if raw, ok := claims[key]; ok {
		if v, ok := raw.(string); ok {
			return v
		}
	}
	return ""
}

func boolClaim(claims map[string]any, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}
