package auth

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"convene/internal/domain"
)

// Identity is what the token provider knows about a member.
type Identity struct {
	UID         string
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
}

// TokenVerifier turns an opaque ID token into an Identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// FirebaseVerifier verifies Firebase ID tokens.
type FirebaseVerifier struct {
	client *fbauth.Client
}

func NewFirebaseVerifier(ctx context.Context, serviceAccountPath string) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if serviceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", domain.ErrAuth)
	}
	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	id := Identity{UID: decoded.UID}
	if name, _ := decoded.Claims["name"].(string); name != "" {
		id.FirstName, id.LastName = splitName(name)
	}
	id.Email, _ = decoded.Claims["email"].(string)
	id.PhoneNumber, _ = decoded.Claims["phone_number"].(string)
	return id, nil
}

func splitName(name string) (first, last string) {
	parts := strings.SplitN(name, " ", 2)
	first = parts[0]
	if len(parts) > 1 {
		last = parts[1]
	}
	return first, last
}
