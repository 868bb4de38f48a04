package auth

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/savaki/secrets"
)

// SigningSecret is the shape of the JWT secret stored in Secrets Manager.
type SigningSecret struct {
	JWTSecret string `json:"jwt_secret"`
}

// LoadSigningSecret fetches the JWT signing secret from Secrets Manager and
// returns a verifier backed by it.
func LoadSigningSecret(s *session.Session, secretName string) (*JWT, error) {
	api := secrets.WithSecretsManager(secretsmanager.New(s))
	manager, err := secrets.NewManager(api)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets: %w", err)
	}

	var secret SigningSecret
	if err := manager.Decode(secretName, &secret); err != nil {
		return nil, fmt.Errorf("failed to load secret %v: %w", secretName, err)
	}
	if secret.JWTSecret == "" {
		return nil, fmt.Errorf("secret %v has no jwt_secret", secretName)
	}
	return NewJWT([]byte(secret.JWTSecret)), nil
}
