package request

import (
	"context"
	"errors"
)

// Credentials are the access keys used to sign outbound requests.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// CredentialsProvider supplies request credentials.
type CredentialsProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// IdentityProvider is a credentials provider backed by a federated identity.
// Its identity id doubles as the bot user id when none is configured.
type IdentityProvider interface {
	CredentialsProvider
	IdentityID(ctx context.Context) (string, error)
}

// StaticCredentials always returns the same keys.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// StaticIdentity is a fixed identity with fixed keys.
type StaticIdentity struct {
	Keys Credentials
	ID   string
}

func (s StaticIdentity) Credentials(context.Context) (Credentials, error) {
	return s.Keys, nil
}

func (s StaticIdentity) IdentityID(context.Context) (string, error) {
	if s.ID == "" {
		return "", errors.New("identity id not yet assigned")
	}
	return s.ID, nil
}
