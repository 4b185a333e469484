/*
credentials.go - Opaque stored-credential boundary

PURPOSE:
  The sync engine only cares whether a bearer credential is present;
  issuance, refresh, and expiry live outside this module. An absent
  credential makes sync fail fast with scan.ErrUnauthenticated before
  any network call, leaving the queue untouched.
*/
package client

import "context"

// CredentialProvider supplies the bearer token for bulk submissions.
type CredentialProvider interface {
	// Token returns the stored credential, or scan.ErrUnauthenticated
	// (possibly wrapped) when none is available.
	Token(ctx context.Context) (string, error)
}

// StaticCredentials is a fixed token, e.g. loaded from the environment.
type StaticCredentials string

func (c StaticCredentials) Token(context.Context) (string, error) {
	if c == "" {
		return "", errNoCredential()
	}
	return string(c), nil
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Token(ctx context.Context) (string, error) { return f(ctx) }
