// Package keystore provides durable storage for usage-metering credentials.
// It supports SQLite and PostgreSQL backends behind a common interface.
package keystore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a credential id does not exist.
var ErrNotFound = errors.New("credential not found")

// Credential is one stored API key. The store only ever reads and writes
// credentials; it never interprets the secret.
type Credential struct {
	ID     string
	Secret string
}

// Store defines the interface for credential storage.
type Store interface {
	// List returns all credentials in insertion order.
	List(ctx context.Context) ([]Credential, error)

	// Get returns the credential with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (Credential, error)

	// Set inserts or replaces a credential.
	Set(ctx context.Context, cred Credential) error

	// Delete removes a credential. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the backend connection.
	Close() error
}
