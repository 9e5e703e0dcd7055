package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("key not found")
	ErrReplicaNotFound   = errors.New("replica not found")
	ErrReplicaOwnership  = errors.New("batch does not belong to the authenticated user")
	ErrInvalidBatch      = errors.New("invalid replica batch")
	ErrRemoteUnavailable = errors.New("remote replica unavailable")
)

// LocalStore is the durable key-value store backing the local replica.
type LocalStore interface {
	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the blob stored under key. Last write wins.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// RemoteStore is the client view of the authoritative remote replica.
type RemoteStore interface {
	// Fetch reads the profile document plus every day log, or ErrReplicaNotFound.
	Fetch(ctx context.Context, userID string) (*RemoteSnapshot, error)

	// Commit writes the profile and the batch's day logs atomically.
	// Entitlement fields in the batch are never persisted.
	Commit(ctx context.Context, batch *ReplicaBatch) error
}

// ReplicaRepository is the server-side storage of replicas.
type ReplicaRepository interface {
	RemoteStore

	// UpdateEntitlement locks the stored profile (a fresh one when the user
	// has none), lets fn change it and writes back only the entitlement,
	// HasEverBeenPremium and the shield count. Concurrent commits wait for
	// it; LastUpdated is left as stored.
	UpdateEntitlement(ctx context.Context, userID string, fn func(p *Profile) error) (*Profile, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// ErrStaleReplica is returned when a replacement was computed from a local
// snapshot that has since been mutated.
var ErrStaleReplica = errors.New("local replica changed since snapshot")
