package session

import (
	"context"
	"errors"
)

// ErrNotFound indicates no session exists for the given token. Checked
// with errors.Is.
var ErrNotFound = errors.New("session not found")

// Store persists session profiles keyed by the opaque session token.
//
// Update is the single mutation entry point: implementations serialize
// concurrent updates to the same session, which makes the item-list append
// from simultaneous distributions safe. Everything else about concurrent
// profile writes remains last-writer-wins.
type Store interface {
	// Get returns a copy of the profile for token, or ErrNotFound.
	Get(ctx context.Context, token string) (*Profile, error)

	// Update applies fn to the profile under the store's per-session lock,
	// bootstrapping a guest profile if none exists yet. The profile is
	// persisted when fn returns nil; fn's error aborts the update and is
	// returned unchanged. The returned profile is a copy of the final state.
	Update(ctx context.Context, token string, fn func(*Profile) error) (*Profile, error)

	// Delete removes the session. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error
}
