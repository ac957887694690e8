// Package actor identifies the user or system performing an action.
// The inventory ledger stores it as performed_by on movements and as the
// actor of audit events.
package actor

import (
	"context"

	"github.com/google/uuid"
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the user id supplied by the upstream gateway.
	ID uuid.UUID `json:"id"`

	// OrgID is the organization the actor is acting within.
	OrgID uuid.UUID `json:"org_id"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a.IsSystem() {
		return "system"
	}
	return a.ID.String()
}

// UserID returns the actor id, or nil for system actions.
func (a *Actor) UserID() *uuid.UUID {
	if a.IsSystem() {
		return nil
	}
	id := a.ID
	return &id
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns an Actor representing the system itself, used by
// migrations and the audit consumer.
func SystemActor() *Actor {
	return &Actor{ID: uuid.Nil}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	return a == nil || a.ID == uuid.Nil
}
