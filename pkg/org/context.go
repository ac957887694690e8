// Package org carries the caller's organization through a request context.
// Every repository query is scoped by the id stored here.
package org

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type contextKey string

const orgIDKey contextKey = "org_id"

var (
	// ErrNoOrgInContext is returned when org context is missing
	ErrNoOrgInContext = errors.New("no organization in context")
	// ErrInvalidOrgID is returned when the supplied org id is not a UUID
	ErrInvalidOrgID = errors.New("organization id must be a UUID")
)

// WithOrgID adds the organization id to the context.
func WithOrgID(ctx context.Context, orgID uuid.UUID) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// Parse validates a raw org id, typically from a request header.
func Parse(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidOrgID
	}
	return id, nil
}

// OrgID extracts the organization id from context.
func OrgID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(orgIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoOrgInContext
	}
	return id, nil
}

// MustOrgID panics when no org is present. Use only where a missing org is a programming error.
func MustOrgID(ctx context.Context) uuid.UUID {
	id, err := OrgID(ctx)
	if err != nil {
		panic("org ID not found in context")
	}
	return id
}
