// Package domain holds the inventory ledger's value types and the pure rules
// that decide how a movement changes a lot.
package domain

import (
	"github.com/shopspring/decimal"

	"github.com/ehr/inventory-ledger/pkg/errors"
)

// LotStatus is the lifecycle state of a lot.
type LotStatus string

const (
	LotAvailable   LotStatus = "available"
	LotReserved    LotStatus = "reserved"
	LotConsumed    LotStatus = "consumed"
	LotQuarantined LotStatus = "quarantined"
	LotExpired     LotStatus = "expired"
)

// Valid reports whether s is a known status.
func (s LotStatus) Valid() bool {
	switch s {
	case LotAvailable, LotReserved, LotConsumed, LotQuarantined, LotExpired:
		return true
	}
	return false
}

// MovementType is the business reason for a quantity change.
type MovementType string

const (
	MovementReceipt    MovementType = "receipt"
	MovementIssue      MovementType = "issue"
	MovementTransfer   MovementType = "transfer"
	MovementAdjustment MovementType = "adjustment"
	MovementReturn     MovementType = "return"
	MovementWaste      MovementType = "waste"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementReceipt, MovementIssue, MovementTransfer, MovementAdjustment, MovementReturn, MovementWaste:
		return true
	}
	return false
}

// Direction says whether a movement adds to or removes from a lot.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Valid reports whether d is in or out.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// DefaultDirection is the direction implied by a movement type.
func (t MovementType) DefaultDirection() Direction {
	switch t {
	case MovementReceipt, MovementReturn, MovementAdjustment:
		return DirectionIn
	default:
		return DirectionOut
	}
}

// ResolveDirection returns the explicit direction when one was given,
// otherwise the type's default.
func ResolveDirection(t MovementType, explicit Direction) Direction {
	if explicit != "" {
		return explicit
	}
	return t.DefaultDirection()
}

// Transition is the lot state after a movement is applied.
type Transition struct {
	Quantity decimal.Decimal
	Status   LotStatus
}

// Policy holds the switches that alter lot status transitions.
type Policy struct {
	// ReopenConsumed returns a consumed lot to available when an inbound
	// movement gives it stock again. Without it consumed is terminal.
	ReopenConsumed bool
}

// Apply computes the lot state after moving quantity in direction.
// It fails with an InsufficientQuantity error when the result would be negative.
func (p Policy) Apply(current decimal.Decimal, status LotStatus, quantity decimal.Decimal, direction Direction) (Transition, error) {
	delta := quantity
	if direction == DirectionOut {
		delta = quantity.Neg()
	}

	next := current.Add(delta)
	if next.IsNegative() {
		return Transition{}, errors.InsufficientQuantity(current, quantity)
	}

	nextStatus := status
	switch {
	case next.IsZero() && direction == DirectionOut && status == LotAvailable:
		nextStatus = LotConsumed
	case p.ReopenConsumed && next.IsPositive() && direction == DirectionIn && status == LotConsumed:
		nextStatus = LotAvailable
	}

	return Transition{Quantity: next, Status: nextStatus}, nil
}
