package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/ehr/inventory-ledger/pkg/errors"
)

// PostgreSQL error codes the ledger reacts to.
const (
	codeNotNullViolation     = "23502"
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

// MapError converts driver errors into AppErrors.
//
// sql.ErrNoRows, context.Canceled and errors that are already AppErrors are
// returned unchanged. Unknown PostgreSQL errors are returned unchanged too;
// the HTTP layer renders them as 500.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	if stderrors.Is(err, sql.ErrNoRows) || stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Contention("timed out waiting for exclusive access")
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		if mapped := MapPQError(pqErr); mapped != nil {
			return mapped
		}
		return err
	}

	if isConnectionError(err) {
		return errors.Infrastructure(err)
	}
	return err
}

// MapPQError converts a PostgreSQL error to an AppError.
// Returns nil if the code has no domain meaning.
func MapPQError(pqErr *pq.Error) *errors.AppError {
	switch pqErr.Code {
	case codeCheckViolation:
		return mapCheckConstraint(pqErr)

	case codeUniqueViolation:
		return errors.Conflict(formatConstraintMessage(pqErr))

	case codeForeignKeyViolation:
		return errors.NotFound(referencedResource(pqErr.Constraint))

	case codeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure, codeQueryCanceled:
		return errors.Contention("lot is locked by another movement, retry")
	}

	if pqErr.Code.Class() == "08" || pqErr.Code.Class() == "53" || pqErr.Code.Class() == "57" {
		return errors.Infrastructure(pqErr)
	}
	return nil
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_on_hand"), strings.Contains(constraint, "quantity_reserved"):
		return errors.Validation(map[string]string{
			"quantity": "lot quantity must not be negative",
		})
	case strings.Contains(constraint, "quantity_positive"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})
	case strings.Contains(constraint, "status"):
		return errors.Validation(map[string]string{
			"status": "must be one of: available, reserved, consumed, quarantined, expired",
		})
	case strings.Contains(constraint, "direction"):
		return errors.Validation(map[string]string{
			"direction": "must be one of: in, out",
		})
	case strings.Contains(constraint, "movement_type"):
		return errors.Validation(map[string]string{
			"movementType": "must be one of: receipt, issue, transfer, adjustment, return, waste",
		})
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "lot_number"):
		return "a lot with this lot number already exists for the item"
	case strings.Contains(constraint, "sku"):
		return "an item with this SKU already exists"
	case strings.Contains(constraint, "categories"):
		return "a category with this name already exists"
	case strings.Contains(constraint, "suppliers"):
		return "a supplier with this name already exists"
	default:
		return "a record with these values already exists"
	}
}

func referencedResource(constraint string) string {
	switch {
	case strings.Contains(constraint, "item_id"):
		return "item"
	case strings.Contains(constraint, "lot_id"):
		return "lot"
	case strings.Contains(constraint, "supplier_id"):
		return "supplier"
	case strings.Contains(constraint, "category_id"):
		return "category"
	default:
		return "referenced record"
	}
}

func isConnectionError(err error) bool {
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, sql.ErrConnDone) ||
		stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}
