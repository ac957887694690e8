package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	apperrors "github.com/ehr/inventory-ledger/pkg/errors"
)

// LotStore is the slice of lot persistence that lot resolution needs.
type LotStore interface {
	FindIDByNumber(ctx context.Context, itemID uuid.UUID, lotNumber string) (uuid.UUID, error)
	InsertIfAbsent(ctx context.Context, lot *repository.Lot) (bool, error)
}

// LotRef names the lot a movement applies to, either by id or by number.
type LotRef struct {
	ItemID     uuid.UUID
	LotID      *uuid.UUID
	LotNumber  string
	LocationID *uuid.UUID
}

// ResolveOrCreateLot returns the id of the lot ref points at. A lot number
// that does not exist yet creates an empty available lot at
// ref.LocationID. Concurrent callers resolving the same new number end up
// with the same lot: the loser of the insert race reads the winner's row.
func ResolveOrCreateLot(ctx context.Context, store LotStore, ref LotRef) (uuid.UUID, bool, error) {
	if ref.LotID != nil {
		return *ref.LotID, false, nil
	}

	number := strings.TrimSpace(ref.LotNumber)
	if number == "" {
		return uuid.Nil, false, apperrors.Validation(map[string]string{
			"lot_id": "lot_id or lot_number is required",
		})
	}

	id, err := store.FindIDByNumber(ctx, ref.ItemID, number)
	if err != nil || id != uuid.Nil {
		return id, false, err
	}

	lot := &repository.Lot{
		ItemID:     ref.ItemID,
		LotNumber:  number,
		LocationID: ref.LocationID,
		Status:     domain.LotAvailable,
	}
	created, err := store.InsertIfAbsent(ctx, lot)
	if err != nil {
		return uuid.Nil, false, err
	}
	if created {
		return lot.ID, true, nil
	}

	id, err = store.FindIDByNumber(ctx, ref.ItemID, number)
	if err != nil {
		return uuid.Nil, false, err
	}
	if id == uuid.Nil {
		return uuid.Nil, false, apperrors.Contention("lot " + number + " changed concurrently")
	}
	return id, false, nil
}
