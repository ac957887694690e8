package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/internal/inventory/service"
	"github.com/ehr/inventory-ledger/pkg/errors"
)

// fakeLotStore keys lots by item and number. raceWinner, when set, is
// inserted by a phantom concurrent caller just before the first insert.
type fakeLotStore struct {
	mu         sync.Mutex
	lots       map[string]uuid.UUID
	inserts    int
	finds      int
	raceWinner *uuid.UUID
}

func newFakeLotStore() *fakeLotStore {
	return &fakeLotStore{lots: map[string]uuid.UUID{}}
}

func lotKey(itemID uuid.UUID, number string) string {
	return itemID.String() + "/" + number
}

func (f *fakeLotStore) FindIDByNumber(_ context.Context, itemID uuid.UUID, number string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	return f.lots[lotKey(itemID, number)], nil
}

func (f *fakeLotStore) InsertIfAbsent(_ context.Context, lot *repository.Lot) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	key := lotKey(lot.ItemID, lot.LotNumber)
	if f.raceWinner != nil {
		f.lots[key] = *f.raceWinner
		f.raceWinner = nil
	}
	if _, ok := f.lots[key]; ok {
		return false, nil
	}
	lot.ID = uuid.New()
	f.lots[key] = lot.ID
	return true, nil
}

func TestResolveOrCreateLot_ExplicitIDWins(t *testing.T) {
	store := newFakeLotStore()
	lotID := uuid.New()

	id, created, err := service.ResolveOrCreateLot(context.Background(), store, service.LotRef{
		ItemID:    uuid.New(),
		LotID:     &lotID,
		LotNumber: "IGNORED",
	})

	require.NoError(t, err)
	assert.Equal(t, lotID, id)
	assert.False(t, created)
	assert.Zero(t, store.finds)
}

func TestResolveOrCreateLot_FindsExisting(t *testing.T) {
	store := newFakeLotStore()
	itemID, existing := uuid.New(), uuid.New()
	store.lots[lotKey(itemID, "A-1")] = existing

	id, created, err := service.ResolveOrCreateLot(context.Background(), store, service.LotRef{
		ItemID:    itemID,
		LotNumber: "  A-1 ",
	})

	require.NoError(t, err)
	assert.Equal(t, existing, id)
	assert.False(t, created)
	assert.Zero(t, store.inserts)
}

func TestResolveOrCreateLot_CreatesUnknownNumber(t *testing.T) {
	store := newFakeLotStore()
	itemID, location := uuid.New(), uuid.New()

	var inserted *repository.Lot
	recording := &recordingStore{fakeLotStore: store, onInsert: func(l *repository.Lot) { inserted = l }}

	id, created, err := service.ResolveOrCreateLot(context.Background(), recording, service.LotRef{
		ItemID:     itemID,
		LotNumber:  "NEW-1",
		LocationID: &location,
	})

	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, inserted)
	assert.Equal(t, id, inserted.ID)
	assert.Equal(t, domain.LotAvailable, inserted.Status)
	assert.Equal(t, &location, inserted.LocationID)
	assert.True(t, inserted.QuantityOnHand.IsZero())
}

func TestResolveOrCreateLot_LostRaceReadsWinner(t *testing.T) {
	store := newFakeLotStore()
	winner := uuid.New()
	store.raceWinner = &winner

	id, created, err := service.ResolveOrCreateLot(context.Background(), store, service.LotRef{
		ItemID:    uuid.New(),
		LotNumber: "RACE",
	})

	require.NoError(t, err)
	assert.Equal(t, winner, id)
	assert.False(t, created)
	assert.Equal(t, 2, store.finds)
}

func TestResolveOrCreateLot_ConcurrentCallersShareOneLot(t *testing.T) {
	store := newFakeLotStore()
	itemID := uuid.New()

	const callers = 8
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, _, err := service.ResolveOrCreateLot(context.Background(), store, service.LotRef{
				ItemID:    itemID,
				LotNumber: "SHARED",
			})
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, store.lots, 1)
}

func TestResolveOrCreateLot_RequiresIDOrNumber(t *testing.T) {
	_, _, err := service.ResolveOrCreateLot(context.Background(), newFakeLotStore(), service.LotRef{
		ItemID:    uuid.New(),
		LotNumber: "   ",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

type recordingStore struct {
	*fakeLotStore
	onInsert func(*repository.Lot)
}

func (r *recordingStore) InsertIfAbsent(ctx context.Context, lot *repository.Lot) (bool, error) {
	created, err := r.fakeLotStore.InsertIfAbsent(ctx, lot)
	if created {
		r.onInsert(lot)
	}
	return created, err
}
