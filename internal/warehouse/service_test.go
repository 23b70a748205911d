package warehouse_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/AlekseyRodimkin/warehouse/internal/platform/cache"
	"github.com/AlekseyRodimkin/warehouse/internal/shared"
	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
	"github.com/AlekseyRodimkin/warehouse/internal/warehouse/warehousetest"
)

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if m.keys[module+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key, module string) error {
	delete(m.keys, module+key)
	return nil
}

func newService(store *warehousetest.Store, audit warehouse.AuditPort, idem warehouse.IdempotencyPort, summary *cache.Versioned) *warehouse.Service {
	return warehouse.NewService(store, audit, idem, summary, nil, warehouse.ServiceConfig{WithdrawOrder: warehouse.WithdrawFIFO}, nil)
}

func TestResolveReserved(t *testing.T) {
	store := warehousetest.NewStore()
	svc := newService(store, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.ResolveReserved(ctx, store.Tx())
	var missing *warehouse.MissingReservedLocationError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, "INBOUND", missing.Title)

	seeded := store.SeedReserved(warehouse.ReservedTitles{Inbound: "inbound", Outbound: "Outbound", New: "NEW"})
	resolved, err := svc.ResolveReserved(ctx, store.Tx())
	require.NoError(t, err)
	require.Equal(t, seeded, resolved)
}

func TestResolveReservedReportsFirstMissingTitle(t *testing.T) {
	store := warehousetest.NewStore()
	store.AddPlace(nil, "INBOUND")
	store.AddPlace(nil, "NEW")
	svc := newService(store, nil, nil, nil)

	_, err := svc.ResolveReserved(context.Background(), store.Tx())
	require.ErrorIs(t, err, warehouse.ErrMissingReservedLocation)
	require.Contains(t, err.Error(), "OUTBOUND")
}

func TestGetOrCreateItemIsIdempotentAndBackfills(t *testing.T) {
	store := warehousetest.NewStore()
	svc := newService(store, nil, nil, nil)
	ctx := context.Background()

	first, err := svc.GetOrCreateItem(ctx, store.Tx(), warehouse.ItemInput{Code: "  abc-1 "})
	require.NoError(t, err)
	require.Equal(t, "ABC-1", first.Code)
	require.Nil(t, first.Weight)

	weight := int64(250)
	second, err := svc.GetOrCreateItem(ctx, store.Tx(), warehouse.ItemInput{Code: "ABC-1", Weight: &weight, Description: "bolt"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(250), *second.Weight)
	require.Equal(t, "bolt", second.Description)

	other := int64(999)
	third, err := svc.GetOrCreateItem(ctx, store.Tx(), warehouse.ItemInput{Code: "abc-1", Weight: &other, Description: "nut"})
	require.NoError(t, err)
	require.Equal(t, int64(250), *third.Weight)
	require.Equal(t, "bolt", third.Description)
	require.Len(t, store.Items(), 1)

	tooHeavy := int64(warehouse.MaxWeight + 1)
	_, err = svc.GetOrCreateItem(ctx, store.Tx(), warehouse.ItemInput{Code: "X", Weight: &tooHeavy})
	require.ErrorIs(t, err, warehouse.ErrInvalidInput)
	_, err = svc.GetOrCreateItem(ctx, store.Tx(), warehouse.ItemInput{Code: "   "})
	require.ErrorIs(t, err, warehouse.ErrInvalidInput)
}

func TestServiceMoveRecordsAuditAndHistory(t *testing.T) {
	store := warehousetest.NewStore()
	from := store.AddPlace(nil, "SHELF-1")
	to := store.AddPlace(nil, "SHELF-2")
	item := store.AddItem("ITEM-A", 0, "")
	store.Put(from, item, 15, warehouse.StatusOK)
	audit := &memoryAudit{}
	svc := newService(store, audit, nil, nil)

	ctx := shared.WithActor(context.Background(), "ivanov")
	result, err := svc.Move(ctx, warehouse.MoveInput{ItemCode: "item-a", FromPlaceID: from.ID, ToPlaceID: to.ID, Quantity: 10})
	require.NoError(t, err)
	require.NotNil(t, result.Source)
	require.Equal(t, int64(5), result.Source.Quantity)
	require.Equal(t, int64(10), result.Destination.Quantity)
	require.Equal(t, warehouse.StatusOK, result.Destination.Status)

	history := store.History()
	require.Len(t, history, 1)
	require.Equal(t, "ivanov", history[0].Actor)

	require.Len(t, audit.logs, 1)
	require.Equal(t, shared.AuditStockMove, audit.logs[0].Action)
	require.Equal(t, "ivanov", audit.logs[0].Actor)
}

func TestServiceMoveFailureRollsBackAndReleasesKey(t *testing.T) {
	store := warehousetest.NewStore()
	from := store.AddPlace(nil, "SHELF-1")
	to := store.AddPlace(nil, "SHELF-2")
	item := store.AddItem("ITEM-A", 0, "")
	store.Put(from, item, 3, warehouse.StatusOK)
	idem := &memoryIdempotency{keys: map[string]bool{}}
	svc := newService(store, nil, idem, nil)
	ctx := context.Background()

	in := warehouse.MoveInput{ItemCode: "ITEM-A", FromPlaceID: from.ID, ToPlaceID: to.ID, Quantity: 5, IdempotencyKey: "k1"}
	_, err := svc.Move(ctx, in)
	require.ErrorIs(t, err, warehouse.ErrInsufficientStock)
	require.Empty(t, idem.keys)
	require.Equal(t, int64(3), store.Quantity(from.ID, item.ID))
	require.Empty(t, store.History())

	in.Quantity = 2
	_, err = svc.Move(ctx, in)
	require.NoError(t, err)
	_, err = svc.Move(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, int64(1), store.Quantity(from.ID, item.ID))

	_, err = svc.Move(ctx, warehouse.MoveInput{ItemCode: "NOPE", FromPlaceID: from.ID, ToPlaceID: to.ID, Quantity: 1})
	require.ErrorIs(t, err, warehouse.ErrNotFound)
}

func TestEnsureStructureIsIdempotent(t *testing.T) {
	store := warehousetest.NewStore()
	svc := newService(store, nil, nil, nil)
	ctx := shared.WithActor(context.Background(), "admin")

	first, err := svc.EnsureStructure(ctx, warehouse.StructureInput{Stock: "main", Zone: "a", Place: "shelf-1"})
	require.NoError(t, err)
	require.Equal(t, 3, first.Created)
	require.Equal(t, "MAIN/A/SHELF-1", first.Place.FullAddress())
	require.Equal(t, "created by admin", first.Place.Description)

	second, err := svc.EnsureStructure(ctx, warehouse.StructureInput{Stock: "MAIN", Zone: "A", Place: "Shelf-1"})
	require.NoError(t, err)
	require.Zero(t, second.Created)
	require.Equal(t, first.Place.ID, second.Place.ID)

	_, err = svc.EnsureStructure(ctx, warehouse.StructureInput{Zone: "a", Place: "outbound"})
	require.ErrorIs(t, err, warehouse.ErrInvalidInput)
	_, err = svc.EnsureStructure(ctx, warehouse.StructureInput{})
	require.ErrorIs(t, err, warehouse.ErrInvalidInput)
}

func TestDeletePlaceIsProtected(t *testing.T) {
	store := warehousetest.NewStore()
	reserved := store.SeedReserved(warehouse.DefaultReservedTitles())
	shelf := store.AddPlace(nil, "SHELF-1")
	empty := store.AddPlace(nil, "SHELF-2")
	moved := store.AddPlace(nil, "SHELF-3")
	item := store.AddItem("ITEM-A", 0, "")
	store.Put(shelf, item, 1, warehouse.StatusOK)
	require.NoError(t, store.Tx().InsertHistory(context.Background(), warehouse.History{ItemCode: "ITEM-A", Count: 1, OldAddress: "SHELF-3", NewAddress: "SHELF-1", PlaceIDs: []int64{moved.ID, shelf.ID}}))
	svc := newService(store, nil, nil, nil)
	ctx := context.Background()

	require.ErrorIs(t, svc.DeletePlace(ctx, reserved.New.ID), warehouse.ErrProtected)
	require.ErrorIs(t, svc.DeletePlace(ctx, shelf.ID), warehouse.ErrProtected)
	require.ErrorIs(t, svc.DeletePlace(ctx, moved.ID), warehouse.ErrProtected)
	require.NoError(t, svc.DeletePlace(ctx, empty.ID))
	require.ErrorIs(t, svc.DeletePlace(ctx, empty.ID), warehouse.ErrNotFound)

	require.ErrorIs(t, svc.DeleteItem(ctx, item.ID), warehouse.ErrProtected)
	spare := store.AddItem("SPARE", 0, "")
	require.NoError(t, svc.DeleteItem(ctx, spare.ID))
}

func TestDeletePlaceNamedInCombinedWithdrawalIsProtected(t *testing.T) {
	store := warehousetest.NewStore()
	reserved := store.SeedReserved(warehouse.DefaultReservedTitles())
	shelf1 := store.AddPlace(nil, "SHELF-1")
	shelf2 := store.AddPlace(nil, "SHELF-2")
	item := store.AddItem("ITEM-A", 0, "")
	store.Put(shelf1, item, 5, warehouse.StatusOK)
	store.Put(shelf2, item, 5, warehouse.StatusOK)
	ctx := context.Background()

	ledger := warehouse.NewLedger(warehouse.WithdrawFIFO)
	_, err := ledger.Allocate(ctx, store.Tx(), item, 10, warehouse.StatusOK, reserved.Outbound, warehouse.StatusOutbound, "ops", reserved.Outbound.ID)
	require.NoError(t, err)
	require.Equal(t, "SHELF-1, SHELF-2", store.History()[0].OldAddress)

	svc := newService(store, nil, nil, nil)
	require.ErrorIs(t, svc.DeletePlace(ctx, shelf1.ID), warehouse.ErrProtected)
	require.ErrorIs(t, svc.DeletePlace(ctx, shelf2.ID), warehouse.ErrProtected)
}

func TestDeletePlaceFallsBackToAddressForUntaggedHistory(t *testing.T) {
	store := warehousetest.NewStore()
	store.SeedReserved(warehouse.DefaultReservedTitles())
	old := store.AddPlace(nil, "SHELF-9")
	require.NoError(t, store.Tx().InsertHistory(context.Background(), warehouse.History{ItemCode: "ITEM-A", Count: 1, OldAddress: "SHELF-9", NewAddress: "NEW"}))

	svc := newService(store, nil, nil, nil)
	require.ErrorIs(t, svc.DeletePlace(context.Background(), old.ID), warehouse.ErrProtected)
}

func TestDeleteZoneAndStockWithChildrenAreProtected(t *testing.T) {
	store := warehousetest.NewStore()
	stock := store.AddStock("MAIN")
	zone := store.AddZone(&stock, "A")
	store.AddPlace(&zone, "SHELF-1")
	svc := newService(store, nil, nil, nil)
	ctx := context.Background()

	require.ErrorIs(t, svc.DeleteStock(ctx, stock.ID), warehouse.ErrProtected)
	require.ErrorIs(t, svc.DeleteZone(ctx, zone.ID), warehouse.ErrProtected)
}

func TestStockSummaryIsCachedUntilInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := warehousetest.NewStore()
	reserved := store.SeedReserved(warehouse.DefaultReservedTitles())
	shelf := store.AddPlace(nil, "SHELF-1")
	item := store.AddItem("ITEM-A", 0, "")
	store.Put(shelf, item, 15, warehouse.StatusOK)
	store.Put(reserved.Outbound, item, 4, warehouse.StatusOK)
	store.Put(reserved.New, item, 2, warehouse.StatusNew)

	svc := newService(store, nil, nil, cache.NewVersioned(client, "warehouse", time.Minute))
	ctx := context.Background()

	summary, err := svc.StockSummary(ctx, "item-a")
	require.NoError(t, err)
	require.Equal(t, int64(15), summary.Available)
	require.Equal(t, int64(21), summary.Total)
	require.Equal(t, 3, summary.Places)
	require.Equal(t, int64(2), summary.ByStatus[warehouse.StatusNew])

	store.Put(store.AddPlace(nil, "SHELF-2"), item, 5, warehouse.StatusOK)
	cached, err := svc.StockSummary(ctx, "ITEM-A")
	require.NoError(t, err)
	require.Equal(t, int64(15), cached.Available)

	svc.InvalidateSummary(ctx)
	fresh, err := svc.StockSummary(ctx, "ITEM-A")
	require.NoError(t, err)
	require.Equal(t, int64(20), fresh.Available)

	_, err = svc.StockSummary(ctx, "missing")
	require.ErrorIs(t, err, warehouse.ErrNotFound)
}

func TestSearchLotsAndHistory(t *testing.T) {
	store := warehousetest.NewStore()
	stock := store.AddStock("MAIN")
	zone := store.AddZone(&stock, "A")
	shelf := store.AddPlace(&zone, "SHELF-1")
	loose := store.AddPlace(nil, "FLOOR")
	a := store.AddItem("ITEM-A", 0, "")
	b := store.AddItem("ITEM-B", 0, "")
	store.Put(shelf, a, 5, warehouse.StatusOK)
	store.Put(shelf, b, 50, warehouse.StatusBlocked)
	store.Put(loose, a, 1, warehouse.StatusOK)
	svc := newService(store, nil, nil, nil)
	ctx := context.Background()

	page, err := svc.SearchLots(ctx, warehouse.LotFilter{StockID: &stock.ID})
	require.NoError(t, err)
	require.Equal(t, 2, page.Pagination.Total)

	minQty := int64(2)
	page, err = svc.SearchLots(ctx, warehouse.LotFilter{ItemCode: "item-a", MinQty: &minQty})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "MAIN/A/SHELF-1", page.Items[0].Place.FullAddress())

	_, err = svc.SearchLots(ctx, warehouse.LotFilter{Status: "lost"})
	require.ErrorIs(t, err, warehouse.ErrInvalidStatus)

	_, err = svc.Move(ctx, warehouse.MoveInput{ItemCode: "ITEM-A", FromPlaceID: shelf.ID, ToPlaceID: loose.ID, Quantity: 2, Actor: "petrov"})
	require.NoError(t, err)
	hist, err := svc.SearchHistory(ctx, warehouse.HistoryFilter{Address: "shelf-1"})
	require.NoError(t, err)
	require.Len(t, hist.Items, 1)
	hist, err = svc.SearchHistory(ctx, warehouse.HistoryFilter{Actor: "someone-else"})
	require.NoError(t, err)
	require.Empty(t, hist.Items)

	items, err := svc.SearchItems(ctx, warehouse.ItemFilter{Code: "item", PerPage: 1})
	require.NoError(t, err)
	require.Len(t, items.Items, 1)
	require.Equal(t, 2, items.Pagination.TotalPages)
}
