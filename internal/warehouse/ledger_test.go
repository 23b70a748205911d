package warehouse_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
	"github.com/AlekseyRodimkin/warehouse/internal/warehouse/warehousetest"
)

func TestUpsertQuantityEqualsSumOfDeltas(t *testing.T) {
	sequences := [][]int64{
		{5},
		{5, 3, 2},
		{10, -4},
		{10, -10},
		{3, -7},
		{1, 1, 1, -2, 4},
	}
	for _, deltas := range sequences {
		store := warehousetest.NewStore()
		place := store.AddPlace(nil, "shelf-1")
		item := store.AddItem("item-a", 0, "")
		ledger := warehouse.NewLedger(warehouse.WithdrawFIFO)
		ctx := context.Background()

		var sum int64
		for _, d := range deltas {
			_, err := ledger.Upsert(ctx, store.Tx(), place.ID, item.ID, d, warehouse.StatusOK)
			require.NoError(t, err)
			sum += d
		}
		entry, present := store.Entry(place.ID, item.ID)
		if sum <= 0 {
			require.False(t, present, "deltas %v", deltas)
			continue
		}
		require.True(t, present, "deltas %v", deltas)
		require.Equal(t, sum, entry.Quantity)
		require.Len(t, store.Entries(), 1)
	}
}

func TestUpsertOverwritesStatusAndRejectsNegativeCreate(t *testing.T) {
	store := warehousetest.NewStore()
	place := store.AddPlace(nil, "NEW")
	item := store.AddItem("ITEM-A", 0, "")
	ledger := warehouse.NewLedger("")
	ctx := context.Background()

	_, err := ledger.Upsert(ctx, store.Tx(), place.ID, item.ID, -1, warehouse.StatusOK)
	require.ErrorIs(t, err, warehouse.ErrInvalidQuantity)

	_, err = ledger.Upsert(ctx, store.Tx(), place.ID, item.ID, 3, warehouse.StatusNew)
	require.NoError(t, err)
	entry, err := ledger.Upsert(ctx, store.Tx(), place.ID, item.ID, 10, warehouse.StatusOK)
	require.NoError(t, err)
	require.Equal(t, int64(13), entry.Quantity)
	require.Equal(t, warehouse.StatusOK, entry.Status)

	_, err = ledger.Upsert(ctx, store.Tx(), place.ID, item.ID, 1, warehouse.EntryStatus("lost"))
	require.ErrorIs(t, err, warehouse.ErrInvalidStatus)
}

func TestWithdrawIsAllOrNothing(t *testing.T) {
	store := warehousetest.NewStore()
	shelf1 := store.AddPlace(nil, "SHELF-1")
	shelf2 := store.AddPlace(nil, "SHELF-2")
	item := store.AddItem("ITEM-A", 0, "")
	store.Put(shelf1, item, 10, warehouse.StatusOK)
	store.Put(shelf2, item, 5, warehouse.StatusOK)
	before := store.Entries()

	ledger := warehouse.NewLedger(warehouse.WithdrawFIFO)
	err := store.WithTx(context.Background(), func(ctx context.Context, tx warehouse.TxRepository) error {
		_, err := ledger.Withdraw(ctx, tx, item, 20, warehouse.StatusOK)
		return err
	})

	var insufficient *warehouse.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	require.ErrorIs(t, err, warehouse.ErrInsufficientStock)
	require.Equal(t, "ITEM-A", insufficient.ItemCode)
	require.Equal(t, int64(20), insufficient.Requested)
	require.Equal(t, int64(15), insufficient.Available)
	require.Equal(t, int64(5), insufficient.Shortfall())
	require.Equal(t, before, store.Entries())
}

func TestWithdrawDrainsInConfiguredOrder(t *testing.T) {
	cases := []struct {
		order    warehouse.WithdrawOrder
		expected map[string]int64
	}{
		{warehouse.WithdrawFIFO, map[string]int64{"A": 0, "B": 6, "C": 6}},
		{warehouse.WithdrawLIFO, map[string]int64{"A": 4, "B": 7, "C": 1}},
		{warehouse.WithdrawSmallestFirst, map[string]int64{"A": 0, "B": 7, "C": 5}},
		{warehouse.WithdrawLargestFirst, map[string]int64{"A": 4, "B": 2, "C": 6}},
	}
	for _, tc := range cases {
		t.Run(string(tc.order), func(t *testing.T) {
			store := warehousetest.NewStore()
			item := store.AddItem("ITEM-A", 0, "")
			places := map[string]warehouse.Place{}
			for _, title := range []string{"A", "B", "C"} {
				places[title] = store.AddPlace(nil, title)
			}
			store.Put(places["A"], item, 4, warehouse.StatusOK)
			store.Put(places["B"], item, 7, warehouse.StatusOK)
			store.Put(places["C"], item, 6, warehouse.StatusOK)

			ledger := warehouse.NewLedger(tc.order)
			draws, err := ledger.Withdraw(context.Background(), store.Tx(), item, 5, warehouse.StatusOK)
			require.NoError(t, err)

			var taken int64
			for _, d := range draws {
				taken += d.Taken
			}
			require.Equal(t, int64(5), taken)
			for title, qty := range tc.expected {
				require.Equal(t, qty, store.Quantity(places[title].ID, item.ID), "place %s", title)
			}
		})
	}
}

func TestWithdrawSkipsOtherStatusesAndExcludedPlaces(t *testing.T) {
	store := warehousetest.NewStore()
	reserved := store.SeedReserved(warehouse.DefaultReservedTitles())
	shelf := store.AddPlace(nil, "SHELF-1")
	item := store.AddItem("ITEM-A", 0, "")
	store.Put(reserved.Outbound, item, 50, warehouse.StatusOK)
	store.Put(shelf, item, 3, warehouse.StatusBlocked)

	ledger := warehouse.NewLedger(warehouse.WithdrawFIFO)
	_, err := ledger.Withdraw(context.Background(), store.Tx(), item, 1, warehouse.StatusOK, reserved.Outbound.ID)
	require.ErrorIs(t, err, warehouse.ErrInsufficientStock)
}

func TestMoveWritesOneHistoryRow(t *testing.T) {
	store := warehousetest.NewStore()
	stock := store.AddStock("main")
	zone := store.AddZone(&stock, "a")
	from := store.AddPlace(&zone, "shelf-1")
	to := store.AddPlace(&zone, "shelf-2")
	item := store.AddItem("ITEM-A", 0, "")
	store.Put(from, item, 15, warehouse.StatusOK)
	store.Put(to, item, 2, warehouse.StatusBlocked)

	ledger := warehouse.NewLedger(warehouse.WithdrawFIFO)
	err := ledger.Move(context.Background(), store.Tx(), item, 10, from, to, warehouse.StatusOK, "petrov")
	require.NoError(t, err)

	require.Equal(t, int64(5), store.Quantity(from.ID, item.ID))
	dst, ok := store.Entry(to.ID, item.ID)
	require.True(t, ok)
	require.Equal(t, int64(12), dst.Quantity)
	require.Equal(t, warehouse.StatusOK, dst.Status)

	history := store.History()
	require.Len(t, history, 1)
	require.Equal(t, warehouse.History{ID: history[0].ID, Actor: "petrov", ItemCode: "ITEM-A", Count: 10, OldAddress: "MAIN/A/SHELF-1", NewAddress: "MAIN/A/SHELF-2", Date: history[0].Date}, history[0])

	err = ledger.Move(context.Background(), store.Tx(), item, 6, from, to, warehouse.StatusOK, "")
	require.ErrorIs(t, err, warehouse.ErrInsufficientStock)
	err = ledger.Move(context.Background(), store.Tx(), item, 1, from, from, warehouse.StatusOK, "")
	require.ErrorIs(t, err, warehouse.ErrSamePlace)
}

func TestMoveDrainingSourceDeletesIt(t *testing.T) {
	store := warehousetest.NewStore()
	from := store.AddPlace(nil, "SHELF-1")
	to := store.AddPlace(nil, "SHELF-2")
	item := store.AddItem("ITEM-A", 0, "")
	store.Put(from, item, 4, warehouse.StatusOK)

	ledger := warehouse.NewLedger(warehouse.WithdrawFIFO)
	require.NoError(t, ledger.Move(context.Background(), store.Tx(), item, 4, from, to, warehouse.StatusOK, ""))
	_, present := store.Entry(from.ID, item.ID)
	require.False(t, present)
	require.Equal(t, int64(4), store.Quantity(to.ID, item.ID))
}

func TestAllocateSummarisesSourcesInOneHistoryRow(t *testing.T) {
	store := warehousetest.NewStore()
	reserved := store.SeedReserved(warehouse.DefaultReservedTitles())
	shelf1 := store.AddPlace(nil, "SHELF-1")
	shelf2 := store.AddPlace(nil, "SHELF-2")
	item := store.AddItem("ITEM-A", 0, "")
	store.Put(shelf1, item, 4, warehouse.StatusOK)
	store.Put(shelf2, item, 10, warehouse.StatusOK)

	ledger := warehouse.NewLedger(warehouse.WithdrawFIFO)
	draws, err := ledger.Allocate(context.Background(), store.Tx(), item, 6, warehouse.StatusOK, reserved.Outbound, warehouse.StatusOutbound, "", reserved.Outbound.ID)
	require.NoError(t, err)
	require.Len(t, draws, 2)

	staged, ok := store.Entry(reserved.Outbound.ID, item.ID)
	require.True(t, ok)
	require.Equal(t, int64(6), staged.Quantity)
	require.Equal(t, warehouse.StatusOutbound, staged.Status)

	history := store.History()
	require.Len(t, history, 1)
	require.Equal(t, "SHELF-1, SHELF-2", history[0].OldAddress)
	require.Equal(t, "OUTBOUND", history[0].NewAddress)
	require.Equal(t, []int64{shelf1.ID, shelf2.ID, reserved.Outbound.ID}, history[0].PlaceIDs)
	require.Equal(t, int64(6), history[0].Count)
}

func TestRelocateAndReleaseAreCapped(t *testing.T) {
	store := warehousetest.NewStore()
	reserved := store.SeedReserved(warehouse.DefaultReservedTitles())
	item := store.AddItem("ITEM-A", 0, "")
	store.Put(reserved.Inbound, item, 7, warehouse.StatusInbound)
	store.Put(reserved.New, item, 3, warehouse.StatusNew)
	ledger := warehouse.NewLedger(warehouse.WithdrawFIFO)
	ctx := context.Background()

	moved, err := ledger.Relocate(ctx, store.Tx(), item, 10, reserved.Inbound, reserved.New, warehouse.StatusNew, "")
	require.NoError(t, err)
	require.Equal(t, int64(7), moved)
	require.Equal(t, int64(10), store.Quantity(reserved.New.ID, item.ID))
	require.Len(t, store.History(), 1)

	moved, err = ledger.Relocate(ctx, store.Tx(), item, 1, reserved.Inbound, reserved.New, warehouse.StatusNew, "")
	require.NoError(t, err)
	require.Zero(t, moved)
	require.Len(t, store.History(), 1)

	removed, err := ledger.Release(ctx, store.Tx(), item, 4, reserved.New)
	require.NoError(t, err)
	require.Equal(t, int64(4), removed)
	require.Equal(t, int64(6), store.Quantity(reserved.New.ID, item.ID))

	removed, err = ledger.Release(ctx, store.Tx(), item, 100, reserved.New)
	require.NoError(t, err)
	require.Equal(t, int64(6), removed)
	_, present := store.Entry(reserved.New.ID, item.ID)
	require.False(t, present)
}

func TestParseWithdrawOrder(t *testing.T) {
	order, err := warehouse.ParseWithdrawOrder(" LIFO ")
	require.NoError(t, err)
	require.Equal(t, warehouse.WithdrawLIFO, order)

	order, err = warehouse.ParseWithdrawOrder("")
	require.NoError(t, err)
	require.Equal(t, warehouse.WithdrawFIFO, order)

	_, err = warehouse.ParseWithdrawOrder("fefo")
	require.Error(t, err)
}
