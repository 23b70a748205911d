package wave_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AlekseyRodimkin/warehouse/internal/platform/lock"
	"github.com/AlekseyRodimkin/warehouse/internal/shared"
	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
	"github.com/AlekseyRodimkin/warehouse/internal/wave"
	"github.com/AlekseyRodimkin/warehouse/internal/wave/wavetest"
)

var clock = func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type recordingPacking struct {
	generated []string
	err       error
}

func (p *recordingPacking) Generate(_ context.Context, w wave.Wave) error {
	p.generated = append(p.generated, w.Number)
	return p.err
}

type memoryDocs struct {
	removed []string
}

func (d *memoryDocs) Archive(w io.Writer, folder, number string) error {
	_, err := io.WriteString(w, folder+"/"+number)
	return err
}

func (d *memoryDocs) Remove(folder, number string) error {
	d.removed = append(d.removed, folder+"/"+number)
	return nil
}

type recordingLocker struct {
	keys []string
	err  error
}

func (l *recordingLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

type fixture struct {
	store    *wavetest.Store
	svc      *wave.Service
	reserved warehouse.Reserved
	stock    warehouse.Stock
	shelf    warehouse.Place
	packing  *recordingPacking
	docs     *memoryDocs
	audit    *memoryAudit
	locker   *recordingLocker
}

func newFixture(t *testing.T, seedReserved bool) *fixture {
	t.Helper()
	store := wavetest.NewStore()
	f := &fixture{
		store:   store,
		packing: &recordingPacking{},
		docs:    &memoryDocs{},
		audit:   &memoryAudit{},
		locker:  &recordingLocker{},
	}
	if seedReserved {
		f.reserved = store.SeedReserved(warehouse.DefaultReservedTitles())
	}
	f.stock = store.AddStock("main")
	zone := store.AddZone(&f.stock, "A")
	f.shelf = store.AddPlace(&zone, "shelf-1")

	stock := warehouse.NewService(store.Store, f.audit, nil, nil, nil, warehouse.ServiceConfig{WithdrawOrder: warehouse.WithdrawFIFO}, nil)
	f.svc = wave.NewService(store, stock, wave.Dependencies{
		Locker:    f.locker,
		Packing:   f.packing,
		Documents: f.docs,
		Audit:     f.audit,
		Now:       clock,
	})
	return f
}

func (f *fixture) create(t *testing.T, kind wave.Kind, lines ...wave.LineInput) wave.Wave {
	t.Helper()
	w, err := f.svc.Create(context.Background(), wave.CreateInput{
		Kind:    kind,
		StockID: f.stock.ID,
		Party:   "ООО Ромашка",
		Items:   lines,
		Actor:   "alice",
	})
	require.NoError(t, err)
	return w
}

func line(code string, qty int64) wave.LineInput {
	return wave.LineInput{ItemCode: code, Quantity: qty}
}

func TestCreateNumbersWavesPerKindAndYear(t *testing.T) {
	f := newFixture(t, true)
	for i, want := range []string{"INB-2025-0001", "INB-2025-0002", "INB-2025-0003"} {
		w := f.create(t, wave.KindInbound, line("a-1", int64(i+1)))
		require.Equal(t, want, w.Number)
		require.Equal(t, wave.StatusPlanned, w.Status)
		require.Nil(t, w.ActualDate)
	}
	f.store.Put(f.shelf, f.store.AddItem("B-1", 0, ""), 5, warehouse.StatusOK)
	out := f.create(t, wave.KindOutbound, line("b-1", 5))
	require.Equal(t, "OUT-2025-0001", out.Number)
	require.Len(t, f.audit.logs, 4)
	require.Equal(t, shared.AuditWaveCreate, f.audit.logs[3].Action)
}

func TestCreateMergesDuplicateLinesAndNormalizesParty(t *testing.T) {
	f := newFixture(t, true)
	w, err := f.svc.Create(context.Background(), wave.CreateInput{
		Kind:    wave.KindInbound,
		StockID: f.stock.ID,
		Party:   "  acme   trading ",
		Items: []wave.LineInput{
			{ItemCode: " p-100 ", Quantity: 2, Description: "bolt"},
			{ItemCode: "P-100", Quantity: 3},
			{ItemCode: "p-200", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "ACME TRADING", w.Party)
	require.Len(t, w.Items, 2)
	require.Equal(t, "P-100", w.Items[0].ItemCode)
	require.EqualValues(t, 5, w.Items[0].Quantity)
	require.Equal(t, "bolt", w.Items[0].Description)
	require.Len(t, f.store.Items(), 2)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cases := map[string]wave.CreateInput{
		"short party":   {Kind: wave.KindInbound, StockID: f.stock.ID, Party: " ab "},
		"unknown kind":  {Kind: "return", StockID: f.stock.ID, Party: "ACME"},
		"missing stock": {Kind: wave.KindInbound, StockID: 999, Party: "ACME"},
		"zero quantity": {Kind: wave.KindInbound, StockID: f.stock.ID, Party: "ACME", Items: []wave.LineInput{line("A", 0)}},
		"blank code":    {Kind: wave.KindInbound, StockID: f.stock.ID, Party: "ACME", Items: []wave.LineInput{line(" ", 1)}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, in)
			require.ErrorIs(t, err, wave.ErrInvalidInput)
		})
	}
	require.Empty(t, f.store.Waves())
}

func TestCreateOutboundChecksAvailability(t *testing.T) {
	f := newFixture(t, true)
	item := f.store.AddItem("A", 0, "")
	f.store.Put(f.shelf, item, 15, warehouse.StatusOK)
	f.store.Put(f.reserved.Outbound, item, 40, warehouse.StatusOK)

	_, err := f.svc.Create(context.Background(), wave.CreateInput{
		Kind: wave.KindOutbound, StockID: f.stock.ID, Party: "ACME", Items: []wave.LineInput{line("A", 20)},
	})
	var insufficient *warehouse.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	require.EqualValues(t, 20, insufficient.Requested)
	require.EqualValues(t, 15, insufficient.Available)
	require.Empty(t, f.store.Waves())
}

func TestInvalidTransitionLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	w := f.create(t, wave.KindInbound, line("A", 5))
	before := f.store.Entries()

	_, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusCompleted, "bob")
	require.ErrorIs(t, err, wave.ErrInvalidTransition)

	stored, _ := f.store.Wave(w.ID)
	require.Equal(t, wave.StatusPlanned, stored.Status)
	require.Nil(t, stored.ActualDate)
	require.Equal(t, before, f.store.Entries())

	_, err = f.svc.ChangeStatus(ctx, w.ID, wave.StatusCancelled, "bob")
	require.NoError(t, err)
	_, err = f.svc.ChangeStatus(ctx, w.ID, wave.StatusInProgress, "bob")
	require.ErrorIs(t, err, wave.ErrInvalidTransition)

	_, err = f.svc.ChangeStatus(ctx, w.ID, "shipped", "bob")
	require.ErrorIs(t, err, wave.ErrInvalidInput)
}

func TestInboundLifecycle(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	w := f.create(t, wave.KindInbound, line("A", 5), line("B", 2))
	a, _ := f.store.ItemByCode("A")
	b, _ := f.store.ItemByCode("B")

	staged, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusInProgress, "bob")
	require.NoError(t, err)
	require.Equal(t, wave.StatusInProgress, staged.Status)
	entry, ok := f.store.Entry(f.reserved.Inbound.ID, a.ID)
	require.True(t, ok)
	require.EqualValues(t, 5, entry.Quantity)
	require.Equal(t, warehouse.StatusInbound, entry.Status)
	require.EqualValues(t, 2, f.store.Quantity(f.reserved.Inbound.ID, b.ID))

	done, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusCompleted, "bob")
	require.NoError(t, err)
	require.Equal(t, wave.StatusCompleted, done.Status)
	require.NotNil(t, done.ActualDate)
	require.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), *done.ActualDate)
	require.Zero(t, f.store.Quantity(f.reserved.Inbound.ID, a.ID))
	received, ok := f.store.Entry(f.reserved.New.ID, a.ID)
	require.True(t, ok)
	require.EqualValues(t, 5, received.Quantity)
	require.Equal(t, warehouse.StatusNew, received.Status)

	history := f.store.History()
	require.Len(t, history, 2)
	require.Equal(t, "INBOUND", history[0].OldAddress)
	require.Equal(t, "NEW", history[0].NewAddress)
	require.Equal(t, "bob", history[0].Actor)
	require.Empty(t, f.packing.generated)
	require.Equal(t, []string{"wave:1:lock", "wave:1:lock"}, f.locker.keys[:2])
}

func TestInboundCancelDropsStagedUnits(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	w := f.create(t, wave.KindInbound, line("A", 5))
	a, _ := f.store.ItemByCode("A")

	_, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusInProgress, "bob")
	require.NoError(t, err)
	cancelled, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusCancelled, "bob")
	require.NoError(t, err)
	require.Nil(t, cancelled.ActualDate)
	require.Zero(t, f.store.Quantity(f.reserved.Inbound.ID, a.ID))
	require.Zero(t, f.store.Quantity(f.reserved.New.ID, a.ID))
	require.Empty(t, f.store.History())
}

func TestOutboundRoundTrip(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	item := f.store.AddItem("A", 250, "widget")
	f.store.Put(f.shelf, item, 15, warehouse.StatusOK)
	w := f.create(t, wave.KindOutbound, line("A", 10))

	_, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusInProgress, "bob")
	require.NoError(t, err)
	require.EqualValues(t, 5, f.store.Quantity(f.shelf.ID, item.ID))
	staged, ok := f.store.Entry(f.reserved.Outbound.ID, item.ID)
	require.True(t, ok)
	require.EqualValues(t, 10, staged.Quantity)
	require.Equal(t, warehouse.StatusOutbound, staged.Status)
	history := f.store.History()
	require.Len(t, history, 1)
	require.Equal(t, "MAIN/A/SHELF-1", history[0].OldAddress)
	require.Equal(t, "OUTBOUND", history[0].NewAddress)

	done, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusCompleted, "bob")
	require.NoError(t, err)
	require.NotNil(t, done.ActualDate)
	require.Zero(t, f.store.Quantity(f.reserved.Outbound.ID, item.ID))
	require.EqualValues(t, 5, f.store.Quantity(f.shelf.ID, item.ID))
	require.Equal(t, []string{"OUT-2025-0001"}, f.packing.generated)
}

func TestOutboundCancelMergesIntoNew(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	item := f.store.AddItem("A", 0, "")
	f.store.Put(f.shelf, item, 10, warehouse.StatusOK)
	f.store.Put(f.reserved.New, item, 3, warehouse.StatusNew)
	w := f.create(t, wave.KindOutbound, line("A", 10))

	_, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusInProgress, "bob")
	require.NoError(t, err)
	require.Zero(t, f.store.Quantity(f.shelf.ID, item.ID))

	_, err = f.svc.ChangeStatus(ctx, w.ID, wave.StatusCancelled, "bob")
	require.NoError(t, err)
	merged, ok := f.store.Entry(f.reserved.New.ID, item.ID)
	require.True(t, ok)
	require.EqualValues(t, 13, merged.Quantity)
	require.Equal(t, warehouse.StatusOK, merged.Status)
	require.Zero(t, f.store.Quantity(f.reserved.Outbound.ID, item.ID))
	require.Empty(t, f.packing.generated)
}

func TestOutboundInsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a := f.store.AddItem("A", 0, "")
	b := f.store.AddItem("B", 0, "")
	f.store.Put(f.shelf, a, 30, warehouse.StatusOK)
	bEntry := f.store.Put(f.shelf, b, 20, warehouse.StatusOK)
	w := f.create(t, wave.KindOutbound, line("A", 10), line("B", 20))

	require.NoError(t, f.store.Tx().UpdateEntry(ctx, bEntry.ID, 15, warehouse.StatusOK))
	before := f.store.Entries()

	_, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusInProgress, "bob")
	var insufficient *warehouse.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, "B", insufficient.ItemCode)
	require.EqualValues(t, 20, insufficient.Requested)
	require.EqualValues(t, 15, insufficient.Available)
	require.EqualValues(t, 5, insufficient.Shortfall())

	require.Equal(t, before, f.store.Entries())
	require.Empty(t, f.store.History())
	stored, _ := f.store.Wave(w.ID)
	require.Equal(t, wave.StatusPlanned, stored.Status)
}

func TestMissingReservedPlaceIsFatal(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	w := f.create(t, wave.KindInbound, line("A", 5))

	_, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusInProgress, "bob")
	var missing *warehouse.MissingReservedLocationError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, "INBOUND", missing.Title)
	stored, _ := f.store.Wave(w.ID)
	require.Equal(t, wave.StatusPlanned, stored.Status)
	require.Empty(t, f.store.Entries())

	_, err = f.svc.ChangeStatus(ctx, w.ID, wave.StatusCancelled, "bob")
	require.NoError(t, err)
}

func TestStatusWriteFailureRollsBackLedger(t *testing.T) {
	f := newFixture(t, true)
	w := f.create(t, wave.KindInbound, line("A", 5))
	f.store.FailStatusUpdate = errors.New("connection reset")

	_, err := f.svc.ChangeStatus(context.Background(), w.ID, wave.StatusInProgress, "bob")
	require.EqualError(t, err, "connection reset")
	require.Empty(t, f.store.Entries())
}

func TestPackingFailureDoesNotFailCompletion(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	item := f.store.AddItem("A", 0, "")
	f.store.Put(f.shelf, item, 4, warehouse.StatusOK)
	f.packing.err = errors.New("gotenberg down")
	w := f.create(t, wave.KindOutbound, line("A", 4))

	_, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusInProgress, "bob")
	require.NoError(t, err)
	done, err := f.svc.ChangeStatus(ctx, w.ID, wave.StatusCompleted, "bob")
	require.NoError(t, err)
	require.Equal(t, wave.StatusCompleted, done.Status)
	require.Len(t, f.packing.generated, 1)

	_, err = f.svc.RegeneratePackingList(ctx, w.ID)
	require.EqualError(t, err, "gotenberg down")
}

func TestRegeneratePackingListRequiresCompletedOutbound(t *testing.T) {
	f := newFixture(t, true)
	w := f.create(t, wave.KindInbound)
	_, err := f.svc.RegeneratePackingList(context.Background(), w.ID)
	require.ErrorIs(t, err, wave.ErrInvalidInput)
}

func TestChangeStatusHonoursLock(t *testing.T) {
	f := newFixture(t, true)
	w := f.create(t, wave.KindInbound, line("A", 1))
	f.locker.err = lock.ErrBusy

	_, err := f.svc.ChangeStatus(context.Background(), w.ID, wave.StatusInProgress, "bob")
	require.ErrorIs(t, err, lock.ErrBusy)
	stored, _ := f.store.Wave(w.ID)
	require.Equal(t, wave.StatusPlanned, stored.Status)
}

func TestDeleteRemovesWaveAndDocuments(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	planned := f.create(t, wave.KindInbound, line("A", 1))
	active := f.create(t, wave.KindInbound, line("B", 1))
	_, err := f.svc.ChangeStatus(ctx, active.ID, wave.StatusInProgress, "bob")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, planned.ID))
	_, ok := f.store.Wave(planned.ID)
	require.False(t, ok)
	require.Equal(t, []string{"inbounds/INB-2025-0001"}, f.docs.removed)

	require.ErrorIs(t, f.svc.Delete(ctx, active.ID), wave.ErrNotDeletable)
	require.ErrorIs(t, f.svc.Delete(ctx, 999), wave.ErrNotFound)
}

func TestSearchFiltersAndOrdersByNumber(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.create(t, wave.KindInbound)
	second := f.create(t, wave.KindInbound)
	_, err := f.svc.ChangeStatus(ctx, second.ID, wave.StatusCancelled, "")
	require.NoError(t, err)

	page, err := f.svc.Search(ctx, wave.Filter{Kind: wave.KindInbound})
	require.NoError(t, err)
	require.Equal(t, 2, page.Pagination.Total)
	require.Equal(t, "INB-2025-0002", page.Items[0].Number)

	page, err = f.svc.Search(ctx, wave.Filter{Status: wave.StatusPlanned, Party: "ромашка"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "INB-2025-0001", page.Items[0].Number)

	_, err = f.svc.Search(ctx, wave.Filter{Status: "lost"})
	require.ErrorIs(t, err, wave.ErrInvalidInput)
}

func TestCreateWithStepsCommitsEverythingTogether(t *testing.T) {
	f := newFixture(t, true)
	item := f.store.AddItem("A", 250, "widget")
	f.store.Put(f.shelf, item, 15, warehouse.StatusOK)

	var attached wave.Wave
	w, err := f.svc.CreateWithSteps(context.Background(), wave.CreateInput{
		Kind:    wave.KindOutbound,
		StockID: f.stock.ID,
		Party:   "ООО Ромашка",
		Items:   []wave.LineInput{line("a", 10)},
		Actor:   "alice",
	}, []wave.Status{wave.StatusInProgress, wave.StatusCompleted}, func(_ context.Context, w wave.Wave) error {
		attached = w
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, wave.StatusCompleted, w.Status)
	require.NotNil(t, w.ActualDate)
	require.Len(t, w.Items, 1)
	require.Equal(t, w.Number, attached.Number)
	require.Equal(t, wave.StatusCompleted, attached.Status)
	require.EqualValues(t, 5, f.store.Quantity(f.shelf.ID, item.ID))
	require.Equal(t, []string{"OUT-2025-0001"}, f.packing.generated)
	require.Empty(t, f.locker.keys)

	actions := make([]string, 0, len(f.audit.logs))
	for _, log := range f.audit.logs {
		actions = append(actions, log.Action)
	}
	require.Equal(t, []string{shared.AuditWaveCreate, shared.AuditWaveStatus, shared.AuditWaveStatus}, actions)
}

func TestCreateWithStepsRollsBackOnAttachFailure(t *testing.T) {
	f := newFixture(t, true)
	item := f.store.AddItem("A", 0, "")
	f.store.Put(f.shelf, item, 15, warehouse.StatusOK)

	_, err := f.svc.CreateWithSteps(context.Background(), wave.CreateInput{
		Kind:    wave.KindOutbound,
		StockID: f.stock.ID,
		Party:   "ООО Ромашка",
		Items:   []wave.LineInput{line("A", 10)},
	}, []wave.Status{wave.StatusInProgress}, func(context.Context, wave.Wave) error {
		return errors.New("disk full")
	})
	require.ErrorContains(t, err, "disk full")
	require.Empty(t, f.store.Waves())
	require.EqualValues(t, 15, f.store.Quantity(f.shelf.ID, item.ID))
	require.Zero(t, f.store.Quantity(f.reserved.Outbound.ID, item.ID))
	require.Empty(t, f.store.History())
	require.Empty(t, f.audit.logs)
	require.Empty(t, f.packing.generated)
}
