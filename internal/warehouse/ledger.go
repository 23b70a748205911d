package warehouse

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// EntryQuery selects ledger rows for a withdrawal scan.
type EntryQuery struct {
	ItemID          int64
	Status          EntryStatus
	ExcludePlaceIDs []int64
}

// LedgerTx is the transactional storage the ledger works against. Reads lock
// the returned rows until the transaction ends.
type LedgerTx interface {
	GetEntryForUpdate(ctx context.Context, placeID, itemID int64) (Entry, error)
	ListEntriesForUpdate(ctx context.Context, query EntryQuery) ([]Entry, error)
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	UpdateEntry(ctx context.Context, id, quantity int64, status EntryStatus) error
	DeleteEntry(ctx context.Context, id int64) error
	InsertHistory(ctx context.Context, record History) error
}

// Draw is the part of one ledger entry consumed by a withdrawal.
type Draw struct {
	Entry Entry
	Taken int64
}

// Ledger applies quantity changes while keeping one positive row per place and item.
type Ledger struct {
	order WithdrawOrder
}

// NewLedger constructs a Ledger using order for withdrawals.
func NewLedger(order WithdrawOrder) *Ledger {
	if order == "" {
		order = WithdrawFIFO
	}
	return &Ledger{order: order}
}

// Order returns the configured withdrawal order.
func (l *Ledger) Order() WithdrawOrder {
	return l.order
}

// Upsert adds delta to the (place, item) entry and overwrites its status. A
// missing entry is created when delta is positive. Entries that reach zero are
// deleted. The returned entry has ID 0 when nothing remains.
func (l *Ledger) Upsert(ctx context.Context, tx LedgerTx, placeID, itemID, delta int64, status EntryStatus) (Entry, error) {
	if !status.IsValid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if delta == 0 {
		return Entry{}, ErrInvalidQuantity
	}
	existing, err := tx.GetEntryForUpdate(ctx, placeID, itemID)
	if errors.Is(err, ErrNotFound) {
		if delta < 0 {
			return Entry{}, fmt.Errorf("%w: cannot create entry with %d units", ErrInvalidQuantity, delta)
		}
		return tx.InsertEntry(ctx, Entry{PlaceID: placeID, ItemID: itemID, Quantity: delta, Status: status})
	}
	if err != nil {
		return Entry{}, err
	}
	quantity := existing.Quantity + delta
	if quantity <= 0 {
		if err := tx.DeleteEntry(ctx, existing.ID); err != nil {
			return Entry{}, err
		}
		return Entry{PlaceID: placeID, ItemID: itemID, Status: status}, nil
	}
	if err := tx.UpdateEntry(ctx, existing.ID, quantity, status); err != nil {
		return Entry{}, err
	}
	existing.Quantity = quantity
	existing.Status = status
	return existing, nil
}

// Withdraw consumes quantity units of item from entries with status from,
// skipping the excluded places. Availability is checked before any row is
// touched so a shortfall leaves the ledger unchanged.
func (l *Ledger) Withdraw(ctx context.Context, tx LedgerTx, item Item, quantity int64, from EntryStatus, exclude ...int64) ([]Draw, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	entries, err := tx.ListEntriesForUpdate(ctx, EntryQuery{ItemID: item.ID, Status: from, ExcludePlaceIDs: exclude})
	if err != nil {
		return nil, err
	}
	l.sortEntries(entries)

	var available int64
	for _, entry := range entries {
		available += entry.Quantity
	}
	if available < quantity {
		return nil, &InsufficientStockError{ItemCode: item.Code, Requested: quantity, Available: available}
	}

	remaining := quantity
	draws := make([]Draw, 0, len(entries))
	for _, entry := range entries {
		if remaining == 0 {
			break
		}
		take := min(entry.Quantity, remaining)
		if take == entry.Quantity {
			err = tx.DeleteEntry(ctx, entry.ID)
		} else {
			err = tx.UpdateEntry(ctx, entry.ID, entry.Quantity-take, entry.Status)
		}
		if err != nil {
			return nil, err
		}
		draws = append(draws, Draw{Entry: entry, Taken: take})
		remaining -= take
	}
	return draws, nil
}

// Allocate withdraws quantity from status from and deposits it at dest with
// status to, writing one history row for the whole transfer.
func (l *Ledger) Allocate(ctx context.Context, tx LedgerTx, item Item, quantity int64, from EntryStatus, dest Place, to EntryStatus, actor string, exclude ...int64) ([]Draw, error) {
	draws, err := l.Withdraw(ctx, tx, item, quantity, from, exclude...)
	if err != nil {
		return nil, err
	}
	if _, err := l.Upsert(ctx, tx, dest.ID, item.ID, quantity, to); err != nil {
		return nil, err
	}
	sources := make([]string, 0, len(draws))
	placeIDs := make([]int64, 0, len(draws)+1)
	seen := make(map[int64]struct{}, len(draws))
	for _, d := range draws {
		if _, ok := seen[d.Entry.PlaceID]; ok {
			continue
		}
		seen[d.Entry.PlaceID] = struct{}{}
		sources = append(sources, d.Entry.Place.FullAddress())
		placeIDs = append(placeIDs, d.Entry.PlaceID)
	}
	record := History{
		Actor:      actor,
		ItemCode:   item.Code,
		Count:      quantity,
		OldAddress: strings.Join(sources, ", "),
		NewAddress: dest.FullAddress(),
		PlaceIDs:   append(placeIDs, dest.ID),
	}
	if err := tx.InsertHistory(ctx, record); err != nil {
		return nil, err
	}
	return draws, nil
}

// Move relocates exactly quantity units of item from one place to another.
// The source must hold enough units. One history row is written.
func (l *Ledger) Move(ctx context.Context, tx LedgerTx, item Item, quantity int64, from, to Place, status EntryStatus, actor string) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if from.ID == to.ID {
		return ErrSamePlace
	}
	src, err := tx.GetEntryForUpdate(ctx, from.ID, item.ID)
	if errors.Is(err, ErrNotFound) {
		return &InsufficientStockError{ItemCode: item.Code, Requested: quantity}
	}
	if err != nil {
		return err
	}
	if src.Quantity < quantity {
		return &InsufficientStockError{ItemCode: item.Code, Requested: quantity, Available: src.Quantity}
	}
	return l.transfer(ctx, tx, item, src, quantity, from, to, status, actor)
}

// Relocate moves up to quantity units of item from one place to another and
// reports how many moved. Nothing held at the source is not an error.
func (l *Ledger) Relocate(ctx context.Context, tx LedgerTx, item Item, quantity int64, from, to Place, status EntryStatus, actor string) (int64, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	src, err := tx.GetEntryForUpdate(ctx, from.ID, item.ID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	moved := min(src.Quantity, quantity)
	if from.ID == to.ID {
		if err := tx.UpdateEntry(ctx, src.ID, src.Quantity, status); err != nil {
			return 0, err
		}
		return moved, nil
	}
	if err := l.transfer(ctx, tx, item, src, moved, from, to, status, actor); err != nil {
		return 0, err
	}
	return moved, nil
}

// Release removes up to quantity units of item held at place without writing
// history, and reports how many were removed.
func (l *Ledger) Release(ctx context.Context, tx LedgerTx, item Item, quantity int64, place Place) (int64, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	entry, err := tx.GetEntryForUpdate(ctx, place.ID, item.ID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := min(entry.Quantity, quantity)
	if removed == entry.Quantity {
		return removed, tx.DeleteEntry(ctx, entry.ID)
	}
	return removed, tx.UpdateEntry(ctx, entry.ID, entry.Quantity-removed, entry.Status)
}

func (l *Ledger) transfer(ctx context.Context, tx LedgerTx, item Item, src Entry, quantity int64, from, to Place, status EntryStatus, actor string) error {
	if quantity == src.Quantity {
		if err := tx.DeleteEntry(ctx, src.ID); err != nil {
			return err
		}
	} else if err := tx.UpdateEntry(ctx, src.ID, src.Quantity-quantity, src.Status); err != nil {
		return err
	}
	if _, err := l.Upsert(ctx, tx, to.ID, item.ID, quantity, status); err != nil {
		return err
	}
	return tx.InsertHistory(ctx, History{
		Actor:      actor,
		ItemCode:   item.Code,
		Count:      quantity,
		OldAddress: from.FullAddress(),
		NewAddress: to.FullAddress(),
		PlaceIDs:   []int64{from.ID, to.ID},
	})
}

func (l *Ledger) sortEntries(entries []Entry) {
	var less func(a, b Entry) bool
	switch l.order {
	case WithdrawLIFO:
		less = func(a, b Entry) bool { return a.ID > b.ID }
	case WithdrawSmallestFirst:
		less = func(a, b Entry) bool {
			if a.Quantity != b.Quantity {
				return a.Quantity < b.Quantity
			}
			return a.ID < b.ID
		}
	case WithdrawLargestFirst:
		less = func(a, b Entry) bool {
			if a.Quantity != b.Quantity {
				return a.Quantity > b.Quantity
			}
			return a.ID < b.ID
		}
	default:
		less = func(a, b Entry) bool { return a.ID < b.ID }
	}
	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
}
