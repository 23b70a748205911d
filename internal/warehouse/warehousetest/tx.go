package warehousetest

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
)

// Tx implements warehouse.TxRepository on top of a Store.
type Tx struct {
	store *Store
}

var _ warehouse.TxRepository = (*Tx)(nil)

func (t *Tx) st() *state { return t.store.st }

// GetEntryForUpdate implements warehouse.LedgerTx.
func (t *Tx) GetEntryForUpdate(_ context.Context, placeID, itemID int64) (warehouse.Entry, error) {
	if e, ok := t.store.Entry(placeID, itemID); ok {
		return e, nil
	}
	return warehouse.Entry{}, warehouse.ErrNotFound
}

// ListEntriesForUpdate implements warehouse.LedgerTx.
func (t *Tx) ListEntriesForUpdate(_ context.Context, q warehouse.EntryQuery) ([]warehouse.Entry, error) {
	var out []warehouse.Entry
	for _, e := range t.store.Entries() {
		if e.ItemID != q.ItemID {
			continue
		}
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		if slices.Contains(q.ExcludePlaceIDs, e.PlaceID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// InsertEntry implements warehouse.LedgerTx.
func (t *Tx) InsertEntry(_ context.Context, entry warehouse.Entry) (warehouse.Entry, error) {
	if _, ok := t.store.Entry(entry.PlaceID, entry.ItemID); ok {
		return warehouse.Entry{}, warehouse.ErrDuplicateEntry
	}
	if entry.Quantity <= 0 {
		return warehouse.Entry{}, fmt.Errorf("quantity check violated: %d", entry.Quantity)
	}
	entry.ID = t.store.id()
	entry.CreatedAt = t.store.now()
	entry.UpdatedAt = entry.CreatedAt
	t.st().entries[entry.ID] = entry
	return t.store.decorateEntry(entry), nil
}

// UpdateEntry implements warehouse.LedgerTx.
func (t *Tx) UpdateEntry(_ context.Context, id, quantity int64, status warehouse.EntryStatus) error {
	e, ok := t.st().entries[id]
	if !ok {
		return warehouse.ErrNotFound
	}
	if quantity <= 0 {
		return fmt.Errorf("quantity check violated: %d", quantity)
	}
	e.Quantity = quantity
	e.Status = status
	e.UpdatedAt = t.store.now()
	t.st().entries[id] = e
	return nil
}

// DeleteEntry implements warehouse.LedgerTx.
func (t *Tx) DeleteEntry(_ context.Context, id int64) error {
	if _, ok := t.st().entries[id]; !ok {
		return warehouse.ErrNotFound
	}
	delete(t.st().entries, id)
	return nil
}

// InsertHistory implements warehouse.LedgerTx.
func (t *Tx) InsertHistory(_ context.Context, record warehouse.History) error {
	record.ID = t.store.id()
	if record.Date.IsZero() {
		record.Date = t.store.now()
	}
	t.st().history = append(t.st().history, record)
	return nil
}

// GetItem implements warehouse.TxRepository.
func (t *Tx) GetItem(_ context.Context, id int64) (warehouse.Item, error) {
	if it, ok := t.st().items[id]; ok {
		return it, nil
	}
	return warehouse.Item{}, warehouse.ErrNotFound
}

// GetItemByCodeForUpdate implements warehouse.TxRepository.
func (t *Tx) GetItemByCodeForUpdate(_ context.Context, code string) (warehouse.Item, error) {
	if it, ok := t.store.ItemByCode(code); ok {
		return it, nil
	}
	return warehouse.Item{}, warehouse.ErrNotFound
}

// InsertItem implements warehouse.TxRepository.
func (t *Tx) InsertItem(_ context.Context, item warehouse.Item) (warehouse.Item, error) {
	if _, ok := t.store.ItemByCode(item.Code); ok {
		return warehouse.Item{}, fmt.Errorf("item %s: duplicate", item.Code)
	}
	item.ID = t.store.id()
	item.CreatedAt = t.store.now()
	t.st().items[item.ID] = item
	return item, nil
}

// UpdateItem implements warehouse.TxRepository.
func (t *Tx) UpdateItem(_ context.Context, item warehouse.Item) error {
	if _, ok := t.st().items[item.ID]; !ok {
		return warehouse.ErrNotFound
	}
	t.st().items[item.ID] = item
	return nil
}

// DeleteItem implements warehouse.TxRepository.
func (t *Tx) DeleteItem(_ context.Context, id int64) error {
	if _, ok := t.st().items[id]; !ok {
		return warehouse.ErrNotFound
	}
	delete(t.st().items, id)
	return nil
}

// CountItemReferences implements warehouse.TxRepository.
func (t *Tx) CountItemReferences(_ context.Context, itemID int64) (int64, error) {
	item, ok := t.st().items[itemID]
	if !ok {
		return 0, warehouse.ErrNotFound
	}
	var refs int64
	for _, e := range t.st().entries {
		if e.ItemID == itemID {
			refs++
		}
	}
	for _, h := range t.st().history {
		if h.ItemCode == item.Code {
			refs++
		}
	}
	if t.store.ExtraItemRefs != nil {
		refs += t.store.ExtraItemRefs(itemID)
	}
	return refs, nil
}

// FindPlacesByTitle implements warehouse.TxRepository. Root level places come first.
func (t *Tx) FindPlacesByTitle(_ context.Context, titles []string) ([]warehouse.Place, error) {
	wanted := make(map[string]struct{}, len(titles))
	for _, title := range titles {
		wanted[warehouse.NormalizeTitle(title)] = struct{}{}
	}
	var out []warehouse.Place
	for _, p := range t.st().places {
		if _, ok := wanted[warehouse.NormalizeTitle(p.Title)]; ok {
			out = append(out, t.store.decorate(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].ZoneID == nil) != (out[j].ZoneID == nil) {
			return out[i].ZoneID == nil
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetPlace implements warehouse.TxRepository.
func (t *Tx) GetPlace(_ context.Context, id int64) (warehouse.Place, error) {
	if p, ok := t.st().places[id]; ok {
		return t.store.decorate(p), nil
	}
	return warehouse.Place{}, warehouse.ErrNotFound
}

// FindPlace implements warehouse.TxRepository.
func (t *Tx) FindPlace(_ context.Context, zoneID *int64, title string) (warehouse.Place, error) {
	for _, p := range t.st().places {
		if sameParent(p.ZoneID, zoneID) && p.Title == warehouse.NormalizeTitle(title) {
			return t.store.decorate(p), nil
		}
	}
	return warehouse.Place{}, warehouse.ErrNotFound
}

// InsertPlace implements warehouse.TxRepository.
func (t *Tx) InsertPlace(_ context.Context, place warehouse.Place) (warehouse.Place, error) {
	place.ID = t.store.id()
	t.st().places[place.ID] = place
	return t.store.decorate(place), nil
}

// DeletePlace implements warehouse.TxRepository.
func (t *Tx) DeletePlace(_ context.Context, id int64) error {
	if _, ok := t.st().places[id]; !ok {
		return warehouse.ErrNotFound
	}
	delete(t.st().places, id)
	return nil
}

// CountPlaceReferences implements warehouse.TxRepository.
func (t *Tx) CountPlaceReferences(_ context.Context, place warehouse.Place) (int64, error) {
	var refs int64
	for _, e := range t.st().entries {
		if e.PlaceID == place.ID {
			refs++
		}
	}
	addr := place.FullAddress()
	for _, h := range t.st().history {
		switch {
		case slices.Contains(h.PlaceIDs, place.ID):
			refs++
		case len(h.PlaceIDs) == 0 && (h.OldAddress == addr || h.NewAddress == addr):
			refs++
		}
	}
	return refs, nil
}

// FindStock implements warehouse.TxRepository.
func (t *Tx) FindStock(_ context.Context, title string) (warehouse.Stock, error) {
	for _, s := range t.st().stocks {
		if s.Title == warehouse.NormalizeTitle(title) {
			return s, nil
		}
	}
	return warehouse.Stock{}, warehouse.ErrNotFound
}

// InsertStock implements warehouse.TxRepository.
func (t *Tx) InsertStock(_ context.Context, stock warehouse.Stock) (warehouse.Stock, error) {
	stock.ID = t.store.id()
	t.st().stocks[stock.ID] = stock
	return stock, nil
}

// DeleteStock implements warehouse.TxRepository.
func (t *Tx) DeleteStock(_ context.Context, id int64) error {
	if _, ok := t.st().stocks[id]; !ok {
		return warehouse.ErrNotFound
	}
	for _, z := range t.st().zones {
		if z.StockID != nil && *z.StockID == id {
			return warehouse.ErrProtected
		}
	}
	delete(t.st().stocks, id)
	return nil
}

// FindZone implements warehouse.TxRepository.
func (t *Tx) FindZone(_ context.Context, stockID *int64, title string) (warehouse.Zone, error) {
	for _, z := range t.st().zones {
		if sameParent(z.StockID, stockID) && z.Title == warehouse.NormalizeTitle(title) {
			return z, nil
		}
	}
	return warehouse.Zone{}, warehouse.ErrNotFound
}

// InsertZone implements warehouse.TxRepository.
func (t *Tx) InsertZone(_ context.Context, zone warehouse.Zone) (warehouse.Zone, error) {
	zone.ID = t.store.id()
	t.st().zones[zone.ID] = zone
	return zone, nil
}

// DeleteZone implements warehouse.TxRepository.
func (t *Tx) DeleteZone(_ context.Context, id int64) error {
	if _, ok := t.st().zones[id]; !ok {
		return warehouse.ErrNotFound
	}
	for _, p := range t.st().places {
		if p.ZoneID != nil && *p.ZoneID == id {
			return warehouse.ErrProtected
		}
	}
	delete(t.st().zones, id)
	return nil
}

// SumQuantity implements warehouse.TxRepository.
func (t *Tx) SumQuantity(ctx context.Context, q warehouse.EntryQuery) (int64, error) {
	entries, err := t.ListEntriesForUpdate(ctx, q)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Quantity
	}
	return total, nil
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
