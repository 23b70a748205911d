// Package warehousetest provides an in-memory warehouse repository for tests.
package warehousetest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
)

type state struct {
	items   map[int64]warehouse.Item
	stocks  map[int64]warehouse.Stock
	zones   map[int64]warehouse.Zone
	places  map[int64]warehouse.Place
	entries map[int64]warehouse.Entry
	history []warehouse.History
	nextID  int64
}

func (s *state) clone() *state {
	return &state{
		items:   cloneMap(s.items),
		stocks:  cloneMap(s.stocks),
		zones:   cloneMap(s.zones),
		places:  cloneMap(s.places),
		entries: cloneMap(s.entries),
		history: slices.Clone(s.history),
		nextID:  s.nextID,
	}
}

func cloneMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is an in-memory RepositoryPort. Transactions snapshot the whole state
// and restore it when the callback fails. It is not safe for concurrent use.
type Store struct {
	st  *state
	now func() time.Time

	// ExtraItemRefs lets other fakes report references to items, such as wave lines.
	ExtraItemRefs func(itemID int64) int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		st: &state{
			items:   map[int64]warehouse.Item{},
			stocks:  map[int64]warehouse.Stock{},
			zones:   map[int64]warehouse.Zone{},
			places:  map[int64]warehouse.Place{},
			entries: map[int64]warehouse.Entry{},
		},
		now: func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) },
	}
}

// Checkpoint snapshots the state and returns a function restoring it.
func (s *Store) Checkpoint() func() {
	snap := s.st.clone()
	return func() { s.st = snap }
}

// Tx returns the transactional view of the store.
func (s *Store) Tx() *Tx {
	return &Tx{store: s}
}

// WithTx runs fn and rolls every change back when it returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, warehouse.TxRepository) error) error {
	restore := s.Checkpoint()
	if err := fn(ctx, s.Tx()); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *Store) id() int64 {
	s.st.nextID++
	return s.st.nextID
}

// SeedReserved creates the staging places with the given titles at root level.
func (s *Store) SeedReserved(titles warehouse.ReservedTitles) warehouse.Reserved {
	return warehouse.Reserved{
		Inbound:  s.AddPlace(nil, titles.Inbound),
		Outbound: s.AddPlace(nil, titles.Outbound),
		New:      s.AddPlace(nil, titles.New),
	}
}

// AddStock inserts a stock.
func (s *Store) AddStock(title string) warehouse.Stock {
	stock := warehouse.Stock{ID: s.id(), Title: warehouse.NormalizeTitle(title)}
	s.st.stocks[stock.ID] = stock
	return stock
}

// AddZone inserts a zone, optionally under a stock.
func (s *Store) AddZone(stock *warehouse.Stock, title string) warehouse.Zone {
	zone := warehouse.Zone{ID: s.id(), Title: warehouse.NormalizeTitle(title)}
	if stock != nil {
		id := stock.ID
		zone.StockID = &id
	}
	s.st.zones[zone.ID] = zone
	return zone
}

// AddPlace inserts a place, optionally under a zone.
func (s *Store) AddPlace(zone *warehouse.Zone, title string) warehouse.Place {
	place := warehouse.Place{ID: s.id(), Title: warehouse.NormalizeTitle(title)}
	if zone != nil {
		id := zone.ID
		place.ZoneID = &id
	}
	s.st.places[place.ID] = place
	return s.decorate(place)
}

// AddItem inserts an item.
func (s *Store) AddItem(code string, weight int64, description string) warehouse.Item {
	item := warehouse.Item{ID: s.id(), Code: warehouse.NormalizeCode(code), Description: description, CreatedAt: s.now()}
	if weight > 0 {
		item.Weight = &weight
	}
	s.st.items[item.ID] = item
	return item
}

// Put inserts a ledger entry directly.
func (s *Store) Put(place warehouse.Place, item warehouse.Item, quantity int64, status warehouse.EntryStatus) warehouse.Entry {
	entry := warehouse.Entry{ID: s.id(), PlaceID: place.ID, ItemID: item.ID, Quantity: quantity, Status: status, CreatedAt: s.now(), UpdatedAt: s.now()}
	s.st.entries[entry.ID] = entry
	return s.decorateEntry(entry)
}

// Entry returns the ledger entry for place and item.
func (s *Store) Entry(placeID, itemID int64) (warehouse.Entry, bool) {
	for _, e := range s.st.entries {
		if e.PlaceID == placeID && e.ItemID == itemID {
			return s.decorateEntry(e), true
		}
	}
	return warehouse.Entry{}, false
}

// Quantity returns the quantity held for place and item, zero when absent.
func (s *Store) Quantity(placeID, itemID int64) int64 {
	e, _ := s.Entry(placeID, itemID)
	return e.Quantity
}

// Entries returns every ledger entry ordered by id.
func (s *Store) Entries() []warehouse.Entry {
	out := make([]warehouse.Entry, 0, len(s.st.entries))
	for _, e := range s.st.entries {
		out = append(out, s.decorateEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// History returns the history rows in insertion order.
func (s *Store) History() []warehouse.History {
	return slices.Clone(s.st.history)
}

// Items returns every item ordered by id.
func (s *Store) Items() []warehouse.Item {
	out := make([]warehouse.Item, 0, len(s.st.items))
	for _, it := range s.st.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stock returns the stock with id.
func (s *Store) Stock(id int64) (warehouse.Stock, bool) {
	stock, ok := s.st.stocks[id]
	return stock, ok
}

// ItemByCode looks an item up by its normalised code.
func (s *Store) ItemByCode(code string) (warehouse.Item, bool) {
	code = warehouse.NormalizeCode(code)
	for _, it := range s.st.items {
		if it.Code == code {
			return it, true
		}
	}
	return warehouse.Item{}, false
}

func (s *Store) decorate(p warehouse.Place) warehouse.Place {
	p.ZoneTitle, p.StockTitle = "", ""
	if p.ZoneID == nil {
		return p
	}
	zone, ok := s.st.zones[*p.ZoneID]
	if !ok {
		return p
	}
	p.ZoneTitle = zone.Title
	if zone.StockID != nil {
		if stock, ok := s.st.stocks[*zone.StockID]; ok {
			p.StockTitle = stock.Title
		}
	}
	return p
}

func (s *Store) decorateEntry(e warehouse.Entry) warehouse.Entry {
	e.Place = s.decorate(s.st.places[e.PlaceID])
	e.ItemCode = s.st.items[e.ItemID].Code
	return e
}

// ListStructure implements warehouse.RepositoryPort.
func (s *Store) ListStructure(context.Context) (warehouse.Structure, error) {
	var out warehouse.Structure
	for _, st := range s.st.stocks {
		out.Stocks = append(out.Stocks, st)
	}
	for _, z := range s.st.zones {
		out.Zones = append(out.Zones, z)
	}
	for _, p := range s.st.places {
		out.Places = append(out.Places, s.decorate(p))
	}
	sort.Slice(out.Stocks, func(i, j int) bool { return out.Stocks[i].ID < out.Stocks[j].ID })
	sort.Slice(out.Zones, func(i, j int) bool { return out.Zones[i].ID < out.Zones[j].ID })
	sort.Slice(out.Places, func(i, j int) bool { return out.Places[i].ID < out.Places[j].ID })
	return out, nil
}

// SearchLots implements warehouse.RepositoryPort.
func (s *Store) SearchLots(_ context.Context, f warehouse.LotFilter) ([]warehouse.Entry, int, error) {
	var matched []warehouse.Entry
	for _, e := range s.Entries() {
		zoneID, stockID := int64(0), int64(0)
		if e.Place.ZoneID != nil {
			zoneID = *e.Place.ZoneID
			if z := s.st.zones[zoneID]; z.StockID != nil {
				stockID = *z.StockID
			}
		}
		switch {
		case f.PlaceID != nil && e.PlaceID != *f.PlaceID,
			f.ZoneID != nil && zoneID != *f.ZoneID,
			f.StockID != nil && stockID != *f.StockID,
			f.ItemCode != "" && !strings.Contains(e.ItemCode, f.ItemCode),
			f.Status != "" && e.Status != f.Status,
			f.MinQty != nil && e.Quantity < *f.MinQty,
			f.MaxQty != nil && e.Quantity > *f.MaxQty:
			continue
		}
		matched = append(matched, e)
	}
	return paginate(matched, f.Page, f.PerPage), len(matched), nil
}

// SearchItems implements warehouse.RepositoryPort.
func (s *Store) SearchItems(_ context.Context, f warehouse.ItemFilter) ([]warehouse.Item, int, error) {
	var matched []warehouse.Item
	for _, it := range s.Items() {
		if f.Code != "" && !strings.Contains(it.Code, f.Code) {
			continue
		}
		matched = append(matched, it)
	}
	return paginate(matched, f.Page, f.PerPage), len(matched), nil
}

// SearchHistory implements warehouse.RepositoryPort.
func (s *Store) SearchHistory(_ context.Context, f warehouse.HistoryFilter) ([]warehouse.History, int, error) {
	var matched []warehouse.History
	for i := len(s.st.history) - 1; i >= 0; i-- {
		h := s.st.history[i]
		switch {
		case f.ItemCode != "" && !strings.Contains(h.ItemCode, f.ItemCode),
			f.Address != "" && !strings.Contains(strings.ToUpper(h.OldAddress+" "+h.NewAddress), strings.ToUpper(f.Address)),
			f.Actor != "" && !strings.EqualFold(h.Actor, f.Actor),
			!f.From.IsZero() && h.Date.Before(f.From),
			!f.To.IsZero() && h.Date.After(f.To):
			continue
		}
		matched = append(matched, h)
	}
	return paginate(matched, f.Page, f.PerPage), len(matched), nil
}

// ItemEntries implements warehouse.RepositoryPort.
func (s *Store) ItemEntries(_ context.Context, code string) ([]warehouse.Entry, error) {
	item, ok := s.ItemByCode(code)
	if !ok {
		return nil, fmt.Errorf("item %s: %w", code, warehouse.ErrNotFound)
	}
	var out []warehouse.Entry
	for _, e := range s.Entries() {
		if e.ItemID == item.ID {
			out = append(out, e)
		}
	}
	return out, nil
}

func paginate[T any](rows []T, page, perPage int) []T {
	if perPage <= 0 {
		return rows
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(rows) {
		return nil
	}
	end := min(start+perPage, len(rows))
	return rows[start:end]
}

var _ warehouse.RepositoryPort = (*Store)(nil)
