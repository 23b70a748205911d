// Package wavetest provides an in-memory wave repository sharing state with
// warehousetest so transitions can be checked against the ledger.
package wavetest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/AlekseyRodimkin/warehouse/internal/warehouse/warehousetest"
	"github.com/AlekseyRodimkin/warehouse/internal/wave"
)

type state struct {
	waves    map[int64]wave.Wave
	lines    map[int64][]wave.Item
	counters map[string]int
	nextID   int64
}

func (s *state) clone() *state {
	lines := make(map[int64][]wave.Item, len(s.lines))
	for id, l := range s.lines {
		lines[id] = slices.Clone(l)
	}
	return &state{waves: maps.Clone(s.waves), lines: lines, counters: maps.Clone(s.counters), nextID: s.nextID}
}

// Store implements wave.RepositoryPort in memory. It is not safe for concurrent use.
type Store struct {
	*warehousetest.Store
	st *state

	// FailStatusUpdate, when set, is returned by UpdateStatus. FailOnStatus
	// narrows it to updates towards that status.
	FailStatusUpdate error
	FailOnStatus     wave.Status
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{
		Store: warehousetest.NewStore(),
		st:    &state{waves: map[int64]wave.Wave{}, lines: map[int64][]wave.Item{}, counters: map[string]int{}},
	}
	s.Store.ExtraItemRefs = func(itemID int64) int64 {
		var refs int64
		for _, lines := range s.st.lines {
			for _, l := range lines {
				if l.ItemID == itemID {
					refs++
				}
			}
		}
		return refs
	}
	return s
}

// WithTx runs fn against wave and ledger state, restoring both on error.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, wave.TxRepository) error) error {
	restoreLedger := s.Store.Checkpoint()
	snap := s.st.clone()
	if err := fn(ctx, &Tx{Tx: s.Store.Tx(), store: s}); err != nil {
		restoreLedger()
		s.st = snap
		return err
	}
	return nil
}

// Wave returns the stored wave without lines.
func (s *Store) Wave(id int64) (wave.Wave, bool) {
	w, ok := s.st.waves[id]
	return w, ok
}

// Waves returns every wave ordered by id.
func (s *Store) Waves() []wave.Wave {
	out := slices.Collect(maps.Values(s.st.waves))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get implements wave.RepositoryPort.
func (s *Store) Get(ctx context.Context, id int64) (wave.Wave, error) {
	w, ok := s.st.waves[id]
	if !ok {
		return wave.Wave{}, fmt.Errorf("wave %d: %w", id, wave.ErrNotFound)
	}
	items, err := (&Tx{Tx: s.Store.Tx(), store: s}).ListItems(ctx, id)
	if err != nil {
		return wave.Wave{}, err
	}
	w.Items = items
	return w, nil
}

// Search implements wave.RepositoryPort.
func (s *Store) Search(_ context.Context, f wave.Filter) ([]wave.Wave, int, error) {
	var rows []wave.Wave
	for _, w := range s.st.waves {
		switch {
		case f.Kind != "" && w.Kind != f.Kind,
			f.StockID != nil && w.StockID != *f.StockID,
			f.Status != "" && w.Status != f.Status,
			f.Number != "" && !strings.Contains(w.Number, strings.ToUpper(f.Number)),
			f.Party != "" && !strings.Contains(w.Party, f.Party),
			!f.PlannedFrom.IsZero() && w.PlannedDate.Before(f.PlannedFrom),
			!f.ActualTo.IsZero() && (w.ActualDate == nil || w.ActualDate.After(f.ActualTo)):
			continue
		}
		rows = append(rows, w)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Number > rows[j].Number })
	total := len(rows)
	start := min((f.Page-1)*f.PerPage, total)
	end := min(start+f.PerPage, total)
	return rows[start:end], total, nil
}

// Tx implements wave.TxRepository.
type Tx struct {
	*warehousetest.Tx
	store *Store
}

var (
	_ wave.RepositoryPort = (*Store)(nil)
	_ wave.TxRepository   = (*Tx)(nil)
)

// NextNumber implements wave.TxRepository.
func (t *Tx) NextNumber(_ context.Context, kind wave.Kind, year int) (int, error) {
	key := fmt.Sprintf("%s/%d", kind, year)
	t.store.st.counters[key]++
	return t.store.st.counters[key], nil
}

// InsertWave implements wave.TxRepository.
func (t *Tx) InsertWave(_ context.Context, w wave.Wave) (wave.Wave, error) {
	stock, ok := t.store.Store.Stock(w.StockID)
	if !ok {
		return wave.Wave{}, fmt.Errorf("%w: stock %d not found", wave.ErrInvalidInput, w.StockID)
	}
	for _, existing := range t.store.st.waves {
		if existing.Number == w.Number {
			return wave.Wave{}, fmt.Errorf("%w: number %s already used", wave.ErrInvalidInput, w.Number)
		}
	}
	t.store.st.nextID++
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	w.ID = t.store.st.nextID
	w.StockTitle = stock.Title
	w.CreatedAt, w.UpdatedAt = now, now
	w.Items = nil
	t.store.st.waves[w.ID] = w
	return w, nil
}

// InsertItems implements wave.TxRepository.
func (t *Tx) InsertItems(_ context.Context, waveID int64, items []wave.Item) error {
	lines := t.store.st.lines[waveID]
	for _, it := range items {
		for _, l := range lines {
			if l.ItemID == it.ItemID {
				return fmt.Errorf("%w: duplicate wave line", wave.ErrInvalidInput)
			}
		}
		t.store.st.nextID++
		lines = append(lines, wave.Item{ID: t.store.st.nextID, WaveID: waveID, ItemID: it.ItemID, Quantity: it.Quantity})
	}
	t.store.st.lines[waveID] = lines
	return nil
}

// GetWaveForUpdate implements wave.TxRepository.
func (t *Tx) GetWaveForUpdate(_ context.Context, id int64) (wave.Wave, error) {
	w, ok := t.store.st.waves[id]
	if !ok {
		return wave.Wave{}, fmt.Errorf("wave %d: %w", id, wave.ErrNotFound)
	}
	return w, nil
}

// ListItems implements wave.TxRepository.
func (t *Tx) ListItems(ctx context.Context, waveID int64) ([]wave.Item, error) {
	lines := t.store.st.lines[waveID]
	out := make([]wave.Item, 0, len(lines))
	for _, l := range lines {
		item, err := t.GetItem(ctx, l.ItemID)
		if err != nil {
			return nil, err
		}
		l.ItemCode, l.Weight, l.Description = item.Code, item.Weight, item.Description
		out = append(out, l)
	}
	return out, nil
}

// UpdateStatus implements wave.TxRepository.
func (t *Tx) UpdateStatus(_ context.Context, id int64, status wave.Status, actualDate *time.Time) error {
	if t.store.FailStatusUpdate != nil && (t.store.FailOnStatus == "" || t.store.FailOnStatus == status) {
		return t.store.FailStatusUpdate
	}
	w, ok := t.store.st.waves[id]
	if !ok {
		return fmt.Errorf("wave %d: %w", id, wave.ErrNotFound)
	}
	w.Status, w.ActualDate = status, actualDate
	t.store.st.waves[id] = w
	return nil
}

// DeleteWave implements wave.TxRepository.
func (t *Tx) DeleteWave(_ context.Context, id int64) error {
	if _, ok := t.store.st.waves[id]; !ok {
		return fmt.Errorf("wave %d: %w", id, wave.ErrNotFound)
	}
	delete(t.store.st.waves, id)
	delete(t.store.st.lines, id)
	return nil
}
