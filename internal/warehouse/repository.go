package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AlekseyRodimkin/warehouse/internal/platform/db"
)

// Repository persists warehouse data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("warehouse repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction. Other packages use it to run
// ledger work inside their own transactions.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

const placeColumns = `p.id, p.zone_id, p.title, COALESCE(p.description, ''), COALESCE(z.title, ''), COALESCE(s.title, '')`

const placeJoins = `places p
LEFT JOIN zones z ON z.id = p.zone_id
LEFT JOIN stocks s ON s.id = z.stock_id`

const entryColumns = `pi.id, pi.place_id, pi.item_id, i.item_code, pi.quantity, pi.status, pi.created_at, pi.updated_at, ` + placeColumns

const entryJoins = `place_items pi
JOIN items i ON i.id = pi.item_id
JOIN places p ON p.id = pi.place_id
LEFT JOIN zones z ON z.id = p.zone_id
LEFT JOIN stocks s ON s.id = z.stock_id`

func scanPlace(row pgx.Row) (Place, error) {
	var p Place
	err := row.Scan(&p.ID, &p.ZoneID, &p.Title, &p.Description, &p.ZoneTitle, &p.StockTitle)
	return p, err
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.PlaceID, &e.ItemID, &e.ItemCode, &e.Quantity, &e.Status, &e.CreatedAt, &e.UpdatedAt,
		&e.Place.ID, &e.Place.ZoneID, &e.Place.Title, &e.Place.Description, &e.Place.ZoneTitle, &e.Place.StockTitle)
	return e, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, placeID, itemID int64) (Entry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+`
FROM `+entryJoins+`
WHERE pi.place_id = $1 AND pi.item_id = $2
FOR UPDATE OF pi`, placeID, itemID)
	e, err := scanEntry(row)
	return e, notFound(err)
}

func (r *txRepository) ListEntriesForUpdate(ctx context.Context, q EntryQuery) ([]Entry, error) {
	excluded := q.ExcludePlaceIDs
	if excluded == nil {
		excluded = []int64{}
	}
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+`
FROM `+entryJoins+`
WHERE pi.item_id = $1 AND ($2 = '' OR pi.status = $2) AND NOT (pi.place_id = ANY($3))
ORDER BY pi.id
FOR UPDATE OF pi`, q.ItemID, string(q.Status), excluded)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) { return scanEntry(row) })
}

func (r *txRepository) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO place_items (place_id, item_id, quantity, status)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`, entry.PlaceID, entry.ItemID, entry.Quantity, string(entry.Status)).
		Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Entry{}, fmt.Errorf("%w: place %d item %d", ErrDuplicateEntry, entry.PlaceID, entry.ItemID)
	}
	return entry, err
}

func (r *txRepository) UpdateEntry(ctx context.Context, id, quantity int64, status EntryStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE place_items SET quantity = $2, status = $3, updated_at = NOW() WHERE id = $1`, id, quantity, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) DeleteEntry(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM place_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertHistory(ctx context.Context, h History) error {
	placeIDs := h.PlaceIDs
	if placeIDs == nil {
		placeIDs = []int64{}
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO history (actor, item_code, count, old_address, new_address, date, place_ids)
VALUES (NULLIF($1, ''), $2, $3, $4, $5, COALESCE($6, NOW()), $7)`, h.Actor, h.ItemCode, h.Count, h.OldAddress, h.NewAddress, nullTime(h.Date), placeIDs)
	return err
}

func (r *txRepository) GetItem(ctx context.Context, id int64) (Item, error) {
	var it Item
	err := r.tx.QueryRow(ctx, `SELECT id, item_code, weight, description, created_at FROM items WHERE id = $1`, id).
		Scan(&it.ID, &it.Code, &it.Weight, &it.Description, &it.CreatedAt)
	return it, notFound(err)
}

func (r *txRepository) GetItemByCodeForUpdate(ctx context.Context, code string) (Item, error) {
	var it Item
	err := r.tx.QueryRow(ctx, `SELECT id, item_code, weight, description, created_at FROM items WHERE item_code = $1 FOR UPDATE`, code).
		Scan(&it.ID, &it.Code, &it.Weight, &it.Description, &it.CreatedAt)
	return it, notFound(err)
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (Item, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO items (item_code, weight, description)
VALUES ($1, $2, $3)
ON CONFLICT (item_code) DO UPDATE SET item_code = EXCLUDED.item_code
RETURNING id, item_code, weight, description, created_at`, item.Code, item.Weight, item.Description).
		Scan(&item.ID, &item.Code, &item.Weight, &item.Description, &item.CreatedAt)
	return item, err
}

func (r *txRepository) UpdateItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `UPDATE items SET weight = $2, description = $3 WHERE id = $1`, item.ID, item.Weight, item.Description)
	return err
}

func (r *txRepository) DeleteItem(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: item %d", ErrProtected, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) CountItemReferences(ctx context.Context, itemID int64) (int64, error) {
	var refs int64
	err := r.tx.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM place_items WHERE item_id = $1)
+ (SELECT COUNT(*) FROM wave_items WHERE item_id = $1)
+ (SELECT COUNT(*) FROM history h JOIN items i ON i.item_code = h.item_code WHERE i.id = $1)`, itemID).Scan(&refs)
	return refs, err
}

func (r *txRepository) FindPlacesByTitle(ctx context.Context, titles []string) ([]Place, error) {
	normalized := make([]string, len(titles))
	for i, t := range titles {
		normalized[i] = NormalizeTitle(t)
	}
	rows, err := r.tx.Query(ctx, `SELECT `+placeColumns+`
FROM `+placeJoins+`
WHERE UPPER(p.title) = ANY($1)
ORDER BY p.zone_id NULLS FIRST, p.id`, normalized)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Place, error) { return scanPlace(row) })
}

func (r *txRepository) GetPlace(ctx context.Context, id int64) (Place, error) {
	p, err := scanPlace(r.tx.QueryRow(ctx, `SELECT `+placeColumns+` FROM `+placeJoins+` WHERE p.id = $1`, id))
	return p, notFound(err)
}

func (r *txRepository) FindPlace(ctx context.Context, zoneID *int64, title string) (Place, error) {
	p, err := scanPlace(r.tx.QueryRow(ctx, `SELECT `+placeColumns+` FROM `+placeJoins+`
WHERE p.zone_id IS NOT DISTINCT FROM $1 AND UPPER(p.title) = $2`, zoneID, NormalizeTitle(title)))
	return p, notFound(err)
}

func (r *txRepository) InsertPlace(ctx context.Context, place Place) (Place, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO places (zone_id, title, description) VALUES ($1, $2, NULLIF($3, '')) RETURNING id`,
		place.ZoneID, place.Title, place.Description).Scan(&id)
	if err != nil {
		return Place{}, err
	}
	return r.GetPlace(ctx, id)
}

func (r *txRepository) DeletePlace(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM places WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: place %d", ErrProtected, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) CountPlaceReferences(ctx context.Context, place Place) (int64, error) {
	var refs int64
	addr := place.FullAddress()
	err := r.tx.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM place_items WHERE place_id = $1)
+ (SELECT COUNT(*) FROM history
   WHERE $1 = ANY(place_ids)
      OR (cardinality(place_ids) = 0 AND (old_address = $2 OR new_address = $2)))`, place.ID, addr).Scan(&refs)
	return refs, err
}

func (r *txRepository) FindStock(ctx context.Context, title string) (Stock, error) {
	var s Stock
	err := r.tx.QueryRow(ctx, `SELECT id, title, COALESCE(address, ''), COALESCE(description, '') FROM stocks WHERE UPPER(title) = $1`, NormalizeTitle(title)).
		Scan(&s.ID, &s.Title, &s.Address, &s.Description)
	return s, notFound(err)
}

func (r *txRepository) InsertStock(ctx context.Context, stock Stock) (Stock, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stocks (title, address, description) VALUES ($1, NULLIF($2, ''), NULLIF($3, '')) RETURNING id`,
		stock.Title, stock.Address, stock.Description).Scan(&stock.ID)
	return stock, err
}

func (r *txRepository) DeleteStock(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM stocks WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: stock %d", ErrProtected, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) FindZone(ctx context.Context, stockID *int64, title string) (Zone, error) {
	var z Zone
	err := r.tx.QueryRow(ctx, `SELECT id, stock_id, title, COALESCE(description, '') FROM zones
WHERE stock_id IS NOT DISTINCT FROM $1 AND UPPER(title) = $2`, stockID, NormalizeTitle(title)).
		Scan(&z.ID, &z.StockID, &z.Title, &z.Description)
	return z, notFound(err)
}

func (r *txRepository) InsertZone(ctx context.Context, zone Zone) (Zone, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO zones (stock_id, title, description) VALUES ($1, $2, NULLIF($3, '')) RETURNING id`,
		zone.StockID, zone.Title, zone.Description).Scan(&zone.ID)
	return zone, err
}

func (r *txRepository) DeleteZone(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM zones WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: zone %d", ErrProtected, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SumQuantity(ctx context.Context, q EntryQuery) (int64, error) {
	excluded := q.ExcludePlaceIDs
	if excluded == nil {
		excluded = []int64{}
	}
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM place_items
WHERE item_id = $1 AND ($2 = '' OR status = $2) AND NOT (place_id = ANY($3))`, q.ItemID, string(q.Status), excluded).Scan(&total)
	return total, err
}

// ListStructure returns all stocks, zones and places.
func (r *Repository) ListStructure(ctx context.Context) (Structure, error) {
	var out Structure
	rows, err := r.pool.Query(ctx, `SELECT id, title, COALESCE(address, ''), COALESCE(description, '') FROM stocks ORDER BY title`)
	if err != nil {
		return out, err
	}
	out.Stocks, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Stock, error) {
		var s Stock
		err := row.Scan(&s.ID, &s.Title, &s.Address, &s.Description)
		return s, err
	})
	if err != nil {
		return out, err
	}
	rows, err = r.pool.Query(ctx, `SELECT id, stock_id, title, COALESCE(description, '') FROM zones ORDER BY title`)
	if err != nil {
		return out, err
	}
	out.Zones, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Zone, error) {
		var z Zone
		err := row.Scan(&z.ID, &z.StockID, &z.Title, &z.Description)
		return z, err
	})
	if err != nil {
		return out, err
	}
	rows, err = r.pool.Query(ctx, `SELECT `+placeColumns+` FROM `+placeJoins+` ORDER BY s.title NULLS FIRST, z.title NULLS FIRST, p.title`)
	if err != nil {
		return out, err
	}
	out.Places, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Place, error) { return scanPlace(row) })
	return out, err
}

// SearchLots lists ledger entries matching filter.
func (r *Repository) SearchLots(ctx context.Context, f LotFilter) ([]Entry, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	where = append(where, "TRUE")
	if f.PlaceID != nil {
		add("pi.place_id = $%d", *f.PlaceID)
	}
	if f.ZoneID != nil {
		add("p.zone_id = $%d", *f.ZoneID)
	}
	if f.StockID != nil {
		add("z.stock_id = $%d", *f.StockID)
	}
	if f.ItemCode != "" {
		add("i.item_code LIKE '%%' || $%d || '%%'", f.ItemCode)
	}
	if f.Status != "" {
		add("pi.status = $%d", string(f.Status))
	}
	if f.MinQty != nil {
		add("pi.quantity >= $%d", *f.MinQty)
	}
	if f.MaxQty != nil {
		add("pi.quantity <= $%d", *f.MaxQty)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+entryJoins+` WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM `+entryJoins+` WHERE `+cond+
		fmt.Sprintf(" ORDER BY i.item_code, pi.id LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) { return scanEntry(row) })
	return entries, total, err
}

// SearchItems lists items whose code contains the filter fragment.
func (r *Repository) SearchItems(ctx context.Context, f ItemFilter) ([]Item, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items WHERE $1 = '' OR item_code LIKE '%' || $1 || '%'`, f.Code).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_code, weight, description, created_at FROM items
WHERE $1 = '' OR item_code LIKE '%' || $1 || '%'
ORDER BY item_code LIMIT $2 OFFSET $3`, f.Code, f.PerPage, (f.Page-1)*f.PerPage)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.Code, &it.Weight, &it.Description, &it.CreatedAt)
		return it, err
	})
	return items, total, err
}

// SearchHistory lists history rows matching filter, newest first.
func (r *Repository) SearchHistory(ctx context.Context, f HistoryFilter) ([]History, int, error) {
	const cond = `($1 = '' OR item_code LIKE '%' || $1 || '%')
AND ($2 = '' OR UPPER(old_address) LIKE '%' || UPPER($2) || '%' OR UPPER(new_address) LIKE '%' || UPPER($2) || '%')
AND ($3 = '' OR LOWER(actor) = LOWER($3))
AND date >= COALESCE($4, '-infinity'::timestamptz)
AND date <= COALESCE($5, 'infinity'::timestamptz)`
	args := []any{f.ItemCode, f.Address, f.Actor, nullTime(f.From), nullTime(f.To)}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM history WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, COALESCE(actor, ''), item_code, count, old_address, new_address, date
FROM history WHERE `+cond+` ORDER BY date DESC, id DESC LIMIT $6 OFFSET $7`, append(args, f.PerPage, (f.Page-1)*f.PerPage)...)
	if err != nil {
		return nil, 0, err
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (History, error) {
		var h History
		err := row.Scan(&h.ID, &h.Actor, &h.ItemCode, &h.Count, &h.OldAddress, &h.NewAddress, &h.Date)
		return h, err
	})
	return records, total, err
}

// ItemEntries lists every ledger entry of an item.
func (r *Repository) ItemEntries(ctx context.Context, code string) ([]Entry, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE item_code = $1)`, code).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("item %s: %w", code, ErrNotFound)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM `+entryJoins+`
WHERE i.item_code = $1 ORDER BY pi.id`, code)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) { return scanEntry(row) })
}
