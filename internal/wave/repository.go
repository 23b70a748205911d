package wave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AlekseyRodimkin/warehouse/internal/platform/db"
	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
)

// Repository persists waves in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction shared
// with the warehouse ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("wave repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: warehouse.NewTxRepository(tx), tx: tx})
	})
}

type txRepository struct {
	warehouse.TxRepository
	tx pgx.Tx
}

const waveColumns = `w.id, w.kind, w.number, w.stock_id, s.title, w.status, w.planned_date, w.actual_date,
w.party, COALESCE(w.description, ''), COALESCE(w.created_by, ''), w.created_at, w.updated_at`

const waveJoins = `waves w JOIN stocks s ON s.id = w.stock_id`

func scanWave(row pgx.Row) (Wave, error) {
	var w Wave
	err := row.Scan(&w.ID, &w.Kind, &w.Number, &w.StockID, &w.StockTitle, &w.Status, &w.PlannedDate, &w.ActualDate,
		&w.Party, &w.Description, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// NextNumber increments the (kind, year) counter and returns the new value.
// The row lock taken by the upsert serialises concurrent creators.
func (r *txRepository) NextNumber(ctx context.Context, kind Kind, year int) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `INSERT INTO wave_counters (kind, year, value) VALUES ($1, $2, 1)
ON CONFLICT (kind, year) DO UPDATE SET value = wave_counters.value + 1
RETURNING value`, string(kind), year).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertWave(ctx context.Context, w Wave) (Wave, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO waves (kind, number, stock_id, status, planned_date, actual_date, party, description, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''))
RETURNING id`, string(w.Kind), w.Number, w.StockID, string(w.Status), w.PlannedDate, w.ActualDate, w.Party, w.Description, w.CreatedBy).Scan(&id)
	switch {
	case db.IsForeignKeyViolation(err):
		return Wave{}, fmt.Errorf("%w: stock %d not found", ErrInvalidInput, w.StockID)
	case db.IsUniqueViolation(err):
		return Wave{}, fmt.Errorf("%w: number %s already used", ErrInvalidInput, w.Number)
	case err != nil:
		return Wave{}, err
	}
	return scanWave(r.tx.QueryRow(ctx, `SELECT `+waveColumns+` FROM `+waveJoins+` WHERE w.id = $1`, id))
}

func (r *txRepository) InsertItems(ctx context.Context, waveID int64, items []Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO wave_items (wave_id, item_id, quantity) VALUES ($1, $2, $3)`, waveID, it.ItemID, it.Quantity)
	}
	err := r.tx.SendBatch(ctx, batch).Close()
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: duplicate wave line", ErrInvalidInput)
	}
	return err
}

func (r *txRepository) GetWaveForUpdate(ctx context.Context, id int64) (Wave, error) {
	w, err := scanWave(r.tx.QueryRow(ctx, `SELECT `+waveColumns+` FROM `+waveJoins+` WHERE w.id = $1 FOR UPDATE OF w`, id))
	if err != nil {
		return Wave{}, fmt.Errorf("wave %d: %w", id, notFound(err))
	}
	return w, nil
}

func (r *txRepository) ListItems(ctx context.Context, waveID int64) ([]Item, error) {
	return listItems(ctx, r.tx, waveID)
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, actualDate *time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE waves SET status = $2, actual_date = $3, updated_at = NOW() WHERE id = $1`, id, string(status), actualDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wave %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *txRepository) DeleteWave(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM waves WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wave %d: %w", id, ErrNotFound)
	}
	return nil
}

func listItems(ctx context.Context, q db.Querier, waveID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT wi.id, wi.wave_id, wi.item_id, i.item_code, wi.quantity, i.weight, i.description
FROM wave_items wi JOIN items i ON i.id = wi.item_id
WHERE wi.wave_id = $1 ORDER BY wi.id`, waveID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.WaveID, &it.ItemID, &it.ItemCode, &it.Quantity, &it.Weight, &it.Description)
		return it, err
	})
}

// Get loads a wave and its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Wave, error) {
	w, err := scanWave(r.pool.QueryRow(ctx, `SELECT `+waveColumns+` FROM `+waveJoins+` WHERE w.id = $1`, id))
	if err != nil {
		return Wave{}, fmt.Errorf("wave %d: %w", id, notFound(err))
	}
	w.Items, err = listItems(ctx, r.pool, id)
	if err != nil {
		return Wave{}, err
	}
	return w, nil
}

// Search lists waves matching filter ordered by number descending.
func (r *Repository) Search(ctx context.Context, f Filter) ([]Wave, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	where = append(where, "TRUE")
	if f.Kind != "" {
		add("w.kind = $%d", string(f.Kind))
	}
	if f.StockID != nil {
		add("w.stock_id = $%d", *f.StockID)
	}
	if f.Status != "" {
		add("w.status = $%d", string(f.Status))
	}
	if f.Number != "" {
		add("UPPER(w.number) LIKE '%%' || UPPER($%d) || '%%'", f.Number)
	}
	if f.Party != "" {
		add("w.party LIKE '%%' || $%d || '%%'", f.Party)
	}
	if !f.PlannedFrom.IsZero() {
		add("w.planned_date >= $%d", f.PlannedFrom)
	}
	if !f.ActualTo.IsZero() {
		add("w.actual_date <= $%d", f.ActualTo)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+waveJoins+` WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)
	rows, err := r.pool.Query(ctx, `SELECT `+waveColumns+` FROM `+waveJoins+` WHERE `+cond+
		fmt.Sprintf(" ORDER BY w.number DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	waves, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Wave, error) { return scanWave(row) })
	return waves, total, err
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepository)(nil)
)
