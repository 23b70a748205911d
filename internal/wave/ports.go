package wave

import (
	"context"
	"io"
	"time"

	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
)

// RepositoryPort abstracts wave persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Wave, error)
	Search(ctx context.Context, filter Filter) ([]Wave, int, error)
}

// TxRepository exposes wave rows and the warehouse ledger inside one transaction.
type TxRepository interface {
	warehouse.TxRepository

	NextNumber(ctx context.Context, kind Kind, year int) (int, error)
	InsertWave(ctx context.Context, w Wave) (Wave, error)
	InsertItems(ctx context.Context, waveID int64, items []Item) error
	GetWaveForUpdate(ctx context.Context, id int64) (Wave, error)
	ListItems(ctx context.Context, waveID int64) ([]Item, error)
	UpdateStatus(ctx context.Context, id int64, status Status, actualDate *time.Time) error
	DeleteWave(ctx context.Context, id int64) error
}

// Locker serialises transitions of the same wave across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// PackingList produces the packing list of a completed outbound wave.
type PackingList interface {
	Generate(ctx context.Context, w Wave) error
}

// Documents manages the attachment folder of a wave.
type Documents interface {
	Archive(w io.Writer, folder, number string) error
	Remove(folder, number string) error
}

// Filter narrows wave listings.
type Filter struct {
	Kind        Kind
	StockID     *int64
	Status      Status
	Number      string
	Party       string
	PlannedFrom time.Time
	ActualTo    time.Time
	Page        int
	PerPage     int
}

// CreateInput describes a new wave.
type CreateInput struct {
	Kind        Kind        `json:"kind" validate:"required,oneof=inbound outbound"`
	StockID     int64       `json:"stock_id" validate:"required,gt=0"`
	Party       string      `json:"party" validate:"required,max=200"`
	PlannedDate time.Time   `json:"-"`
	Description string      `json:"description" validate:"max=500"`
	Items       []LineInput `json:"items" validate:"dive"`
	Actor       string      `json:"-"`
}

// LineInput is one requested line of a new wave.
type LineInput struct {
	ItemCode    string `json:"item_code" validate:"required,max=100"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	Weight      *int64 `json:"weight,omitempty" validate:"omitempty,min=1,max=100000000"`
	Description string `json:"description" validate:"max=500"`
}
