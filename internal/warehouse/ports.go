package warehouse

import (
	"context"
	"time"

	"github.com/AlekseyRodimkin/warehouse/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListStructure(ctx context.Context) (Structure, error)
	SearchLots(ctx context.Context, filter LotFilter) ([]Entry, int, error)
	SearchItems(ctx context.Context, filter ItemFilter) ([]Item, int, error)
	SearchHistory(ctx context.Context, filter HistoryFilter) ([]History, int, error)
	ItemEntries(ctx context.Context, itemCode string) ([]Entry, error)
}

// TxRepository exposes transactional operations used by service and by the
// wave transition policies that share its transaction.
type TxRepository interface {
	LedgerTx

	GetItem(ctx context.Context, id int64) (Item, error)
	GetItemByCodeForUpdate(ctx context.Context, code string) (Item, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, id int64) error
	CountItemReferences(ctx context.Context, itemID int64) (int64, error)

	FindPlacesByTitle(ctx context.Context, titles []string) ([]Place, error)
	GetPlace(ctx context.Context, id int64) (Place, error)
	FindPlace(ctx context.Context, zoneID *int64, title string) (Place, error)
	InsertPlace(ctx context.Context, place Place) (Place, error)
	DeletePlace(ctx context.Context, id int64) error
	CountPlaceReferences(ctx context.Context, place Place) (int64, error)

	FindStock(ctx context.Context, title string) (Stock, error)
	InsertStock(ctx context.Context, stock Stock) (Stock, error)
	DeleteStock(ctx context.Context, id int64) error

	FindZone(ctx context.Context, stockID *int64, title string) (Zone, error)
	InsertZone(ctx context.Context, zone Zone) (Zone, error)
	DeleteZone(ctx context.Context, id int64) error

	SumQuantity(ctx context.Context, query EntryQuery) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards retried requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Structure lists every stock, zone and place.
type Structure struct {
	Stocks []Stock `json:"stocks"`
	Zones  []Zone  `json:"zones"`
	Places []Place `json:"places"`
}

// LotFilter narrows ledger listings.
type LotFilter struct {
	StockID  *int64
	ZoneID   *int64
	PlaceID  *int64
	ItemCode string
	Status   EntryStatus
	MinQty   *int64
	MaxQty   *int64
	Page     int
	PerPage  int
}

// ItemFilter narrows catalog listings.
type ItemFilter struct {
	Code    string
	Page    int
	PerPage int
}

// HistoryFilter narrows history listings.
type HistoryFilter struct {
	ItemCode string
	Address  string
	Actor    string
	From     time.Time
	To       time.Time
	Page     int
	PerPage  int
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T               `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// Summary describes where an item is held.
type Summary struct {
	ItemCode  string                `json:"item_code"`
	Available int64                 `json:"available"`
	Total     int64                 `json:"total"`
	ByStatus  map[EntryStatus]int64 `json:"by_status"`
	Places    int                   `json:"places"`
}

// MoveInput describes a direct relocation between two places.
type MoveInput struct {
	ItemCode       string      `json:"item_code" validate:"required,max=100"`
	FromPlaceID    int64       `json:"from_place_id" validate:"required,gt=0"`
	ToPlaceID      int64       `json:"to_place_id" validate:"required,gt=0,nefield=FromPlaceID"`
	Quantity       int64       `json:"quantity" validate:"required,gt=0"`
	Status         EntryStatus `json:"status" validate:"omitempty,oneof=ok blk no new dock"`
	Actor          string      `json:"-"`
	IdempotencyKey string      `json:"-"`
}

// MoveResult reports the ledger after a move.
type MoveResult struct {
	Item        Item    `json:"item"`
	From        Place   `json:"from"`
	To          Place   `json:"to"`
	Quantity    int64   `json:"quantity"`
	Source      *Entry  `json:"source,omitempty"`
	Destination Entry   `json:"destination"`
	History     History `json:"history"`
}

// StructureInput creates a stock / zone / place chain. Blank levels are skipped.
type StructureInput struct {
	Stock       string `json:"stock" validate:"max=100"`
	Zone        string `json:"zone" validate:"max=100"`
	Place       string `json:"place" validate:"max=100"`
	Address     string `json:"address" validate:"max=300"`
	Description string `json:"description" validate:"max=500"`
	Actor       string `json:"-"`
}

// StructureResult reports the records of a structure request.
type StructureResult struct {
	Stock   *Stock `json:"stock,omitempty"`
	Zone    *Zone  `json:"zone,omitempty"`
	Place   *Place `json:"place,omitempty"`
	Created int    `json:"created"`
}
