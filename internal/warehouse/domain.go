package warehouse

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// EntryStatus tags a ledger entry.
type EntryStatus string

const (
	// StatusOK marks stock available for allocation.
	StatusOK EntryStatus = "ok"
	// StatusBlocked marks stock held back from allocation.
	StatusBlocked EntryStatus = "blk"
	// StatusNo marks stock that is missing on the shelf.
	StatusNo EntryStatus = "no"
	// StatusNew marks received goods waiting to be put away.
	StatusNew EntryStatus = "new"
	// StatusDock marks goods sitting at the dock.
	StatusDock EntryStatus = "dock"
	// StatusInbound marks goods staged by an inbound wave.
	StatusInbound EntryStatus = "inbound"
	// StatusOutbound marks goods staged by an outbound wave.
	StatusOutbound EntryStatus = "outbound"
)

// IsValid reports whether s belongs to the closed status set.
func (s EntryStatus) IsValid() bool {
	switch s {
	case StatusOK, StatusBlocked, StatusNo, StatusNew, StatusDock, StatusInbound, StatusOutbound:
		return true
	}
	return false
}

// Field limits shared with the schema.
const (
	MaxCodeLen        = 100
	MaxTitleLen       = 100
	MaxDescriptionLen = 500
	MinWeight         = 1
	MaxWeight         = 100_000_000
)

// Item is a catalog record identified by its normalised code.
type Item struct {
	ID          int64     `json:"id"`
	Code        string    `json:"item_code"`
	Weight      *int64    `json:"weight,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// ItemInput describes an item reference coming from an import row or API call.
type ItemInput struct {
	Code        string
	Weight      *int64
	Description string
}

// Stock is a physical warehouse.
type Stock struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Address     string `json:"address,omitempty"`
	Description string `json:"description,omitempty"`
}

// Zone groups places, optionally inside a stock.
type Zone struct {
	ID          int64  `json:"id"`
	StockID     *int64 `json:"stock_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Place is a storage slot. ZoneTitle and StockTitle are filled on reads.
type Place struct {
	ID          int64  `json:"id"`
	ZoneID      *int64 `json:"zone_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ZoneTitle   string `json:"zone,omitempty"`
	StockTitle  string `json:"stock,omitempty"`
}

// FullAddress renders STOCK/ZONE/PLACE, omitting missing levels.
func (p Place) FullAddress() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{p.StockTitle, p.ZoneTitle, p.Title} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "/")
}

// Entry is a ledger row: quantity of one item at one place.
type Entry struct {
	ID        int64       `json:"id"`
	PlaceID   int64       `json:"place_id"`
	ItemID    int64       `json:"item_id"`
	ItemCode  string      `json:"item_code"`
	Quantity  int64       `json:"quantity"`
	Status    EntryStatus `json:"status"`
	Place     Place       `json:"place"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// History is an append-only record of a quantity moving between two addresses.
type History struct {
	ID         int64     `json:"id"`
	Actor      string    `json:"actor,omitempty"`
	ItemCode   string    `json:"item_code"`
	Count      int64     `json:"count"`
	OldAddress string    `json:"old_address"`
	NewAddress string    `json:"new_address"`
	Date       time.Time `json:"date"`
	// PlaceIDs lists every place the row touched, sources first.
	PlaceIDs []int64 `json:"-"`
}

// ReservedTitles names the technical staging places.
type ReservedTitles struct {
	Inbound  string
	Outbound string
	New      string
}

// DefaultReservedTitles returns the conventional staging titles.
func DefaultReservedTitles() ReservedTitles {
	return ReservedTitles{Inbound: "INBOUND", Outbound: "OUTBOUND", New: "NEW"}
}

func (r ReservedTitles) normalized() ReservedTitles {
	return ReservedTitles{Inbound: NormalizeTitle(r.Inbound), Outbound: NormalizeTitle(r.Outbound), New: NormalizeTitle(r.New)}
}

// Contains reports whether title names one of the reserved places.
func (r ReservedTitles) Contains(title string) bool {
	n := r.normalized()
	title = NormalizeTitle(title)
	return title == n.Inbound || title == n.Outbound || title == n.New
}

// Reserved holds the staging places resolved for one transition.
type Reserved struct {
	Inbound  Place
	Outbound Place
	New      Place
}

// WithdrawOrder selects which ledger entries a withdrawal drains first.
type WithdrawOrder string

const (
	// WithdrawFIFO drains the oldest entries first.
	WithdrawFIFO WithdrawOrder = "fifo"
	// WithdrawLIFO drains the newest entries first.
	WithdrawLIFO WithdrawOrder = "lifo"
	// WithdrawSmallestFirst empties small remainders before touching full lots.
	WithdrawSmallestFirst WithdrawOrder = "smallest"
	// WithdrawLargestFirst takes from the fullest entries to touch fewer places.
	WithdrawLargestFirst WithdrawOrder = "largest"
)

// ParseWithdrawOrder validates a configured order, defaulting to FIFO when blank.
func ParseWithdrawOrder(raw string) (WithdrawOrder, error) {
	switch order := WithdrawOrder(strings.ToLower(strings.TrimSpace(raw))); order {
	case "":
		return WithdrawFIFO, nil
	case WithdrawFIFO, WithdrawLIFO, WithdrawSmallestFirst, WithdrawLargestFirst:
		return order, nil
	default:
		return "", fmt.Errorf("warehouse: unknown withdraw order %q", raw)
	}
}

var (
	// ErrNotFound indicates a missing stock, zone, place, item or entry.
	ErrNotFound = errors.New("warehouse: not found")
	// ErrInsufficientStock is matched by InsufficientStockError.
	ErrInsufficientStock = errors.New("warehouse: insufficient stock")
	// ErrMissingReservedLocation is matched by MissingReservedLocationError.
	ErrMissingReservedLocation = errors.New("warehouse: missing reserved location")
	// ErrDuplicateEntry signals a second ledger row for the same place and item.
	ErrDuplicateEntry = errors.New("warehouse: duplicate ledger entry")
	// ErrProtected rejects deleting records still referenced by ledger rows or history.
	ErrProtected = errors.New("warehouse: record is referenced and cannot be deleted")
	// ErrInvalidQuantity rejects non-positive quantities.
	ErrInvalidQuantity = errors.New("warehouse: quantity must be positive")
	// ErrInvalidStatus rejects statuses outside the closed set.
	ErrInvalidStatus = errors.New("warehouse: invalid entry status")
	// ErrSamePlace rejects a move onto the source place.
	ErrSamePlace = errors.New("warehouse: source and destination are the same place")
	// ErrInvalidInput reports malformed catalog or structure data.
	ErrInvalidInput = errors.New("warehouse: invalid input")
)

// InsufficientStockError reports a withdrawal that cannot be covered.
type InsufficientStockError struct {
	ItemCode  string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("warehouse: insufficient stock for %s: requested %d, available %d", e.ItemCode, e.Requested, e.Available)
}

// Is matches ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Shortfall returns how many units are missing.
func (e *InsufficientStockError) Shortfall() int64 {
	return e.Requested - e.Available
}

// MissingReservedLocationError reports a staging place that does not exist.
type MissingReservedLocationError struct {
	Title string
}

func (e *MissingReservedLocationError) Error() string {
	return fmt.Sprintf("warehouse: missing reserved location %q", e.Title)
}

// Is matches ErrMissingReservedLocation.
func (e *MissingReservedLocationError) Is(target error) bool {
	return target == ErrMissingReservedLocation
}
