package wave

import (
	"errors"
	"fmt"
	"time"

	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
)

// Kind distinguishes inbound deliveries from outbound shipments.
type Kind string

const (
	// KindInbound receives goods from a supplier.
	KindInbound Kind = "inbound"
	// KindOutbound ships goods to a recipient.
	KindOutbound Kind = "outbound"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindInbound || k == KindOutbound
}

// Prefix returns the number prefix of the kind.
func (k Kind) Prefix() string {
	if k == KindOutbound {
		return "OUT"
	}
	return "INB"
}

// Folder returns the document folder of the kind.
func (k Kind) Folder() string {
	return string(k) + "s"
}

// PartyLabel names the counterparty of the kind.
func (k Kind) PartyLabel() string {
	if k == KindOutbound {
		return "recipient"
	}
	return "supplier"
}

// Status is the lifecycle state of a wave.
type Status string

const (
	// StatusDraft is only found on legacy inbound waves.
	StatusDraft Status = "draft"
	// StatusPlanned is the initial state.
	StatusPlanned Status = "planned"
	// StatusInProgress means goods are staged.
	StatusInProgress Status = "in_progress"
	// StatusCompleted is terminal.
	StatusCompleted Status = "completed"
	// StatusCancelled is terminal.
	StatusCancelled Status = "cancelled"
)

var allowedTransitions = map[Status][]Status{
	StatusPlanned:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPlanned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether s -> to is an edge of the lifecycle graph.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Deletable reports whether a wave in status s may be removed.
func (s Status) Deletable() bool {
	return s == StatusPlanned || s == StatusCancelled || s == StatusDraft
}

// Wave is an inbound or outbound batch of goods.
type Wave struct {
	ID          int64      `json:"id"`
	Kind        Kind       `json:"kind"`
	Number      string     `json:"number"`
	StockID     int64      `json:"stock_id"`
	StockTitle  string     `json:"stock,omitempty"`
	Status      Status     `json:"status"`
	PlannedDate time.Time  `json:"planned_date"`
	ActualDate  *time.Time `json:"actual_date,omitempty"`
	Party       string     `json:"party"`
	Description string     `json:"description,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Items       []Item     `json:"items,omitempty"`
}

// Supplier returns the party of an inbound wave.
func (w Wave) Supplier() string {
	if w.Kind != KindInbound {
		return ""
	}
	return w.Party
}

// Recipient returns the party of an outbound wave.
func (w Wave) Recipient() string {
	if w.Kind != KindOutbound {
		return ""
	}
	return w.Party
}

// TotalQuantity sums the required quantity of every line.
func (w Wave) TotalQuantity() int64 {
	var total int64
	for _, it := range w.Items {
		total += it.Quantity
	}
	return total
}

// Validate enforces the record level invariants.
func (w Wave) Validate() error {
	if !w.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, w.Kind)
	}
	if !w.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, w.Status)
	}
	if w.Status == StatusDraft && w.Kind != KindInbound {
		return fmt.Errorf("%w: draft is only allowed for inbound waves", ErrInvalidInput)
	}
	if (w.Status == StatusCompleted) != (w.ActualDate != nil) {
		return ErrActualDate
	}
	return nil
}

// setStatus writes the status and keeps actual_date consistent with it.
func (w *Wave) setStatus(to Status, now time.Time) {
	w.Status = to
	if to == StatusCompleted {
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		w.ActualDate = &day
		return
	}
	w.ActualDate = nil
}

// Item is a wave line: the required quantity of one item.
type Item struct {
	ID          int64  `json:"id"`
	WaveID      int64  `json:"wave_id"`
	ItemID      int64  `json:"item_id"`
	ItemCode    string `json:"item_code"`
	Quantity    int64  `json:"quantity"`
	Weight      *int64 `json:"weight,omitempty"`
	Description string `json:"description,omitempty"`
}

func (it Item) stockItem() warehouse.Item {
	return warehouse.Item{ID: it.ItemID, Code: it.ItemCode, Weight: it.Weight, Description: it.Description}
}

// FormatNumber renders INB-2025-0001 style numbers.
func FormatNumber(kind Kind, year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", kind.Prefix(), year, seq)
}

var (
	// ErrNotFound indicates a missing wave.
	ErrNotFound = errors.New("wave: not found")
	// ErrInvalidTransition rejects an edge outside the lifecycle graph.
	ErrInvalidTransition = errors.New("wave: invalid status transition")
	// ErrInvalidInput reports malformed wave data.
	ErrInvalidInput = errors.New("wave: invalid input")
	// ErrActualDate rejects an actual date on a wave that is not completed, or a completed wave without one.
	ErrActualDate = errors.New("wave: actual date must be set exactly when status is completed")
	// ErrNotDeletable rejects deleting a wave with staged or shipped goods.
	ErrNotDeletable = errors.New("wave: only planned, cancelled or draft waves can be deleted")
)
