package wave

import (
	"context"
	"fmt"

	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
)

// transition carries everything a kind policy needs for one status change.
type transition struct {
	tx       TxRepository
	ledger   *warehouse.Ledger
	reserved warehouse.Reserved
	wave     Wave
	items    []Item
	actor    string
	from, to Status
}

// policyResult reports what a policy did to the ledger.
type policyResult struct {
	withdrawn int64
}

// policy applies the ledger side effects of one edge for a wave kind.
type policy func(ctx context.Context, t transition) (policyResult, error)

func policyFor(kind Kind) policy {
	if kind == KindOutbound {
		return outboundPolicy
	}
	return inboundPolicy
}

// needsLedger reports whether the edge touches the ledger at all.
func needsLedger(from, to Status) bool {
	return from == StatusInProgress || to == StatusInProgress
}

// inboundPolicy stages received goods at INBOUND, then moves them to NEW on
// completion or drops them on cancellation.
func inboundPolicy(ctx context.Context, t transition) (policyResult, error) {
	switch {
	case t.from == StatusPlanned && t.to == StatusInProgress:
		for _, line := range t.items {
			if _, err := t.ledger.Upsert(ctx, t.tx, t.reserved.Inbound.ID, line.ItemID, line.Quantity, warehouse.StatusInbound); err != nil {
				return policyResult{}, fmt.Errorf("stage %s: %w", line.ItemCode, err)
			}
		}
	case t.from == StatusInProgress && t.to == StatusCompleted:
		for _, line := range t.items {
			if _, err := t.ledger.Relocate(ctx, t.tx, line.stockItem(), line.Quantity, t.reserved.Inbound, t.reserved.New, warehouse.StatusNew, t.actor); err != nil {
				return policyResult{}, fmt.Errorf("receive %s: %w", line.ItemCode, err)
			}
		}
	case t.from == StatusInProgress && t.to == StatusCancelled:
		for _, line := range t.items {
			if _, err := t.ledger.Release(ctx, t.tx, line.stockItem(), line.Quantity, t.reserved.Inbound); err != nil {
				return policyResult{}, fmt.Errorf("release %s: %w", line.ItemCode, err)
			}
		}
	}
	return policyResult{}, nil
}

// outboundPolicy draws ok stock into OUTBOUND, ships it on completion and
// returns it to NEW on cancellation.
func outboundPolicy(ctx context.Context, t transition) (policyResult, error) {
	var res policyResult
	switch {
	case t.from == StatusPlanned && t.to == StatusInProgress:
		for _, line := range t.items {
			available, err := t.tx.SumQuantity(ctx, warehouse.EntryQuery{
				ItemID:          line.ItemID,
				Status:          warehouse.StatusOK,
				ExcludePlaceIDs: []int64{t.reserved.Outbound.ID},
			})
			if err != nil {
				return res, err
			}
			if available < line.Quantity {
				return res, &warehouse.InsufficientStockError{ItemCode: line.ItemCode, Requested: line.Quantity, Available: available}
			}
		}
		for _, line := range t.items {
			if _, err := t.ledger.Allocate(ctx, t.tx, line.stockItem(), line.Quantity, warehouse.StatusOK, t.reserved.Outbound, warehouse.StatusOutbound, t.actor, t.reserved.Outbound.ID); err != nil {
				return res, err
			}
			res.withdrawn += line.Quantity
		}
	case t.from == StatusInProgress && t.to == StatusCompleted:
		for _, line := range t.items {
			if _, err := t.ledger.Release(ctx, t.tx, line.stockItem(), line.Quantity, t.reserved.Outbound); err != nil {
				return res, fmt.Errorf("ship %s: %w", line.ItemCode, err)
			}
		}
	case t.from == StatusInProgress && t.to == StatusCancelled:
		for _, line := range t.items {
			if _, err := t.ledger.Relocate(ctx, t.tx, line.stockItem(), line.Quantity, t.reserved.Outbound, t.reserved.New, warehouse.StatusOK, t.actor); err != nil {
				return res, fmt.Errorf("return %s: %w", line.ItemCode, err)
			}
		}
	}
	return res, nil
}
