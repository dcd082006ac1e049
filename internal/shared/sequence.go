package shared

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Sequence scope keys. Each scope owns a dedicated counter row; numbers are
// never derived by counting existing documents.
const (
	ScopeMovementOrders  = "movement_orders"
	ScopeProcessingForms = "processing_order_forms"
)

// InvoiceScope returns the counter scope for wage invoices of one warp.
func InvoiceScope(warpNumber string) string {
	return "wage_invoices:" + warpNumber
}

// Sequences issues gap-free sequence numbers from per-scope counter rows.
// Allocation happens inside the caller's transaction: when the parent entity
// fails to commit, the increment rolls back with it, and when the counter is
// unavailable the parent entity is never created.
type Sequences struct{}

// Next returns the next integer for scope, atomically incrementing the
// counter row under tx. Concurrent callers on the same scope serialise on the
// row lock, so no two commits ever carry the same number.
func (Sequences) Next(ctx context.Context, tx pgx.Tx, scope string) (int64, error) {
	var value int64
	err := tx.QueryRow(ctx, `INSERT INTO sequence_counters (scope, value) VALUES ($1, 1)
ON CONFLICT (scope) DO UPDATE SET value = sequence_counters.value + 1
RETURNING value`, scope).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("shared: next sequence for %s: %w", scope, err)
	}
	return value, nil
}

// FormatOrderForm renders a processing order form number, zero-padded to five
// digits.
func FormatOrderForm(seq int64) string {
	return fmt.Sprintf("%05d", seq)
}

// FormatMovementOrder renders a movement order number.
func FormatMovementOrder(seq int64) string {
	return fmt.Sprintf("MO-%05d", seq)
}

// FormatInvoiceNumber renders a wage invoice number for one warp.
func FormatInvoiceNumber(warpNumber string, seq int64) string {
	return fmt.Sprintf("AT/%s/%d", warpNumber, seq)
}

// FormatFabricNumber renders a fabric cut number within its warp.
func FormatFabricNumber(warpNumber string, cutIndex int) string {
	return fmt.Sprintf("%s-%d", warpNumber, cutIndex)
}

// FormatReturnCutNumber renders a renumbered processing return cut. The cut
// index is two-digit padded inside the order form series.
func FormatReturnCutNumber(orderSeq int64, cutIndex int) string {
	return fmt.Sprintf("WR/%d/%02d", orderSeq, cutIndex)
}
