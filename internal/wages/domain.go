package wages

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates wage invoice states. PENDING -> APPROVED -> PAYMENT_DONE
// or PENDING -> REJECTED; both tails are terminal except for delete.
type Status string

const (
	// StatusPending marks a submitted invoice awaiting review.
	StatusPending Status = "PENDING"
	// StatusApproved marks an invoice cleared for payment.
	StatusApproved Status = "APPROVED"
	// StatusRejected marks an invoice turned down at review.
	StatusRejected Status = "REJECTED"
	// StatusPaymentDone marks a settled invoice.
	StatusPaymentDone Status = "PAYMENT_DONE"
)

// WageInvoice is the computed payment document for job-work wages on one
// warp. The cut snapshot is frozen at submission; approval may overwrite the
// aggregate quantity and rate, never the per-cut rows.
type WageInvoice struct {
	ID            int64
	RefID         uuid.UUID
	InvoiceNumber string
	WarpID        int64
	WarpNumber    string
	Cuts          []InvoiceCut
	RatePerMeter  decimal.Decimal
	// ActualQuantity is the aggregate meters wages are computed over. It
	// starts as the snapshot sum and may be overwritten at approval.
	ActualQuantity              decimal.Decimal
	TotalWages                  decimal.Decimal
	Status                      Status
	ValuesUpdatedDuringApproval bool
	ApprovedAt                  *time.Time
	PaidAt                      *time.Time
	CreatedAt                   time.Time
}

// InvoiceCut snapshots one inspected fabric cut at submission time.
type InvoiceCut struct {
	ID                int64
	FabricCutID       int64
	FabricNumber      string
	Quantity          decimal.Decimal
	InspectedQuantity decimal.Decimal
	MistakeQuantity   decimal.Decimal
	ActualQuantity    decimal.Decimal
	Inspector1        string
	Inspector2        string
}

// ListFilters narrows invoice listings.
type ListFilters struct {
	Status string
	WarpID int64
	Limit  int
	Offset int
}
