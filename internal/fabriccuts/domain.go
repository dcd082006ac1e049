package fabriccuts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/athitex/fabricledger/internal/shared"
)

// FabricCut is an individually numbered piece of fabric cut from a warp, the
// unit tracked through inspection, movement and processing. Quantity is
// meters. Inspection fields are zero until an inspection is recorded and
// frozen once the cut enters a submitted wage invoice.
type FabricCut struct {
	ID           int64
	FabricNumber string
	CutIndex     int
	WarpID       int64
	WarpNumber   string
	Quantity     decimal.Decimal
	Location     shared.Location

	HasInspection     bool
	InspectedQuantity decimal.Decimal
	MistakeQuantity   decimal.Decimal
	ActualQuantity    decimal.Decimal
	Mistakes          []string
	Inspector1        string
	Inspector2        string
	InspectedAt       *time.Time

	ProcessingOrderID    *int64
	IsProcessingReceived bool
	InvoiceSubmitted     bool

	CreatedAt time.Time
}

// InspectionInput carries a 4-point inspection result for one cut.
type InspectionInput struct {
	CutID             int64
	InspectedQuantity decimal.Decimal
	MistakeQuantity   decimal.Decimal
	Mistakes          []string
	Inspector1        string
	Inspector2        string
}

// ActualQuantity derives the billable meters from an inspection: inspected
// minus mistakes, clamped at zero.
func ActualQuantity(inspected, mistake decimal.Decimal) decimal.Decimal {
	actual := inspected.Sub(mistake)
	if actual.IsNegative() {
		return decimal.Zero
	}
	return actual
}
