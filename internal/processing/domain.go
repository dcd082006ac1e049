package processing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/athitex/fabricledger/internal/shared"
)

// Status enumerates processing order states. Status is always derived from
// the delivery history, never stored by caller input.
type Status string

const (
	// StatusSent marks an order dispatched with no deliveries yet.
	StatusSent Status = "SENT"
	// StatusPartiallyReceived marks an order with some cuts returned.
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	// StatusCompleted marks an order whose full cut count has returned.
	StatusCompleted Status = "COMPLETED"
)

// ProcessingOrder is a dispatch of inspected fabric cuts to an external
// processing center. Sent quantities are frozen at dispatch time; the running
// sent/received/shortage balance is recomputed by the service on every
// mutation.
type ProcessingOrder struct {
	ID               int64
	OrderFormNumber  string
	OrderFormSeq     int64
	ProcessingCenter string
	Processes        []string
	VehicleNumber    string
	DeliveryDate     time.Time
	SentFabricCuts   []SentCut
	TotalQuantity    decimal.Decimal
	Deliveries       []Delivery
	ReceivedCuts     []ReceivedCut
	// NextCutSeq is the forward-only numbering cursor for return cuts.
	// Deleting a delivery never rewinds it, so WR numbers are never reused.
	NextCutSeq int
	Status     Status
	CreatedAt  time.Time
}

// SentCut snapshots one dispatched cut. Quantity is the inspected quantity at
// send time, independent of later edits to the source cut.
type SentCut struct {
	ID           int64
	FabricCutID  int64
	FabricNumber string
	WarpNumber   string
	OrderRef     string
	Quantity     decimal.Decimal
}

// Delivery is one receiving event against a processing order.
type Delivery struct {
	ID                    int64
	DeliveryNumber        string
	ReceivedBy            string
	Location              shared.Location
	CutsReceived          int
	TotalQuantityReceived decimal.Decimal
	ReceivedAt            time.Time
}

// ReceivedCut is a renumbered return cut minted by a delivery.
type ReceivedCut struct {
	ID           int64
	DeliveryID   int64
	FabricNumber string
	Quantity     decimal.Decimal
}

// Usage answers the read-only guard exposed to the send path.
type Usage struct {
	IsUsed          bool
	OrderFormNumber string
}

// Summary carries the running sent/received/shortage balance in both cut
// count and meters.
type Summary struct {
	OrderFormNumber  string
	SentCuts         int
	SentQuantity     decimal.Decimal
	ReceivedCuts     int
	ReceivedQuantity decimal.Decimal
	ShortageCuts     int
	ShortageQuantity decimal.Decimal
	Status           Status
}

// ListFilters narrows processing order listings.
type ListFilters struct {
	Status           string
	ProcessingCenter string
	Limit            int
	Offset           int
}

// DeriveStatus computes order status from the delivery history.
func DeriveStatus(receivedCuts, sentCuts, deliveries int) Status {
	switch {
	case sentCuts > 0 && receivedCuts == sentCuts:
		return StatusCompleted
	case deliveries > 0:
		return StatusPartiallyReceived
	default:
		return StatusSent
	}
}
