package movements

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/athitex/fabricledger/internal/shared"
)

// Status enumerates the movement state machine. PENDING models in-transit
// custody; cuts relocate only at receipt.
type Status string

const (
	// StatusPending marks a movement created but not yet received.
	StatusPending Status = "PENDING"
	// StatusReceived is terminal.
	StatusReceived Status = "RECEIVED"
)

// Movement is an atomic transfer order for a set of fabric cuts between two
// named sites.
type Movement struct {
	ID                  int64
	MovementOrderNumber string
	FromLocation        shared.Location
	ToLocation          shared.Location
	MovedBy             string
	Status              Status
	ReceivedBy          *string
	ReceivedAt          *time.Time
	CreatedAt           time.Time
	Cuts                []MovementCut
}

// MovementCut snapshots one cut carried by a movement.
type MovementCut struct {
	FabricCutID  int64
	FabricNumber string
	Quantity     decimal.Decimal
}

// ListFilters narrows movement listings.
type ListFilters struct {
	Status string
	Limit  int
	Offset int
}
