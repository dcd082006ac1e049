package warps

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates warp lifecycle states.
type Status string

const (
	// StatusActive marks a warp still on the loom.
	StatusActive Status = "ACTIVE"
	// StatusStopped marks a warp taken off the loom before completion.
	StatusStopped Status = "STOPPED"
	// StatusComplete marks a finished production run.
	StatusComplete Status = "COMPLETE"
)

// Warp is a production run on a loom. Quantity is the ceiling the combined
// meters of all fabric cuts generated from the warp must respect.
type Warp struct {
	ID         int64
	WarpNumber string
	Quantity   decimal.Decimal
	OrderRef   string
	LoomRef    string
	Status     Status
	CreatedAt  time.Time
}

// ListFilters narrows warp listings.
type ListFilters struct {
	Status string
	Search string
	Limit  int
	Offset int
}
