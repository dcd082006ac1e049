package warps

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/athitex/fabricledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, w Warp) (int64, error)
	Get(ctx context.Context, id int64) (Warp, error)
	GetByNumber(ctx context.Context, warpNumber string) (Warp, error)
	List(ctx context.Context, filters ListFilters) ([]Warp, int, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages warp master data.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs warp service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput describes warp creation payload.
type CreateInput struct {
	WarpNumber string
	Quantity   decimal.Decimal
	OrderRef   string
	LoomRef    string
}

// Create registers a new production run.
func (s *Service) Create(ctx context.Context, input CreateInput) (Warp, error) {
	if strings.TrimSpace(input.WarpNumber) == "" {
		return Warp{}, shared.Validationf("warp number is required")
	}
	if !input.Quantity.IsPositive() {
		return Warp{}, shared.Validationf("warp quantity must be positive, got %s", input.Quantity.String())
	}
	w := Warp{
		WarpNumber: strings.TrimSpace(input.WarpNumber),
		Quantity:   input.Quantity,
		OrderRef:   input.OrderRef,
		LoomRef:    input.LoomRef,
		Status:     StatusActive,
	}
	id, err := s.repo.Create(ctx, w)
	if err != nil {
		return Warp{}, err
	}
	w.ID = id
	s.recordAudit(ctx, "WARP_CREATE", id, map[string]any{"warp_number": w.WarpNumber, "quantity": w.Quantity.String()})
	return w, nil
}

// Get returns one warp.
func (s *Service) Get(ctx context.Context, id int64) (Warp, error) {
	return s.repo.Get(ctx, id)
}

// List returns warps matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Warp, int, error) {
	return s.repo.List(ctx, filters)
}

// UpdateStatus transitions a warp between lifecycle states. A completed warp
// stays completed.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (Warp, error) {
	switch status {
	case StatusActive, StatusStopped, StatusComplete:
	default:
		return Warp{}, shared.Validationf("unknown warp status %q", status)
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Warp{}, err
	}
	if current.Status == StatusComplete && status != StatusComplete {
		return Warp{}, shared.StateConflict(fmt.Sprintf("warp %s", current.WarpNumber), string(current.Status), string(StatusActive)+" or "+string(StatusStopped))
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return Warp{}, err
	}
	current.Status = status
	s.recordAudit(ctx, "WARP_STATUS", id, map[string]any{"status": string(status)})
	return current, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "warps", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
