package fabriccuts

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/athitex/fabricledger/internal/shared"
	"github.com/athitex/fabricledger/internal/warps"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (FabricCut, error)
	GetByNumber(ctx context.Context, fabricNumber string) (FabricCut, error)
	ListForWarp(ctx context.Context, warpID int64) ([]FabricCut, error)
}

// WarpPort exposes warp master data used for the capacity ceiling.
type WarpPort interface {
	Get(ctx context.Context, id int64) (warps.Warp, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns fabric cut creation, inspection and lookup. Side effects stay
// confined to fabric cut rows; movement and processing claims live in their
// own modules.
type Service struct {
	repo  RepositoryPort
	warps WarpPort
	audit AuditPort
	cache *Cache
}

// NewService constructs the registry service.
func NewService(repo RepositoryPort, warpPort WarpPort, audit AuditPort, cache *Cache) *Service {
	return &Service{repo: repo, warps: warpPort, audit: audit, cache: cache}
}

// GenerateCuts creates a batch of cuts for a warp. The combined quantity of
// all non-deleted cuts must never exceed the warp's ordered meters; the warp
// row is locked so two concurrent batches cannot both fit under the ceiling.
func (s *Service) GenerateCuts(ctx context.Context, warpID int64, quantities []decimal.Decimal) ([]FabricCut, error) {
	if len(quantities) == 0 {
		return nil, shared.Validationf("at least one cut quantity is required")
	}
	batchTotal := decimal.Zero
	for i, qty := range quantities {
		if !qty.IsPositive() {
			return nil, shared.Validationf("cut quantity %d must be positive, got %s", i+1, qty.String())
		}
		batchTotal = batchTotal.Add(qty)
	}
	warp, err := s.warps.Get(ctx, warpID)
	if err != nil {
		return nil, err
	}

	var created []FabricCut
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockWarp(ctx, warpID); err != nil {
			return err
		}
		existing, err := tx.SumQuantityForWarp(ctx, warpID)
		if err != nil {
			return err
		}
		attempted := existing.Add(batchTotal)
		if attempted.GreaterThan(warp.Quantity) {
			return shared.CapacityExceeded(fmt.Sprintf("warp %s", warp.WarpNumber), warp.Quantity, attempted)
		}
		maxIndex, err := tx.MaxCutIndex(ctx, warpID)
		if err != nil {
			return err
		}
		created = created[:0]
		for i, qty := range quantities {
			index := maxIndex + i + 1
			cut := FabricCut{
				FabricNumber: shared.FormatFabricNumber(warp.WarpNumber, index),
				CutIndex:     index,
				WarpID:       warpID,
				WarpNumber:   warp.WarpNumber,
				Quantity:     qty,
				Location:     shared.LocationVeerapandi,
			}
			id, err := tx.InsertCut(ctx, cut)
			if err != nil {
				return err
			}
			cut.ID = id
			created = append(created, cut)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "CUTS_GENERATE", warpID, map[string]any{"count": len(created), "total": batchTotal.String()})
	return created, nil
}

// RecordInspection stores a 4-point inspection result. Re-submission
// overwrites the previous values (edit path) and never accumulates. The cut
// must have arrived at the inspection site, and values freeze once the cut is
// part of a submitted wage invoice.
func (s *Service) RecordInspection(ctx context.Context, input InspectionInput) (FabricCut, error) {
	if input.InspectedQuantity.IsNegative() || input.InspectedQuantity.IsZero() {
		return FabricCut{}, shared.Validationf("inspected quantity must be positive, got %s", input.InspectedQuantity.String())
	}
	if input.MistakeQuantity.IsNegative() {
		return FabricCut{}, shared.Validationf("mistake quantity must not be negative, got %s", input.MistakeQuantity.String())
	}
	if strings.TrimSpace(input.Inspector1) == "" || strings.TrimSpace(input.Inspector2) == "" {
		return FabricCut{}, shared.Validationf("both inspectors are required")
	}

	var updated FabricCut
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cut, err := tx.GetCutForUpdate(ctx, input.CutID)
		if err != nil {
			return err
		}
		if cut.Location != shared.InspectionLocation {
			return shared.StateConflict(
				fmt.Sprintf("fabric cut %s", cut.FabricNumber),
				fmt.Sprintf("at %s", cut.Location),
				fmt.Sprintf("at %s for inspection", shared.InspectionLocation),
			)
		}
		if cut.InvoiceSubmitted {
			return shared.StateConflict(
				fmt.Sprintf("fabric cut %s", cut.FabricNumber),
				"locked by submitted invoice",
				"not yet invoiced",
			)
		}
		cut.HasInspection = true
		cut.InspectedQuantity = input.InspectedQuantity
		cut.MistakeQuantity = input.MistakeQuantity
		cut.ActualQuantity = ActualQuantity(input.InspectedQuantity, input.MistakeQuantity)
		cut.Mistakes = input.Mistakes
		cut.Inspector1 = strings.TrimSpace(input.Inspector1)
		cut.Inspector2 = strings.TrimSpace(input.Inspector2)
		if err := tx.UpdateInspection(ctx, cut); err != nil {
			return err
		}
		updated = cut
		return nil
	})
	if err != nil {
		return FabricCut{}, err
	}
	s.cache.Invalidate(ctx, updated.FabricNumber)
	s.recordAudit(ctx, "CUT_INSPECT", updated.ID, map[string]any{
		"fabric_number": updated.FabricNumber,
		"actual":        updated.ActualQuantity.String(),
	})
	return updated, nil
}

// Lookup resolves a scanned fabric number.
func (s *Service) Lookup(ctx context.Context, fabricNumber string) (FabricCut, error) {
	if strings.TrimSpace(fabricNumber) == "" {
		return FabricCut{}, shared.Validationf("fabric number is required")
	}
	if cut, ok := s.cache.Get(ctx, fabricNumber); ok {
		return cut, nil
	}
	cut, err := s.repo.GetByNumber(ctx, fabricNumber)
	if err != nil {
		return FabricCut{}, err
	}
	s.cache.Set(ctx, cut)
	return cut, nil
}

// Get returns one cut by id.
func (s *Service) Get(ctx context.Context, id int64) (FabricCut, error) {
	return s.repo.Get(ctx, id)
}

// ListForWarp returns the warp's cuts in cut order.
func (s *Service) ListForWarp(ctx context.Context, warpID int64) ([]FabricCut, error) {
	return s.repo.ListForWarp(ctx, warpID)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "fabric_cuts", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
