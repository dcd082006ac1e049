package movements

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/athitex/fabricledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Movement, error)
	List(ctx context.Context, filters ListFilters) ([]Movement, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LookupCachePort invalidates cached fabric cut lookups after relocation.
type LookupCachePort interface {
	Invalidate(ctx context.Context, fabricNumber string)
}

// Service drives the movement state machine. PENDING -> RECEIVED is the only
// transition; there is no cancellation path.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache LookupCachePort
}

// NewService constructs movement service.
func NewService(repo RepositoryPort, audit AuditPort, cache LookupCachePort) *Service {
	return &Service{repo: repo, audit: audit, cache: cache}
}

// CreateInput describes a transfer order submission.
type CreateInput struct {
	FabricCutIDs []int64
	FromLocation shared.Location
	ToLocation   shared.Location
	MovedBy      string
}

// Create opens a movement for a set of cuts. Cuts are claim-checked inside
// the transaction: each must sit at the source location and belong to no
// other pending movement. Cuts are not relocated here; relocation happens at
// receipt.
func (s *Service) Create(ctx context.Context, input CreateInput) (Movement, error) {
	if len(input.FabricCutIDs) == 0 {
		return Movement{}, shared.Validationf("at least one fabric cut is required")
	}
	if !shared.ValidLocation(input.FromLocation) || !shared.ValidLocation(input.ToLocation) {
		return Movement{}, shared.Validationf("unknown location")
	}
	if input.FromLocation == input.ToLocation {
		return Movement{}, shared.Validationf("from and to location must differ, both are %s", input.FromLocation)
	}
	if strings.TrimSpace(input.MovedBy) == "" {
		return Movement{}, shared.Validationf("movedBy is required")
	}
	seen := make(map[int64]bool, len(input.FabricCutIDs))
	ids := make([]int64, 0, len(input.FabricCutIDs))
	for _, id := range input.FabricCutIDs {
		if seen[id] {
			return Movement{}, shared.Validationf("fabric cut %d listed twice", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	// Lock cuts in id order so two overlapping submissions cannot deadlock.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var created Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cuts := make([]MovementCut, 0, len(ids))
		for _, id := range ids {
			ref, err := tx.GetCutForMove(ctx, id)
			if err != nil {
				return err
			}
			if ref.Location != input.FromLocation {
				return shared.StateConflict(
					fmt.Sprintf("fabric cut %s", ref.FabricNumber),
					fmt.Sprintf("at %s", ref.Location),
					fmt.Sprintf("at %s", input.FromLocation),
				)
			}
			holder, held, err := tx.PendingMovementForCut(ctx, id)
			if err != nil {
				return err
			}
			if held {
				return shared.ClaimConflict(fmt.Sprintf("fabric cut %s", ref.FabricNumber), fmt.Sprintf("movement %s", holder))
			}
			cuts = append(cuts, MovementCut{FabricCutID: ref.ID, FabricNumber: ref.FabricNumber, Quantity: ref.Quantity})
		}
		seq, err := tx.NextSequence(ctx, shared.ScopeMovementOrders)
		if err != nil {
			return err
		}
		m := Movement{
			MovementOrderNumber: shared.FormatMovementOrder(seq),
			FromLocation:        input.FromLocation,
			ToLocation:          input.ToLocation,
			MovedBy:             strings.TrimSpace(input.MovedBy),
			Status:              StatusPending,
		}
		movementID, err := tx.InsertMovement(ctx, m)
		if err != nil {
			return err
		}
		for _, cut := range cuts {
			if err := tx.InsertMovementCut(ctx, movementID, cut.FabricCutID); err != nil {
				return err
			}
		}
		m.ID = movementID
		m.Cuts = cuts
		created = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, "MOVEMENT_CREATE", created.ID, map[string]any{
		"number": created.MovementOrderNumber,
		"cuts":   len(created.Cuts),
		"from":   string(created.FromLocation),
		"to":     string(created.ToLocation),
	})
	return created, nil
}

// Receive closes a pending movement. Every referenced cut's location flips to
// the destination atomically with the status transition.
func (s *Service) Receive(ctx context.Context, movementID int64, receivedBy string) (Movement, error) {
	if strings.TrimSpace(receivedBy) == "" {
		return Movement{}, shared.Validationf("receivedBy is required")
	}
	var received Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovementForUpdate(ctx, movementID)
		if err != nil {
			return err
		}
		if m.Status != StatusPending {
			return shared.StateConflict(
				fmt.Sprintf("movement %s", m.MovementOrderNumber),
				string(m.Status), string(StatusPending),
			)
		}
		if err := tx.RelocateCuts(ctx, movementID, m.ToLocation); err != nil {
			return err
		}
		now := time.Now()
		by := strings.TrimSpace(receivedBy)
		if err := tx.MarkReceived(ctx, movementID, by, now); err != nil {
			return err
		}
		m.Status = StatusReceived
		m.ReceivedBy = &by
		m.ReceivedAt = &now
		received = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	if s.cache != nil {
		for _, cut := range received.Cuts {
			s.cache.Invalidate(ctx, cut.FabricNumber)
		}
	}
	s.recordAudit(ctx, "MOVEMENT_RECEIVE", received.ID, map[string]any{"number": received.MovementOrderNumber})
	return received, nil
}

// Get returns one movement with its cuts.
func (s *Service) Get(ctx context.Context, id int64) (Movement, error) {
	return s.repo.Get(ctx, id)
}

// List returns movements matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Movement, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "movements", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
