package processing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/athitex/fabricledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, orderID int64) (ProcessingOrder, error)
	List(ctx context.Context, filters ListFilters) ([]ProcessingOrder, int, error)
	CheckUsage(ctx context.Context, fabricNumber string) (Usage, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards replayed delivery submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service reconciles fabric cuts against an external processing center. It
// keeps the sent/received/shortage balance consistent across any sequence of
// partial deliveries, edits and deletes.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService constructs the reconciler service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// SendInput describes a dispatch to a processing center.
type SendInput struct {
	FabricCutIDs     []int64
	ProcessingCenter string
	Processes        []string
	VehicleNumber    string
	DeliveryDate     time.Time
}

// SendResult wraps the created order. MixedOrdersWarning is advisory: cuts
// from different source orders are allowed but flagged for the caller.
type SendResult struct {
	Order              ProcessingOrder
	MixedOrdersWarning string
}

// Send dispatches inspected, unclaimed cuts to a processing center. Each cut
// is claimed with a conditional update re-validated inside the transaction;
// if any cut fails validation nothing is persisted.
func (s *Service) Send(ctx context.Context, input SendInput) (SendResult, error) {
	if len(input.FabricCutIDs) == 0 {
		return SendResult{}, shared.Validationf("at least one fabric cut is required")
	}
	if strings.TrimSpace(input.ProcessingCenter) == "" {
		return SendResult{}, shared.Validationf("processing center is required")
	}
	if len(input.Processes) == 0 {
		return SendResult{}, shared.Validationf("at least one process is required")
	}
	seen := make(map[int64]bool, len(input.FabricCutIDs))
	ids := make([]int64, 0, len(input.FabricCutIDs))
	for _, id := range input.FabricCutIDs {
		if seen[id] {
			return SendResult{}, shared.Validationf("fabric cut %d listed twice", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var result SendResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sentCuts := make([]SentCut, 0, len(ids))
		total := decimal.Zero
		orderRefs := make(map[string]bool)
		for _, id := range ids {
			src, err := tx.GetSourceCut(ctx, id)
			if err != nil {
				return err
			}
			if !src.HasInspection {
				return shared.Validationf("fabric cut %s has not completed inspection", src.FabricNumber)
			}
			if src.HeldBy != nil {
				return shared.ClaimConflict(
					fmt.Sprintf("fabric cut %s", src.FabricNumber),
					fmt.Sprintf("processing order %s", *src.HeldBy),
				)
			}
			sentCuts = append(sentCuts, SentCut{
				FabricCutID:  src.ID,
				FabricNumber: src.FabricNumber,
				WarpNumber:   src.WarpNumber,
				OrderRef:     src.OrderRef,
				Quantity:     src.InspectedQuantity,
			})
			total = total.Add(src.InspectedQuantity)
			orderRefs[src.OrderRef] = true
		}

		seq, err := tx.NextSequence(ctx, shared.ScopeProcessingForms)
		if err != nil {
			return err
		}
		order := ProcessingOrder{
			OrderFormNumber:  shared.FormatOrderForm(seq),
			OrderFormSeq:     seq,
			ProcessingCenter: strings.TrimSpace(input.ProcessingCenter),
			Processes:        input.Processes,
			VehicleNumber:    input.VehicleNumber,
			DeliveryDate:     input.DeliveryDate,
			TotalQuantity:    total,
			NextCutSeq:       1,
			Status:           StatusSent,
		}
		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		for _, sc := range sentCuts {
			claimed, err := tx.ClaimCut(ctx, sc.FabricCutID, orderID)
			if err != nil {
				return err
			}
			if !claimed {
				// Re-validated claim lost to a concurrent send.
				return shared.ClaimConflict(fmt.Sprintf("fabric cut %s", sc.FabricNumber), "a concurrent processing order")
			}
			if err := tx.InsertSentCut(ctx, orderID, sc); err != nil {
				return err
			}
		}
		order.ID = orderID
		order.SentFabricCuts = sentCuts
		result.Order = order
		if len(orderRefs) > 1 {
			refs := make([]string, 0, len(orderRefs))
			for ref := range orderRefs {
				refs = append(refs, ref)
			}
			sort.Strings(refs)
			result.MixedOrdersWarning = fmt.Sprintf("cuts belong to multiple orders: %s", strings.Join(refs, ", "))
		}
		return nil
	})
	if err != nil {
		return SendResult{}, err
	}
	s.recordAudit(ctx, "PROCESSING_SEND", result.Order.ID, map[string]any{
		"order_form": result.Order.OrderFormNumber,
		"cuts":       len(result.Order.SentFabricCuts),
		"total":      result.Order.TotalQuantity.String(),
	})
	return result, nil
}

// DeliveryInput describes one receiving event.
type DeliveryInput struct {
	OrderID        int64
	DeliveryNumber string
	ReceivedBy     string
	Location       shared.Location
	CutQuantities  []decimal.Decimal
}

func validateDeliveryInput(input DeliveryInput) error {
	if strings.TrimSpace(input.DeliveryNumber) == "" {
		return shared.Validationf("delivery number is required")
	}
	if strings.TrimSpace(input.ReceivedBy) == "" {
		return shared.Validationf("receivedBy is required")
	}
	if !shared.ValidLocation(input.Location) {
		return shared.Validationf("unknown location %q", input.Location)
	}
	if len(input.CutQuantities) == 0 {
		return shared.Validationf("at least one cut quantity is required")
	}
	for i, qty := range input.CutQuantities {
		if !qty.IsPositive() {
			return shared.Validationf("cut quantity %d must be positive, got %s", i+1, qty.String())
		}
	}
	return nil
}

// ReceiveDelivery records one batch of returned cuts. New fabric numbers are
// minted from the order's forward-only cursor; ceilings are checked against
// the exact running totals, never a rounded display value.
func (s *Service) ReceiveDelivery(ctx context.Context, input DeliveryInput) (ProcessingOrder, error) {
	if err := validateDeliveryInput(input); err != nil {
		return ProcessingOrder{}, err
	}

	var idemKey string
	if s.idempotency != nil {
		// Keyed per order+delivery number so a replayed submission of the same
		// delivery is rejected rather than double-counted.
		order, err := s.repo.Get(ctx, input.OrderID)
		if err != nil {
			return ProcessingOrder{}, err
		}
		idemKey = fmt.Sprintf("%s:%s", order.OrderFormNumber, strings.TrimSpace(input.DeliveryNumber))
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "processing.delivery"); err != nil {
			if err == shared.ErrIdempotencyConflict {
				return ProcessingOrder{}, shared.Validationf("delivery %s already recorded for order %s", input.DeliveryNumber, order.OrderFormNumber)
			}
			return ProcessingOrder{}, err
		}
	}

	var updated ProcessingOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		cutsAlready := len(order.ReceivedCuts)
		already := decimal.Zero
		for _, rc := range order.ReceivedCuts {
			already = already.Add(rc.Quantity)
		}
		sentCount := len(order.SentFabricCuts)

		if cutsAlready+len(input.CutQuantities) > sentCount {
			return shared.CapacityExceeded(
				fmt.Sprintf("processing order %s cut count", order.OrderFormNumber),
				decimal.NewFromInt(int64(sentCount)),
				decimal.NewFromInt(int64(cutsAlready+len(input.CutQuantities))),
			)
		}
		batchTotal := decimal.Zero
		for _, qty := range input.CutQuantities {
			batchTotal = batchTotal.Add(qty)
		}
		attempted := already.Add(batchTotal)
		if attempted.GreaterThan(order.TotalQuantity) {
			return shared.CapacityExceeded(
				fmt.Sprintf("processing order %s quantity", order.OrderFormNumber),
				order.TotalQuantity,
				attempted,
			)
		}

		delivery := Delivery{
			DeliveryNumber:        strings.TrimSpace(input.DeliveryNumber),
			ReceivedBy:            strings.TrimSpace(input.ReceivedBy),
			Location:              input.Location,
			CutsReceived:          len(input.CutQuantities),
			TotalQuantityReceived: batchTotal,
			ReceivedAt:            time.Now(),
		}
		deliveryID, err := tx.InsertDelivery(ctx, input.OrderID, delivery)
		if err != nil {
			return err
		}
		cursor := order.NextCutSeq
		for _, qty := range input.CutQuantities {
			rc := ReceivedCut{
				DeliveryID:   deliveryID,
				FabricNumber: shared.FormatReturnCutNumber(order.OrderFormSeq, cursor),
				Quantity:     qty,
			}
			cursor++
			if err := tx.InsertReceivedCut(ctx, input.OrderID, rc); err != nil {
				return err
			}
		}

		status := DeriveStatus(cutsAlready+len(input.CutQuantities), sentCount, len(order.Deliveries)+1)
		if err := tx.UpdateOrderState(ctx, input.OrderID, status, cursor); err != nil {
			return err
		}
		if err := tx.SetSourceCutsReceived(ctx, input.OrderID, status == StatusCompleted); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if idemKey != "" {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return ProcessingOrder{}, err
	}
	updated, err = s.repo.Get(ctx, input.OrderID)
	if err != nil {
		return ProcessingOrder{}, err
	}
	s.recordAudit(ctx, "PROCESSING_RECEIVE", updated.ID, map[string]any{
		"order_form": updated.OrderFormNumber,
		"delivery":   input.DeliveryNumber,
		"cuts":       len(input.CutQuantities),
	})
	return updated, nil
}

// EditDeliveryInput replaces a past delivery's metadata and quantities.
type EditDeliveryInput struct {
	OrderID        int64
	DeliveryIndex  int
	DeliveryNumber string
	ReceivedBy     string
	Location       shared.Location
	CutQuantities  []decimal.Decimal
}

// EditDelivery rewrites one past delivery in place. The delivery keeps its
// fabric numbers, so the new quantity list must match its cut count; ceilings
// are re-validated against all other deliveries' totals.
func (s *Service) EditDelivery(ctx context.Context, input EditDeliveryInput) (ProcessingOrder, error) {
	if err := validateDeliveryInput(DeliveryInput{
		OrderID:        input.OrderID,
		DeliveryNumber: input.DeliveryNumber,
		ReceivedBy:     input.ReceivedBy,
		Location:       input.Location,
		CutQuantities:  input.CutQuantities,
	}); err != nil {
		return ProcessingOrder{}, err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if input.DeliveryIndex < 0 || input.DeliveryIndex >= len(order.Deliveries) {
			return shared.NotFound("delivery")
		}
		target := order.Deliveries[input.DeliveryIndex]
		var targetCuts []ReceivedCut
		othersCount := 0
		othersTotal := decimal.Zero
		for _, rc := range order.ReceivedCuts {
			if rc.DeliveryID == target.ID {
				targetCuts = append(targetCuts, rc)
				continue
			}
			othersCount++
			othersTotal = othersTotal.Add(rc.Quantity)
		}
		if len(input.CutQuantities) != len(targetCuts) {
			return shared.Validationf("delivery holds %d cuts, got %d quantities; fabric numbers are retained on edit",
				len(targetCuts), len(input.CutQuantities))
		}
		sentCount := len(order.SentFabricCuts)
		if othersCount+len(input.CutQuantities) > sentCount {
			return shared.CapacityExceeded(
				fmt.Sprintf("processing order %s cut count", order.OrderFormNumber),
				decimal.NewFromInt(int64(sentCount)),
				decimal.NewFromInt(int64(othersCount+len(input.CutQuantities))),
			)
		}
		batchTotal := decimal.Zero
		for _, qty := range input.CutQuantities {
			batchTotal = batchTotal.Add(qty)
		}
		attempted := othersTotal.Add(batchTotal)
		if attempted.GreaterThan(order.TotalQuantity) {
			return shared.CapacityExceeded(
				fmt.Sprintf("processing order %s quantity", order.OrderFormNumber),
				order.TotalQuantity,
				attempted,
			)
		}

		target.DeliveryNumber = strings.TrimSpace(input.DeliveryNumber)
		target.ReceivedBy = strings.TrimSpace(input.ReceivedBy)
		target.Location = input.Location
		target.CutsReceived = len(input.CutQuantities)
		target.TotalQuantityReceived = batchTotal
		if err := tx.UpdateDelivery(ctx, target); err != nil {
			return err
		}
		for i, rc := range targetCuts {
			if err := tx.UpdateReceivedCutQuantity(ctx, rc.ID, input.CutQuantities[i]); err != nil {
				return err
			}
		}

		status := DeriveStatus(othersCount+len(input.CutQuantities), sentCount, len(order.Deliveries))
		if err := tx.UpdateOrderState(ctx, input.OrderID, status, order.NextCutSeq); err != nil {
			return err
		}
		return tx.SetSourceCutsReceived(ctx, input.OrderID, status == StatusCompleted)
	})
	if err != nil {
		return ProcessingOrder{}, err
	}
	updated, err := s.repo.Get(ctx, input.OrderID)
	if err != nil {
		return ProcessingOrder{}, err
	}
	s.recordAudit(ctx, "PROCESSING_EDIT_DELIVERY", updated.ID, map[string]any{
		"order_form": updated.OrderFormNumber,
		"index":      input.DeliveryIndex,
	})
	return updated, nil
}

// DeleteDelivery removes one past delivery and its received cuts. The
// numbering cursor is left untouched, so the deleted delivery's fabric
// numbers are never minted again.
func (s *Service) DeleteDelivery(ctx context.Context, orderID int64, deliveryIndex int) (ProcessingOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if deliveryIndex < 0 || deliveryIndex >= len(order.Deliveries) {
			return shared.NotFound("delivery")
		}
		target := order.Deliveries[deliveryIndex]
		if err := tx.DeleteDelivery(ctx, target.ID); err != nil {
			return err
		}
		remainingCuts := 0
		for _, rc := range order.ReceivedCuts {
			if rc.DeliveryID != target.ID {
				remainingCuts++
			}
		}
		status := DeriveStatus(remainingCuts, len(order.SentFabricCuts), len(order.Deliveries)-1)
		if err := tx.UpdateOrderState(ctx, orderID, status, order.NextCutSeq); err != nil {
			return err
		}
		return tx.SetSourceCutsReceived(ctx, orderID, status == StatusCompleted)
	})
	if err != nil {
		return ProcessingOrder{}, err
	}
	updated, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return ProcessingOrder{}, err
	}
	s.recordAudit(ctx, "PROCESSING_DELETE_DELIVERY", orderID, map[string]any{"index": deliveryIndex})
	return updated, nil
}

// CheckFabricCutUsed is the read-only guard exposed to the send path and to
// scanning stations.
func (s *Service) CheckFabricCutUsed(ctx context.Context, fabricNumber string) (Usage, error) {
	if strings.TrimSpace(fabricNumber) == "" {
		return Usage{}, shared.Validationf("fabric number is required")
	}
	return s.repo.CheckUsage(ctx, fabricNumber)
}

// Get returns one order with its full history.
func (s *Service) Get(ctx context.Context, orderID int64) (ProcessingOrder, error) {
	return s.repo.Get(ctx, orderID)
}

// List returns order headers matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]ProcessingOrder, int, error) {
	return s.repo.List(ctx, filters)
}

// Summarize recomputes the authoritative sent/received/shortage balance.
func (s *Service) Summarize(ctx context.Context, orderID int64) (Summary, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Summary{}, err
	}
	received := decimal.Zero
	for _, rc := range order.ReceivedCuts {
		received = received.Add(rc.Quantity)
	}
	return Summary{
		OrderFormNumber:  order.OrderFormNumber,
		SentCuts:         len(order.SentFabricCuts),
		SentQuantity:     order.TotalQuantity,
		ReceivedCuts:     len(order.ReceivedCuts),
		ReceivedQuantity: received,
		ShortageCuts:     len(order.SentFabricCuts) - len(order.ReceivedCuts),
		ShortageQuantity: order.TotalQuantity.Sub(received),
		Status:           order.Status,
	}, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "processing_orders", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
