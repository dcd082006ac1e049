package wages

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/athitex/fabricledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (WageInvoice, error)
	List(ctx context.Context, filters ListFilters) ([]WageInvoice, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort records the approval history of an invoice.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service drives the wage invoice workflow.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	approvals ApprovalPort
	events    EventPublisher
}

// NewService constructs wage service.
func NewService(repo RepositoryPort, audit AuditPort, approvals ApprovalPort, events EventPublisher) *Service {
	return &Service{repo: repo, audit: audit, approvals: approvals, events: events}
}

// SubmitInput describes an invoice submission.
type SubmitInput struct {
	WarpID       int64
	RatePerMeter decimal.Decimal
	ActorID      int64
}

// Submit snapshots the warp's inspected, unclaimed cuts into a pending
// invoice. Totals are derived from the snapshot at submission time, never
// from caller-supplied aggregates. The cut locks and the invoice commit or
// roll back together.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (WageInvoice, error) {
	if !input.RatePerMeter.IsPositive() {
		return WageInvoice{}, shared.Validationf("ratePerMeter must be positive, got %s", input.RatePerMeter)
	}
	var created WageInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		warp, err := tx.LockWarp(ctx, input.WarpID)
		if err != nil {
			return err
		}
		cuts, err := tx.EligibleCutsForWarp(ctx, input.WarpID)
		if err != nil {
			return err
		}
		if len(cuts) == 0 {
			return shared.Validationf("warp %s has no inspected fabric cuts available for invoicing", warp.WarpNumber)
		}
		ids := make([]int64, 0, len(cuts))
		actual := decimal.Zero
		for _, cut := range cuts {
			ids = append(ids, cut.FabricCutID)
			actual = actual.Add(cut.ActualQuantity)
		}
		if err := tx.MarkCutsInvoiceSubmitted(ctx, ids); err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, shared.InvoiceScope(warp.WarpNumber))
		if err != nil {
			return err
		}
		inv := WageInvoice{
			RefID:          uuid.New(),
			InvoiceNumber:  shared.FormatInvoiceNumber(warp.WarpNumber, seq),
			WarpID:         warp.ID,
			WarpNumber:     warp.WarpNumber,
			RatePerMeter:   input.RatePerMeter,
			ActualQuantity: actual,
			TotalWages:     actual.Mul(input.RatePerMeter),
			Status:         StatusPending,
		}
		invoiceID, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		for _, cut := range cuts {
			if err := tx.InsertInvoiceCut(ctx, invoiceID, cut); err != nil {
				return err
			}
		}
		inv.ID = invoiceID
		inv.Cuts = cuts
		created = inv
		return nil
	})
	if err != nil {
		return WageInvoice{}, err
	}
	s.recordApproval(ctx, created, shared.ApprovalSubmit, input.ActorID, "")
	s.recordAudit(ctx, "INVOICE_SUBMIT", created.ID, map[string]any{
		"number": created.InvoiceNumber,
		"warp":   created.WarpNumber,
		"cuts":   len(created.Cuts),
	})
	return created, nil
}

// UpdatedValues optionally overwrites the submitted aggregates at approval.
type UpdatedValues struct {
	ActualQuantity *decimal.Decimal
	RatePerMeter   *decimal.Decimal
}

// DecideInput describes an approve/reject decision.
type DecideInput struct {
	InvoiceID int64
	Approve   bool
	Updated   *UpdatedValues
	ActorID   int64
	Note      string
}

// Decide resolves a pending invoice. Approval may overwrite the aggregate
// quantity and rate from the review step; any change flips
// valuesUpdatedDuringApproval and total wages are recomputed from the final
// values. Rejection accepts no value changes.
func (s *Service) Decide(ctx context.Context, input DecideInput) (WageInvoice, error) {
	if !input.Approve && input.Updated != nil {
		return WageInvoice{}, shared.Validationf("rejecting an invoice accepts no value changes")
	}
	var decided WageInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusPending {
			return shared.StateConflict(
				fmt.Sprintf("wage invoice %s", inv.InvoiceNumber),
				string(inv.Status), string(StatusPending),
			)
		}
		if input.Approve {
			if input.Updated != nil {
				if q := input.Updated.ActualQuantity; q != nil {
					if q.IsNegative() {
						return shared.Validationf("actualQuantity must not be negative, got %s", q)
					}
					if !q.Equal(inv.ActualQuantity) {
						inv.ValuesUpdatedDuringApproval = true
					}
					inv.ActualQuantity = *q
				}
				if r := input.Updated.RatePerMeter; r != nil {
					if !r.IsPositive() {
						return shared.Validationf("ratePerMeter must be positive, got %s", r)
					}
					if !r.Equal(inv.RatePerMeter) {
						inv.ValuesUpdatedDuringApproval = true
					}
					inv.RatePerMeter = *r
				}
			}
			inv.TotalWages = inv.ActualQuantity.Mul(inv.RatePerMeter)
			inv.Status = StatusApproved
			now := time.Now()
			inv.ApprovedAt = &now
		} else {
			inv.Status = StatusRejected
		}
		if err := tx.UpdateDecision(ctx, inv); err != nil {
			return err
		}
		decided = inv
		return nil
	})
	if err != nil {
		return WageInvoice{}, err
	}
	if input.Approve {
		s.recordApproval(ctx, decided, shared.ApprovalApprove, input.ActorID, input.Note)
		s.publish(ctx, decided)
	} else {
		s.recordApproval(ctx, decided, shared.ApprovalReject, input.ActorID, input.Note)
	}
	s.recordAudit(ctx, "INVOICE_DECIDE", decided.ID, map[string]any{
		"number": decided.InvoiceNumber,
		"status": string(decided.Status),
	})
	return decided, nil
}

// MarkPaid settles an approved invoice.
func (s *Service) MarkPaid(ctx context.Context, invoiceID, actorID int64) (WageInvoice, error) {
	var paid WageInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusApproved {
			return shared.StateConflict(
				fmt.Sprintf("wage invoice %s", inv.InvoiceNumber),
				string(inv.Status), string(StatusApproved),
			)
		}
		now := time.Now()
		if err := tx.MarkPaid(ctx, inv.ID, now); err != nil {
			return err
		}
		inv.Status = StatusPaymentDone
		inv.PaidAt = &now
		paid = inv
		return nil
	})
	if err != nil {
		return WageInvoice{}, err
	}
	s.recordApproval(ctx, paid, shared.ApprovalPayment, actorID, "")
	s.publish(ctx, paid)
	s.recordAudit(ctx, "INVOICE_PAYMENT", paid.ID, map[string]any{"number": paid.InvoiceNumber})
	return paid, nil
}

// Delete removes a pending or rejected invoice and releases its cuts for
// resubmission.
func (s *Service) Delete(ctx context.Context, invoiceID int64) error {
	var deleted WageInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusPending && inv.Status != StatusRejected {
			return shared.StateConflict(
				fmt.Sprintf("wage invoice %s", inv.InvoiceNumber),
				string(inv.Status),
				fmt.Sprintf("%s or %s", StatusPending, StatusRejected),
			)
		}
		if err := tx.ReleaseCuts(ctx, inv.ID); err != nil {
			return err
		}
		if err := tx.DeleteInvoice(ctx, inv.ID); err != nil {
			return err
		}
		deleted = inv
		return nil
	})
	if err != nil {
		return err
	}
	deleted.Status = "DELETED"
	s.publish(ctx, deleted)
	s.recordAudit(ctx, "INVOICE_DELETE", deleted.ID, map[string]any{"number": deleted.InvoiceNumber})
	return nil
}

// Get returns one invoice with its cut snapshot.
func (s *Service) Get(ctx context.Context, id int64) (WageInvoice, error) {
	return s.repo.Get(ctx, id)
}

// List returns invoices matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]WageInvoice, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) publish(ctx context.Context, inv WageInvoice) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, InvoiceStatusEvent{
		InvoiceID: inv.ID,
		WarpID:    inv.WarpID,
		NewStatus: string(inv.Status),
	})
}

func (s *Service) recordApproval(ctx context.Context, inv WageInvoice, action shared.ApprovalAction, actorID int64, note string) {
	if s.approvals == nil || actorID == 0 {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "wage_invoices",
		RefID:   inv.RefID,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "wage_invoices", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
