package wages

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/athitex/fabricledger/internal/platform/db"
	"github.com/athitex/fabricledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool      *pgxpool.Pool
	sequences shared.Sequences
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WarpRef is the slice of warp state the wage workflow needs.
type WarpRef struct {
	ID         int64
	WarpNumber string
	Status     string
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
	LockWarp(ctx context.Context, warpID int64) (WarpRef, error)
	EligibleCutsForWarp(ctx context.Context, warpID int64) ([]InvoiceCut, error)
	MarkCutsInvoiceSubmitted(ctx context.Context, cutIDs []int64) error
	ReleaseCuts(ctx context.Context, invoiceID int64) error
	InsertInvoice(ctx context.Context, inv WageInvoice) (int64, error)
	InsertInvoiceCut(ctx context.Context, invoiceID int64, cut InvoiceCut) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (WageInvoice, error)
	UpdateDecision(ctx context.Context, inv WageInvoice) error
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) error
	DeleteInvoice(ctx context.Context, id int64) error
}

type txRepo struct {
	tx        pgx.Tx
	sequences shared.Sequences
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, sequences: r.sequences})
	})
}

func (t *txRepo) NextSequence(ctx context.Context, scope string) (int64, error) {
	return t.sequences.Next(ctx, t.tx, scope)
}

func (t *txRepo) LockWarp(ctx context.Context, warpID int64) (WarpRef, error) {
	var ref WarpRef
	err := t.tx.QueryRow(ctx, `SELECT id, warp_number, status FROM warps WHERE id=$1 FOR UPDATE`, warpID).
		Scan(&ref.ID, &ref.WarpNumber, &ref.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WarpRef{}, shared.NotFound("warp")
		}
		return WarpRef{}, err
	}
	return ref, nil
}

// EligibleCutsForWarp returns the inspected, not yet invoice-locked cuts of a
// warp, locked for the duration of the submission transaction.
func (t *txRepo) EligibleCutsForWarp(ctx context.Context, warpID int64) ([]InvoiceCut, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, fabric_number, quantity, inspected_quantity, mistake_quantity,
actual_quantity, inspector1, inspector2
FROM fabric_cuts
WHERE warp_id=$1 AND deleted_at IS NULL AND has_inspection AND NOT invoice_submitted
ORDER BY cut_index FOR UPDATE`, warpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cuts []InvoiceCut
	for rows.Next() {
		var c InvoiceCut
		if err := rows.Scan(&c.FabricCutID, &c.FabricNumber, &c.Quantity, &c.InspectedQuantity,
			&c.MistakeQuantity, &c.ActualQuantity, &c.Inspector1, &c.Inspector2); err != nil {
			return nil, err
		}
		cuts = append(cuts, c)
	}
	return cuts, rows.Err()
}

// MarkCutsInvoiceSubmitted flips the invoice lock on every cut. The update is
// conditional on the lock being free; a short row count means another
// submission claimed a cut first.
func (t *txRepo) MarkCutsInvoiceSubmitted(ctx context.Context, cutIDs []int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE fabric_cuts SET invoice_submitted=true
WHERE id = ANY($1) AND NOT invoice_submitted AND deleted_at IS NULL`, cutIDs)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(cutIDs) {
		return shared.ClaimConflict("fabric cuts", "another wage invoice")
	}
	return nil
}

func (t *txRepo) ReleaseCuts(ctx context.Context, invoiceID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE fabric_cuts SET invoice_submitted=false
WHERE id IN (SELECT fabric_cut_id FROM wage_invoice_cuts WHERE invoice_id=$1)`, invoiceID)
	return err
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv WageInvoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO wage_invoices (ref_id, invoice_number, warp_id, warp_number,
rate_per_meter, actual_quantity, total_wages, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		inv.RefID, inv.InvoiceNumber, inv.WarpID, inv.WarpNumber,
		inv.RatePerMeter, inv.ActualQuantity, inv.TotalWages, string(inv.Status)).Scan(&id)
	return id, err
}

func (t *txRepo) InsertInvoiceCut(ctx context.Context, invoiceID int64, cut InvoiceCut) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO wage_invoice_cuts (invoice_id, fabric_cut_id, fabric_number,
quantity, inspected_quantity, mistake_quantity, actual_quantity, inspector1, inspector2)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		invoiceID, cut.FabricCutID, cut.FabricNumber, cut.Quantity,
		cut.InspectedQuantity, cut.MistakeQuantity, cut.ActualQuantity, cut.Inspector1, cut.Inspector2)
	return err
}

func (t *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (WageInvoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM wage_invoices WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return WageInvoice{}, err
	}
	inv.Cuts, err = queryInvoiceCuts(ctx, t.tx, id)
	return inv, err
}

func (t *txRepo) UpdateDecision(ctx context.Context, inv WageInvoice) error {
	tag, err := t.tx.Exec(ctx, `UPDATE wage_invoices SET status=$2, rate_per_meter=$3, actual_quantity=$4,
total_wages=$5, values_updated_during_approval=$6, approved_at=$7 WHERE id=$1`,
		inv.ID, string(inv.Status), inv.RatePerMeter, inv.ActualQuantity,
		inv.TotalWages, inv.ValuesUpdatedDuringApproval, inv.ApprovedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("wage invoice")
	}
	return nil
}

func (t *txRepo) MarkPaid(ctx context.Context, id int64, paidAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE wage_invoices SET status=$2, paid_at=$3 WHERE id=$1`,
		id, string(StatusPaymentDone), paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("wage invoice")
	}
	return nil
}

func (t *txRepo) DeleteInvoice(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM wage_invoice_cuts WHERE invoice_id=$1`, id); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM wage_invoices WHERE id=$1`, id)
	return err
}

const invoiceColumns = `id, ref_id, invoice_number, warp_id, warp_number, rate_per_meter,
actual_quantity, total_wages, status, values_updated_during_approval, approved_at, paid_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (WageInvoice, error) {
	var inv WageInvoice
	var status string
	err := row.Scan(&inv.ID, &inv.RefID, &inv.InvoiceNumber, &inv.WarpID, &inv.WarpNumber, &inv.RatePerMeter,
		&inv.ActualQuantity, &inv.TotalWages, &status, &inv.ValuesUpdatedDuringApproval,
		&inv.ApprovedAt, &inv.PaidAt, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WageInvoice{}, shared.NotFound("wage invoice")
		}
		return WageInvoice{}, err
	}
	inv.Status = Status(status)
	return inv, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryInvoiceCuts(ctx context.Context, q queryer, invoiceID int64) ([]InvoiceCut, error) {
	rows, err := q.Query(ctx, `SELECT id, fabric_cut_id, fabric_number, quantity, inspected_quantity,
mistake_quantity, actual_quantity, inspector1, inspector2
FROM wage_invoice_cuts WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cuts []InvoiceCut
	for rows.Next() {
		var c InvoiceCut
		if err := rows.Scan(&c.ID, &c.FabricCutID, &c.FabricNumber, &c.Quantity, &c.InspectedQuantity,
			&c.MistakeQuantity, &c.ActualQuantity, &c.Inspector1, &c.Inspector2); err != nil {
			return nil, err
		}
		cuts = append(cuts, c)
	}
	return cuts, rows.Err()
}

// Get returns one invoice with its cut snapshot.
func (r *Repository) Get(ctx context.Context, id int64) (WageInvoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM wage_invoices WHERE id=$1`, id))
	if err != nil {
		return WageInvoice{}, err
	}
	inv.Cuts, err = queryInvoiceCuts(ctx, r.pool, id)
	return inv, err
}

// List returns invoices matching filters plus the total.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]WageInvoice, int, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM wage_invoices
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR warp_id = $2)
ORDER BY created_at DESC LIMIT $3 OFFSET $4`, filters.Status, filters.WarpID, limit, filters.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []WageInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM wage_invoices
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR warp_id = $2)`, filters.Status, filters.WarpID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
