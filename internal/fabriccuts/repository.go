package fabriccuts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/athitex/fabricledger/internal/platform/db"
	"github.com/athitex/fabricledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockWarp(ctx context.Context, warpID int64) error
	SumQuantityForWarp(ctx context.Context, warpID int64) (decimal.Decimal, error)
	MaxCutIndex(ctx context.Context, warpID int64) (int, error)
	InsertCut(ctx context.Context, cut FabricCut) (int64, error)
	GetCutForUpdate(ctx context.Context, id int64) (FabricCut, error)
	UpdateInspection(ctx context.Context, cut FabricCut) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const cutColumns = `id, fabric_number, cut_index, warp_id, warp_number, quantity, location,
has_inspection, inspected_quantity, mistake_quantity, actual_quantity, mistakes,
inspector1, inspector2, inspected_at, processing_order_id, is_processing_received,
invoice_submitted, created_at`

func scanCut(row pgx.Row) (FabricCut, error) {
	var c FabricCut
	var location string
	err := row.Scan(&c.ID, &c.FabricNumber, &c.CutIndex, &c.WarpID, &c.WarpNumber, &c.Quantity, &location,
		&c.HasInspection, &c.InspectedQuantity, &c.MistakeQuantity, &c.ActualQuantity, &c.Mistakes,
		&c.Inspector1, &c.Inspector2, &c.InspectedAt, &c.ProcessingOrderID, &c.IsProcessingReceived,
		&c.InvoiceSubmitted, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FabricCut{}, shared.NotFound("fabric cut")
		}
		return FabricCut{}, err
	}
	c.Location = shared.Location(location)
	return c, nil
}

// Get returns one fabric cut by id.
func (r *Repository) Get(ctx context.Context, id int64) (FabricCut, error) {
	return scanCut(r.pool.QueryRow(ctx, `SELECT `+cutColumns+` FROM fabric_cuts WHERE id=$1 AND deleted_at IS NULL`, id))
}

// GetByNumber returns one fabric cut by its fabric number.
func (r *Repository) GetByNumber(ctx context.Context, fabricNumber string) (FabricCut, error) {
	return scanCut(r.pool.QueryRow(ctx, `SELECT `+cutColumns+` FROM fabric_cuts WHERE fabric_number=$1 AND deleted_at IS NULL`, fabricNumber))
}

// ListForWarp returns all non-deleted cuts of a warp ordered by cut index.
func (r *Repository) ListForWarp(ctx context.Context, warpID int64) ([]FabricCut, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+cutColumns+` FROM fabric_cuts WHERE warp_id=$1 AND deleted_at IS NULL ORDER BY id`, warpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cuts []FabricCut
	for rows.Next() {
		cut, err := scanCut(rows)
		if err != nil {
			return nil, err
		}
		cuts = append(cuts, cut)
	}
	return cuts, rows.Err()
}

func (t *txRepo) LockWarp(ctx context.Context, warpID int64) error {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM warps WHERE id=$1 FOR UPDATE`, warpID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.NotFound("warp")
		}
		return err
	}
	return nil
}

func (t *txRepo) SumQuantityForWarp(ctx context.Context, warpID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM fabric_cuts WHERE warp_id=$1 AND deleted_at IS NULL`, warpID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (t *txRepo) MaxCutIndex(ctx context.Context, warpID int64) (int, error) {
	var max int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(cut_index), 0) FROM fabric_cuts WHERE warp_id=$1`, warpID).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max, nil
}

func (t *txRepo) InsertCut(ctx context.Context, cut FabricCut) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO fabric_cuts (fabric_number, cut_index, warp_id, warp_number, quantity, location)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		cut.FabricNumber, cut.CutIndex, cut.WarpID, cut.WarpNumber, cut.Quantity, string(cut.Location)).Scan(&id)
	return id, err
}

func (t *txRepo) GetCutForUpdate(ctx context.Context, id int64) (FabricCut, error) {
	return scanCut(t.tx.QueryRow(ctx, `SELECT `+cutColumns+` FROM fabric_cuts WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id))
}

func (t *txRepo) UpdateInspection(ctx context.Context, cut FabricCut) error {
	tag, err := t.tx.Exec(ctx, `UPDATE fabric_cuts SET has_inspection=true, inspected_quantity=$2,
mistake_quantity=$3, actual_quantity=$4, mistakes=$5, inspector1=$6, inspector2=$7, inspected_at=NOW()
WHERE id=$1 AND deleted_at IS NULL`,
		cut.ID, cut.InspectedQuantity, cut.MistakeQuantity, cut.ActualQuantity, cut.Mistakes, cut.Inspector1, cut.Inspector2)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("fabric cut")
	}
	return nil
}
