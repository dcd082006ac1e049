package warps

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

// Create inserts a warp and returns its id.
func (r *Repository) Create(ctx context.Context, w Warp) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO warps (warp_number, quantity, order_ref, loom_ref, status)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		w.WarpNumber, w.Quantity, w.OrderRef, w.LoomRef, string(w.Status)).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns a warp by id.
func (r *Repository) Get(ctx context.Context, id int64) (Warp, error) {
	return r.scanOne(ctx, `SELECT id, warp_number, quantity, order_ref, loom_ref, status, created_at FROM warps WHERE id=$1`, id)
}

// GetByNumber returns a warp by its warp number.
func (r *Repository) GetByNumber(ctx context.Context, warpNumber string) (Warp, error) {
	return r.scanOne(ctx, `SELECT id, warp_number, quantity, order_ref, loom_ref, status, created_at FROM warps WHERE warp_number=$1`, warpNumber)
}

func (r *Repository) scanOne(ctx context.Context, query string, arg any) (Warp, error) {
	var w Warp
	var status string
	err := r.pool.QueryRow(ctx, query, arg).
		Scan(&w.ID, &w.WarpNumber, &w.Quantity, &w.OrderRef, &w.LoomRef, &status, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warp{}, shared.NotFound("warp")
		}
		return Warp{}, err
	}
	w.Status = Status(status)
	return w, nil
}

// List returns warps matching filters plus the unfiltered total.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Warp, int, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT id, warp_number, quantity, order_ref, loom_ref, status, created_at
FROM warps
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR warp_number ILIKE '%' || $2 || '%' OR order_ref ILIKE '%' || $2 || '%')
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`, filters.Status, filters.Search, limit, filters.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Warp
	for rows.Next() {
		var w Warp
		var status string
		if err := rows.Scan(&w.ID, &w.WarpNumber, &w.Quantity, &w.OrderRef, &w.LoomRef, &status, &w.CreatedAt); err != nil {
			return nil, 0, err
		}
		w.Status = Status(status)
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	var total int
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warps
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR warp_number ILIKE '%' || $2 || '%' OR order_ref ILIKE '%' || $2 || '%')`,
		filters.Status, filters.Search).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateStatus changes a warp's lifecycle status.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warps SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("warp")
	}
	return nil
}
