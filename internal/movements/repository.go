package movements

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

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

// CutRef is the slice of fabric cut state the movement ledger needs.
type CutRef struct {
	ID           int64
	FabricNumber string
	Quantity     decimal.Decimal
	Location     shared.Location
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
	GetCutForMove(ctx context.Context, cutID int64) (CutRef, error)
	PendingMovementForCut(ctx context.Context, cutID int64) (string, bool, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	InsertMovementCut(ctx context.Context, movementID, cutID int64) error
	GetMovementForUpdate(ctx context.Context, id int64) (Movement, error)
	MarkReceived(ctx context.Context, id int64, receivedBy string, receivedAt time.Time) error
	RelocateCuts(ctx context.Context, movementID int64, to shared.Location) error
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

func (t *txRepo) GetCutForMove(ctx context.Context, cutID int64) (CutRef, error) {
	var ref CutRef
	var location string
	err := t.tx.QueryRow(ctx, `SELECT id, fabric_number, quantity, location FROM fabric_cuts
WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, cutID).
		Scan(&ref.ID, &ref.FabricNumber, &ref.Quantity, &location)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CutRef{}, shared.NotFound("fabric cut")
		}
		return CutRef{}, err
	}
	ref.Location = shared.Location(location)
	return ref, nil
}

func (t *txRepo) PendingMovementForCut(ctx context.Context, cutID int64) (string, bool, error) {
	var number string
	err := t.tx.QueryRow(ctx, `SELECT m.movement_order_number FROM movements m
JOIN movement_cuts mc ON mc.movement_id = m.id
WHERE mc.fabric_cut_id=$1 AND m.status=$2 LIMIT 1`, cutID, string(StatusPending)).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return number, true, nil
}

func (t *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO movements (movement_order_number, from_location, to_location, moved_by, status)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		m.MovementOrderNumber, string(m.FromLocation), string(m.ToLocation), m.MovedBy, string(m.Status)).Scan(&id)
	return id, err
}

func (t *txRepo) InsertMovementCut(ctx context.Context, movementID, cutID int64) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO movement_cuts (movement_id, fabric_cut_id) VALUES ($1, $2)`, movementID, cutID)
	return err
}

func (t *txRepo) GetMovementForUpdate(ctx context.Context, id int64) (Movement, error) {
	m, err := scanMovement(t.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Movement{}, err
	}
	m.Cuts, err = queryMovementCuts(ctx, t.tx, id)
	return m, err
}

func (t *txRepo) MarkReceived(ctx context.Context, id int64, receivedBy string, receivedAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE movements SET status=$2, received_by=$3, received_at=$4 WHERE id=$1`,
		id, string(StatusReceived), receivedBy, receivedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("movement")
	}
	return nil
}

func (t *txRepo) RelocateCuts(ctx context.Context, movementID int64, to shared.Location) error {
	_, err := t.tx.Exec(ctx, `UPDATE fabric_cuts SET location=$2
WHERE id IN (SELECT fabric_cut_id FROM movement_cuts WHERE movement_id=$1)`, movementID, string(to))
	return err
}

const movementColumns = `id, movement_order_number, from_location, to_location, moved_by, status, received_by, received_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (Movement, error) {
	var m Movement
	var from, to, status string
	err := row.Scan(&m.ID, &m.MovementOrderNumber, &from, &to, &m.MovedBy, &status, &m.ReceivedBy, &m.ReceivedAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, shared.NotFound("movement")
		}
		return Movement{}, err
	}
	m.FromLocation = shared.Location(from)
	m.ToLocation = shared.Location(to)
	m.Status = Status(status)
	return m, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryMovementCuts(ctx context.Context, q queryer, movementID int64) ([]MovementCut, error) {
	rows, err := q.Query(ctx, `SELECT fc.id, fc.fabric_number, fc.quantity
FROM movement_cuts mc JOIN fabric_cuts fc ON fc.id = mc.fabric_cut_id
WHERE mc.movement_id=$1 ORDER BY fc.id`, movementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cuts []MovementCut
	for rows.Next() {
		var c MovementCut
		if err := rows.Scan(&c.FabricCutID, &c.FabricNumber, &c.Quantity); err != nil {
			return nil, err
		}
		cuts = append(cuts, c)
	}
	return cuts, rows.Err()
}

// Get returns a movement with its cuts.
func (r *Repository) Get(ctx context.Context, id int64) (Movement, error) {
	m, err := scanMovement(r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements WHERE id=$1`, id))
	if err != nil {
		return Movement{}, err
	}
	m.Cuts, err = queryMovementCuts(ctx, r.pool, id)
	return m, err
}

// List returns movements matching filters plus the total.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Movement, int, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM movements
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC LIMIT $2 OFFSET $3`, filters.Status, limit, filters.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM movements WHERE ($1 = '' OR status = $1)`, filters.Status).Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
