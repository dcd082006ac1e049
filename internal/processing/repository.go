package processing

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
	pool      *pgxpool.Pool
	sequences shared.Sequences
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SourceCut is the slice of fabric cut state the send path needs. HeldBy
// carries the order form number of the claiming order, when any.
type SourceCut struct {
	ID                int64
	FabricNumber      string
	WarpNumber        string
	OrderRef          string
	HasInspection     bool
	InspectedQuantity decimal.Decimal
	HeldBy            *string
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
	GetSourceCut(ctx context.Context, cutID int64) (SourceCut, error)
	InsertOrder(ctx context.Context, o ProcessingOrder) (int64, error)
	ClaimCut(ctx context.Context, cutID, orderID int64) (bool, error)
	InsertSentCut(ctx context.Context, orderID int64, sc SentCut) error
	GetOrderForUpdate(ctx context.Context, orderID int64) (ProcessingOrder, error)
	InsertDelivery(ctx context.Context, orderID int64, d Delivery) (int64, error)
	InsertReceivedCut(ctx context.Context, orderID int64, rc ReceivedCut) error
	UpdateDelivery(ctx context.Context, d Delivery) error
	UpdateReceivedCutQuantity(ctx context.Context, id int64, qty decimal.Decimal) error
	DeleteDelivery(ctx context.Context, deliveryID int64) error
	UpdateOrderState(ctx context.Context, orderID int64, status Status, nextCutSeq int) error
	SetSourceCutsReceived(ctx context.Context, orderID int64, received bool) error
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

func (t *txRepo) GetSourceCut(ctx context.Context, cutID int64) (SourceCut, error) {
	var sc SourceCut
	err := t.tx.QueryRow(ctx, `SELECT fc.id, fc.fabric_number, fc.warp_number, w.order_ref,
fc.has_inspection, fc.inspected_quantity, po.order_form_number
FROM fabric_cuts fc
JOIN warps w ON w.id = fc.warp_id
LEFT JOIN processing_orders po ON po.id = fc.processing_order_id
WHERE fc.id=$1 AND fc.deleted_at IS NULL
FOR UPDATE OF fc`, cutID).
		Scan(&sc.ID, &sc.FabricNumber, &sc.WarpNumber, &sc.OrderRef, &sc.HasInspection, &sc.InspectedQuantity, &sc.HeldBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SourceCut{}, shared.NotFound("fabric cut")
		}
		return SourceCut{}, err
	}
	return sc, nil
}

func (t *txRepo) InsertOrder(ctx context.Context, o ProcessingOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO processing_orders
(order_form_number, order_form_seq, processing_center, processes, vehicle_number, delivery_date, total_quantity, next_cut_seq, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		o.OrderFormNumber, o.OrderFormSeq, o.ProcessingCenter, o.Processes, o.VehicleNumber,
		o.DeliveryDate, o.TotalQuantity, o.NextCutSeq, string(o.Status)).Scan(&id)
	return id, err
}

func (t *txRepo) ClaimCut(ctx context.Context, cutID, orderID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE fabric_cuts SET processing_order_id=$2
WHERE id=$1 AND processing_order_id IS NULL AND has_inspection AND deleted_at IS NULL`, cutID, orderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) InsertSentCut(ctx context.Context, orderID int64, sc SentCut) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO processing_sent_cuts (order_id, fabric_cut_id, fabric_number, warp_number, order_ref, quantity)
VALUES ($1, $2, $3, $4, $5, $6)`, orderID, sc.FabricCutID, sc.FabricNumber, sc.WarpNumber, sc.OrderRef, sc.Quantity)
	return err
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, orderID int64) (ProcessingOrder, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM processing_orders WHERE id=$1 FOR UPDATE`, orderID))
	if err != nil {
		return ProcessingOrder{}, err
	}
	return loadOrderChildren(ctx, t.tx, o)
}

func (t *txRepo) InsertDelivery(ctx context.Context, orderID int64, d Delivery) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO processing_deliveries
(order_id, delivery_number, received_by, location, cuts_received, total_quantity_received, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		orderID, d.DeliveryNumber, d.ReceivedBy, string(d.Location), d.CutsReceived, d.TotalQuantityReceived, d.ReceivedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertReceivedCut(ctx context.Context, orderID int64, rc ReceivedCut) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO processing_received_cuts (order_id, delivery_id, fabric_number, quantity)
VALUES ($1, $2, $3, $4)`, orderID, rc.DeliveryID, rc.FabricNumber, rc.Quantity)
	return err
}

func (t *txRepo) UpdateDelivery(ctx context.Context, d Delivery) error {
	tag, err := t.tx.Exec(ctx, `UPDATE processing_deliveries
SET delivery_number=$2, received_by=$3, location=$4, cuts_received=$5, total_quantity_received=$6
WHERE id=$1`, d.ID, d.DeliveryNumber, d.ReceivedBy, string(d.Location), d.CutsReceived, d.TotalQuantityReceived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("delivery")
	}
	return nil
}

func (t *txRepo) UpdateReceivedCutQuantity(ctx context.Context, id int64, qty decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE processing_received_cuts SET quantity=$2 WHERE id=$1`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("received cut")
	}
	return nil
}

func (t *txRepo) DeleteDelivery(ctx context.Context, deliveryID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM processing_received_cuts WHERE delivery_id=$1`, deliveryID); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM processing_deliveries WHERE id=$1`, deliveryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("delivery")
	}
	return nil
}

func (t *txRepo) UpdateOrderState(ctx context.Context, orderID int64, status Status, nextCutSeq int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE processing_orders SET status=$2, next_cut_seq=$3 WHERE id=$1`,
		orderID, string(status), nextCutSeq)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("processing order")
	}
	return nil
}

func (t *txRepo) SetSourceCutsReceived(ctx context.Context, orderID int64, received bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE fabric_cuts SET is_processing_received=$2 WHERE processing_order_id=$1`, orderID, received)
	return err
}

const orderColumns = `id, order_form_number, order_form_seq, processing_center, processes, vehicle_number,
delivery_date, total_quantity, next_cut_seq, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (ProcessingOrder, error) {
	var o ProcessingOrder
	var status string
	err := row.Scan(&o.ID, &o.OrderFormNumber, &o.OrderFormSeq, &o.ProcessingCenter, &o.Processes,
		&o.VehicleNumber, &o.DeliveryDate, &o.TotalQuantity, &o.NextCutSeq, &status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProcessingOrder{}, shared.NotFound("processing order")
		}
		return ProcessingOrder{}, err
	}
	o.Status = Status(status)
	return o, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadOrderChildren(ctx context.Context, q queryer, o ProcessingOrder) (ProcessingOrder, error) {
	rows, err := q.Query(ctx, `SELECT id, fabric_cut_id, fabric_number, warp_number, order_ref, quantity
FROM processing_sent_cuts WHERE order_id=$1 ORDER BY id`, o.ID)
	if err != nil {
		return ProcessingOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var sc SentCut
		if err := rows.Scan(&sc.ID, &sc.FabricCutID, &sc.FabricNumber, &sc.WarpNumber, &sc.OrderRef, &sc.Quantity); err != nil {
			return ProcessingOrder{}, err
		}
		o.SentFabricCuts = append(o.SentFabricCuts, sc)
	}
	if err := rows.Err(); err != nil {
		return ProcessingOrder{}, err
	}

	drows, err := q.Query(ctx, `SELECT id, delivery_number, received_by, location, cuts_received, total_quantity_received, received_at
FROM processing_deliveries WHERE order_id=$1 ORDER BY id`, o.ID)
	if err != nil {
		return ProcessingOrder{}, err
	}
	defer drows.Close()
	for drows.Next() {
		var d Delivery
		var location string
		if err := drows.Scan(&d.ID, &d.DeliveryNumber, &d.ReceivedBy, &location, &d.CutsReceived, &d.TotalQuantityReceived, &d.ReceivedAt); err != nil {
			return ProcessingOrder{}, err
		}
		d.Location = shared.Location(location)
		o.Deliveries = append(o.Deliveries, d)
	}
	if err := drows.Err(); err != nil {
		return ProcessingOrder{}, err
	}

	crows, err := q.Query(ctx, `SELECT id, delivery_id, fabric_number, quantity
FROM processing_received_cuts WHERE order_id=$1 ORDER BY id`, o.ID)
	if err != nil {
		return ProcessingOrder{}, err
	}
	defer crows.Close()
	for crows.Next() {
		var rc ReceivedCut
		if err := crows.Scan(&rc.ID, &rc.DeliveryID, &rc.FabricNumber, &rc.Quantity); err != nil {
			return ProcessingOrder{}, err
		}
		o.ReceivedCuts = append(o.ReceivedCuts, rc)
	}
	return o, crows.Err()
}

// Get returns one order with sent cuts, deliveries and received cuts.
func (r *Repository) Get(ctx context.Context, orderID int64) (ProcessingOrder, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM processing_orders WHERE id=$1`, orderID))
	if err != nil {
		return ProcessingOrder{}, err
	}
	return loadOrderChildren(ctx, r.pool, o)
}

// List returns order headers matching filters plus the total.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]ProcessingOrder, int, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM processing_orders
WHERE ($1 = '' OR status = $1) AND ($2 = '' OR processing_center = $2)
ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		filters.Status, filters.ProcessingCenter, limit, filters.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []ProcessingOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	var total int
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processing_orders
WHERE ($1 = '' OR status = $1) AND ($2 = '' OR processing_center = $2)`,
		filters.Status, filters.ProcessingCenter).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// CheckUsage reports whether a fabric number is already claimed by a
// processing order.
func (r *Repository) CheckUsage(ctx context.Context, fabricNumber string) (Usage, error) {
	var number *string
	err := r.pool.QueryRow(ctx, `SELECT po.order_form_number
FROM fabric_cuts fc
LEFT JOIN processing_orders po ON po.id = fc.processing_order_id
WHERE fc.fabric_number=$1 AND fc.deleted_at IS NULL`, fabricNumber).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Usage{}, shared.NotFound("fabric cut")
		}
		return Usage{}, err
	}
	if number == nil {
		return Usage{}, nil
	}
	return Usage{IsUsed: true, OrderFormNumber: *number}, nil
}
