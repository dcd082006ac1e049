package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/athitex/fabricledger/internal/shared"
	"github.com/athitex/fabricledger/internal/wages"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceNotify fans an invoice status change out to interested views.
	TaskInvoiceNotify = "invoice:notify"
	// TaskIdempotencyCleanup prunes aged idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// NewInvoiceNotifyTask constructs an Asynq task from a status event.
func NewInvoiceNotifyTask(event wages.InvoiceStatusEvent) (*asynq.Task, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceNotify, body, asynq.Queue(QueueDefault)), nil
}

// InvoiceNotifyJob records invoice status changes for the finance views. The
// event payload is a hint only; current state is re-read from the database so
// a stale or replayed task cannot publish a wrong status.
type InvoiceNotifyJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// NewInvoiceNotifyJob constructs the notify handler.
func NewInvoiceNotifyJob(pool *pgxpool.Pool, logger *slog.Logger) *InvoiceNotifyJob {
	return &InvoiceNotifyJob{Pool: pool, Logger: logger}
}

// Handle processes TaskInvoiceNotify tasks.
func (j *InvoiceNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("invoice notify: handler not configured")
	}
	var event wages.InvoiceStatusEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return asynq.SkipRetry
	}
	var number, status string
	err := j.Pool.QueryRow(ctx, `SELECT invoice_number, status FROM wage_invoices WHERE id=$1`, event.InvoiceID).
		Scan(&number, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Deleted since the event fired; the deletion event carries the news.
			j.Logger.Info("invoice notify: invoice gone",
				slog.Int64("invoice_id", event.InvoiceID),
				slog.String("event_status", event.NewStatus))
			return nil
		}
		return err
	}
	_, err = j.Pool.Exec(ctx, `INSERT INTO invoice_notifications (invoice_id, warp_id, status, notified_at)
VALUES ($1, $2, $3, NOW())`, event.InvoiceID, event.WarpID, status)
	if err != nil {
		return err
	}
	j.Logger.Info("invoice status notified",
		slog.Int64("invoice_id", event.InvoiceID),
		slog.String("number", number),
		slog.String("status", status))
	return nil
}

// IdempotencyCleanupPayload configures the cleanup window.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupJob prunes processed delivery keys past retention.
type IdempotencyCleanupJob struct {
	Store  *shared.IdempotencyStore
	Logger *slog.Logger
}

// NewIdempotencyCleanupJob constructs the cleanup handler.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 72
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if err := j.Store.Cleanup(ctx, retention); err != nil {
		j.Logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	j.Logger.Info("idempotency cleanup done", slog.Duration("retention", retention))
	return nil
}
