package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/Roon627/ITnVend-sub003/models"
	"github.com/Roon627/ITnVend-sub003/utils"
)

// Redis channels boundary events are published on after commit.
const (
	StockChangedChannel    = "events:stock-changed"
	DocumentChangedChannel = "events:document-changed"
)

type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *OutboxDispatcher) dispatchOnce(ctx context.Context) {
	db := d.DB
	if db == nil {
		return
	}

	// Only one instance drains per cycle; claims use SKIP LOCKED anyway, so
	// a missed lock just means another instance is already at it.
	release, err := utils.KeyedLock(ctx, "outbox-dispatcher", "workflow", "dispatchOnce")
	if err != nil {
		return
	}
	defer release()

	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.OutboxRecord
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but lock is stale (dispatcher crashed mid-batch), reclaim after LockTimeout
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			// Enforce max attempts: poison messages go terminal.
			if d.MaxAttempts > 0 && claimed[i].AttemptCount >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.OutboxRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":  models.OutboxPublishStatusDead,
					"last_error":      &msg,
					"next_attempt_at": nil,
					"locked_at":       nil,
					"locked_by":       nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			// Claim for publishing.
			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].AttemptCount = claimed[i].AttemptCount + 1
			claimed[i].LastError = nil
			if err := tx.Model(&models.OutboxRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":  claimed[i].PublishStatus,
				"locked_at":       claimed[i].LockedAt,
				"locked_by":       claimed[i].LockedBy,
				"attempt_count":   gorm.Expr("attempt_count + 1"),
				"last_error":      nil,
				"next_attempt_at": nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, rec := range claimed {
		// Skip terminal rows that were marked DEAD in the claim transaction.
		if rec.PublishStatus == models.OutboxPublishStatusDead {
			continue
		}
		if pubErr := d.publish(ctx, rec); pubErr != nil {
			d.markPublishFailed(ctx, rec.ID, pubErr, rec.AttemptCount)
			continue
		}
		d.markPublishSent(ctx, rec.ID, now)
	}
}

// publish delivers one record: a structured log line for local consumers
// plus a redis pub/sub message for low-stock alerting and notification.
func (d *OutboxDispatcher) publish(ctx context.Context, rec models.OutboxRecord) error {
	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"event_type":     rec.EventType,
			"correlation_id": rec.CorrelationId,
			"payload":        string(rec.Payload),
		}).Info("boundary event")
	}

	var channel string
	switch rec.EventType {
	case models.EventTypeStockChanged:
		channel = StockChangedChannel
	case models.EventTypeDocumentChanged:
		channel = DocumentChangedChannel
	default:
		return fmt.Errorf("unknown event type %s", rec.EventType)
	}
	return config.PublishRedisMessage(ctx, channel, rec.Payload)
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordID int, now time.Time) {
	db := d.DB.WithContext(ctx)
	_ = db.Model(&models.OutboxRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":  models.OutboxPublishStatusPublished,
			"published_at":    &now,
			"locked_at":       nil,
			"locked_by":       nil,
			"next_attempt_at": nil,
		}).Error
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, recordID int, err error, attempt int) {
	db := d.DB.WithContext(ctx)
	now := time.Now().UTC()
	msg := err.Error()

	// Terminal after MaxAttempts.
	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		_ = db.Model(&models.OutboxRecord{}).
			Where("id = ?", recordID).
			Updates(map[string]interface{}{
				"publish_status":  models.OutboxPublishStatusDead,
				"last_error":      &msg,
				"next_attempt_at": nil,
				"locked_at":       nil,
				"locked_by":       nil,
			}).Error

		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":     "OutboxDispatcher",
				"record_id": recordID,
				"attempt":   attempt,
			}).Error("outbox publish moved to DEAD after max attempts: " + fmt.Sprintf("%v", err))
		}
		return
	}

	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			backoff = time.Minute * 10
			break
		}
	}
	next := now.Add(backoff)
	_ = db.Model(&models.OutboxRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":  models.OutboxPublishStatusFailed,
			"last_error":      &msg,
			"next_attempt_at": &next,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "OutboxDispatcher",
			"record_id":       recordID,
			"attempt":         attempt,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("outbox publish failed: " + fmt.Sprintf("%v", err))
	}
}
