package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Roon627/ITnVend-sub003/utils"
)

// OutboxRecord rows are written inside the same transaction as the state
// change they describe, then delivered by the dispatcher after commit. The
// outbox is the only path for boundary events; nothing publishes in-tx.
type OutboxRecord struct {
	ID            int        `gorm:"primary_key" json:"id"`
	EventType     EventType  `gorm:"index;size:30;not null" json:"event_type"`
	Payload       []byte     `gorm:"type:json;not null" json:"payload"`
	CorrelationId string     `gorm:"index;size:36;not null" json:"correlation_id"`
	PublishStatus string     `gorm:"index;size:15;not null;default:'PENDING'" json:"publish_status"`
	AttemptCount  int        `gorm:"not null;default:0" json:"attempt_count"`
	NextAttemptAt *time.Time `gorm:"index" json:"next_attempt_at"`
	LockedBy      *string    `gorm:"size:64" json:"locked_by"`
	LockedAt      *time.Time `json:"locked_at"`
	PublishedAt   *time.Time `json:"published_at"`
	LastError     *string    `gorm:"size:500" json:"last_error"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type StockChangedEvent struct {
	ProductId     int    `json:"product_id"`
	PreviousStock int    `json:"previous_stock"`
	NewStock      int    `json:"new_stock"`
	Delta         int    `json:"delta"`
	Reason        string `json:"reason"`
	Actor         string `json:"actor"`
}

type DocumentChangedEvent struct {
	DocumentId int             `json:"document_id"`
	Kind       DocumentKind    `json:"kind"`
	Status     DocumentStatus  `json:"status"`
	Total      decimal.Decimal `json:"total"`
	CustomerId *int            `json:"customer_id"`
}

func correlationIdFromContext(ctx context.Context) string {
	if id, ok := utils.GetCorrelationIdFromContext(ctx); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func enqueueEvent(ctx context.Context, tx *gorm.DB, eventType EventType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := OutboxRecord{
		EventType:     eventType,
		Payload:       body,
		CorrelationId: correlationIdFromContext(ctx),
		PublishStatus: OutboxPublishStatusPending,
	}
	return tx.WithContext(ctx).Create(&record).Error
}

// EnqueueStockChanged records a stock-changed event for each non-nil
// mutation. No-op mutations produce no event.
func EnqueueStockChanged(ctx context.Context, tx *gorm.DB, mutations ...*StockMutation) error {
	actor := utils.ActorNameOrSystem(ctx)
	for _, mutation := range mutations {
		if mutation == nil {
			continue
		}
		event := StockChangedEvent{
			ProductId:     mutation.ProductId,
			PreviousStock: mutation.PreviousStock,
			NewStock:      mutation.NewStock,
			Delta:         mutation.Delta,
			Reason:        mutation.Reason,
			Actor:         actor,
		}
		if err := enqueueEvent(ctx, tx, EventTypeStockChanged, &event); err != nil {
			return err
		}
	}
	return nil
}

func EnqueueDocumentChanged(ctx context.Context, tx *gorm.DB, doc *InvoiceDocument) error {
	event := DocumentChangedEvent{
		DocumentId: doc.ID,
		Kind:       doc.Kind,
		Status:     doc.CurrentStatus,
		Total:      doc.Total,
		CustomerId: doc.CustomerId,
	}
	return enqueueEvent(ctx, tx, EventTypeDocumentChanged, &event)
}
