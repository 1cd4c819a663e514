package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Roon627/ITnVend-sub003/utils"
)

// StockAdjustmentRecord is the append-only audit trail of the stock ledger.
// Rows are never updated or deleted; ResultingStock snapshots the product's
// stock after the mutation so history reads without replay.
type StockAdjustmentRecord struct {
	ID             int       `gorm:"primary_key" json:"id"`
	ProductId      int       `gorm:"index;not null" json:"product_id"`
	Product        *Product  `json:"product,omitempty"`
	Actor          string    `gorm:"size:100;not null" json:"actor"`
	Delta          int       `gorm:"not null" json:"delta"`
	ResultingStock int       `gorm:"not null" json:"resulting_stock"`
	Reason         string    `gorm:"size:50;not null" json:"reason"`
	Reference      *string   `gorm:"size:100" json:"reference"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// StockMutation reports what a ledger operation actually did, for event
// publication. A nil mutation means the operation was a no-op (untracked
// product or zero delta).
type StockMutation struct {
	ProductId     int
	PreviousStock int
	NewStock      int
	Delta         int
	Reason        string
}

// lockProduct reads the product row under FOR UPDATE so concurrent ledger
// operations on the same product serialize for the rest of the transaction.
func lockProduct(ctx context.Context, tx *gorm.DB, productId int) (*Product, error) {
	var product Product
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, productId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "product", Id: productId}
		}
		return nil, err
	}
	return &product, nil
}

func appendAdjustment(ctx context.Context, tx *gorm.DB, product *Product, delta int, reason string, reference *string) (*StockMutation, error) {
	previous := product.StockQty
	product.StockQty = previous + delta
	if err := tx.WithContext(ctx).Model(&Product{}).
		Where("id = ?", product.ID).
		Update("stock_qty", product.StockQty).Error; err != nil {
		return nil, err
	}

	record := StockAdjustmentRecord{
		ProductId:      product.ID,
		Actor:          utils.ActorNameOrSystem(ctx),
		Delta:          delta,
		ResultingStock: product.StockQty,
		Reason:         reason,
		Reference:      reference,
	}
	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	return &StockMutation{
		ProductId:     product.ID,
		PreviousStock: previous,
		NewStock:      product.StockQty,
		Delta:         delta,
		Reason:        reason,
	}, nil
}

// ReserveStock decrements stock by qty, failing the whole transaction when
// not enough is on hand. Untracked products are a silent no-op.
func ReserveStock(ctx context.Context, tx *gorm.DB, productId int, qty int, reason string, reference *string) (*StockMutation, error) {
	if qty <= 0 {
		return nil, &InvalidQuantityError{ProductId: productId, Quantity: qty}
	}

	product, err := lockProduct(ctx, tx, productId)
	if err != nil {
		return nil, err
	}
	if !utils.DereferencePtr(product.TracksInventory) {
		return nil, nil
	}
	if product.StockQty < qty {
		return nil, &InsufficientStockError{
			ProductId: productId,
			Requested: qty,
			Available: product.StockQty,
		}
	}
	return appendAdjustment(ctx, tx, product, -qty, reason, reference)
}

// ReleaseStock returns qty units to stock, the inverse of ReserveStock.
func ReleaseStock(ctx context.Context, tx *gorm.DB, productId int, qty int, reason string, reference *string) (*StockMutation, error) {
	if qty <= 0 {
		return nil, &InvalidQuantityError{ProductId: productId, Quantity: qty}
	}

	product, err := lockProduct(ctx, tx, productId)
	if err != nil {
		return nil, err
	}
	if !utils.DereferencePtr(product.TracksInventory) {
		return nil, nil
	}
	return appendAdjustment(ctx, tx, product, qty, reason, reference)
}

// SetAbsoluteStock overwrites the stock level, recording the implied delta.
// Manual corrections apply even to untracked products. A zero delta writes
// no record.
func SetAbsoluteStock(ctx context.Context, tx *gorm.DB, productId int, newQty int, reason string, reference *string) (*StockMutation, error) {
	if newQty < 0 {
		return nil, &InvalidQuantityError{ProductId: productId, Quantity: newQty}
	}

	product, err := lockProduct(ctx, tx, productId)
	if err != nil {
		return nil, err
	}
	delta := newQty - product.StockQty
	if delta == 0 {
		return nil, nil
	}
	return appendAdjustment(ctx, tx, product, delta, reason, reference)
}

// PreflightStock verifies, under row locks, that every tracked product can
// cover its requested quantity. Locks are taken in the given id order; the
// locks hold to the end of the transaction, so reservations that follow the
// preflight cannot fail on stock.
func PreflightStock(ctx context.Context, tx *gorm.DB, quantities map[int]int, productIds []int) error {
	for _, productId := range productIds {
		qty := quantities[productId]
		if qty <= 0 {
			return &InvalidQuantityError{ProductId: productId, Quantity: qty}
		}
		product, err := lockProduct(ctx, tx, productId)
		if err != nil {
			return err
		}
		if !utils.DereferencePtr(product.TracksInventory) {
			continue
		}
		if product.StockQty < qty {
			return &InsufficientStockError{
				ProductId: productId,
				Requested: qty,
				Available: product.StockQty,
			}
		}
	}
	return nil
}

// GetStockHistory lists a product's adjustment records, newest first.
func GetStockHistory(ctx context.Context, tx *gorm.DB, productId int) ([]*StockAdjustmentRecord, error) {
	var records []*StockAdjustmentRecord
	err := tx.WithContext(ctx).
		Where("product_id = ?", productId).
		Order("id DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
