package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/Roon627/ITnVend-sub003/utils"
)

// Product holds the catalog price and the current stock level. StockQty is
// never written directly by callers; every mutation goes through the stock
// ledger so an adjustment record exists for each change.
type Product struct {
	ID              int             `gorm:"primary_key" json:"id"`
	Name            string          `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Sku             *string         `gorm:"uniqueIndex;size:100" json:"sku"`
	Price           decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price"`
	Cost            decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"cost"`
	StockQty        int             `gorm:"not null;default:0" json:"stock_qty"`
	TracksInventory *bool           `gorm:"not null;default:true" json:"tracks_inventory"`
	IsActive        *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name            string          `json:"name" binding:"required"`
	Sku             *string         `json:"sku"`
	Price           decimal.Decimal `json:"price"`
	Cost            decimal.Decimal `json:"cost"`
	InitialStock    int             `json:"initial_stock"`
	TracksInventory *bool           `json:"tracks_inventory"`
}

func (input *NewProduct) Validate() error {
	if input.Price.IsNegative() {
		return errors.New("price must not be negative")
	}
	if input.Cost.IsNegative() {
		return errors.New("cost must not be negative")
	}
	if input.InitialStock < 0 {
		return errors.New("initial stock must not be negative")
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	product := Product{
		Name:            input.Name,
		Sku:             input.Sku,
		Price:           input.Price,
		Cost:            input.Cost,
		StockQty:        input.InitialStock,
		TracksInventory: input.TracksInventory,
		IsActive:        utils.NewTrue(),
	}
	if product.TracksInventory == nil {
		product.TracksInventory = utils.NewTrue()
	}

	db := config.GetDB()
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&product).Error; err != nil {
			return err
		}
		if input.InitialStock > 0 {
			record := StockAdjustmentRecord{
				ProductId:      product.ID,
				Actor:          utils.ActorNameOrSystem(ctx),
				Delta:          input.InitialStock,
				ResultingStock: input.InitialStock,
				Reason:         StockReasonInitial,
			}
			if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		if err == utils.ErrorRecordNotFound {
			return nil, &NotFoundError{Resource: "product", Id: id}
		}
		return nil, err
	}
	return product, nil
}

func GetProducts(ctx context.Context) ([]*Product, error) {
	return utils.FetchAllModels[Product](ctx)
}
