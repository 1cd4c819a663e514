package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/Roon627/ITnVend-sub003/utils"
)

// Outlet carries the tax rate and the account codes a sale posts against.
// Documents capture the rate at creation time, so later outlet edits do not
// reprice existing documents.
type Outlet struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	Name                  string          `gorm:"index;size:100;not null" json:"name" binding:"required"`
	TaxRate               decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"tax_rate"`
	ReceivableAccountCode string          `gorm:"size:10;not null" json:"receivable_account_code"`
	SalesAccountCode      string          `gorm:"size:10;not null" json:"sales_account_code"`
	TaxAccountCode        string          `gorm:"size:10;not null" json:"tax_account_code"`
	IsActive              *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOutlet struct {
	Name                  string          `json:"name" binding:"required"`
	TaxRate               decimal.Decimal `json:"tax_rate"`
	ReceivableAccountCode *string         `json:"receivable_account_code"`
	SalesAccountCode      *string         `json:"sales_account_code"`
	TaxAccountCode        *string         `json:"tax_account_code"`
}

func CreateOutlet(ctx context.Context, input *NewOutlet) (*Outlet, error) {
	if input.TaxRate.IsNegative() {
		return nil, errors.New("tax rate must not be negative")
	}

	outlet := Outlet{
		Name:                  input.Name,
		TaxRate:               input.TaxRate,
		ReceivableAccountCode: AccountCodeAccountsReceivable,
		SalesAccountCode:      AccountCodeSalesRevenue,
		TaxAccountCode:        AccountCodeTaxPayable,
		IsActive:              utils.NewTrue(),
	}
	if input.ReceivableAccountCode != nil {
		outlet.ReceivableAccountCode = *input.ReceivableAccountCode
	}
	if input.SalesAccountCode != nil {
		outlet.SalesAccountCode = *input.SalesAccountCode
	}
	if input.TaxAccountCode != nil {
		outlet.TaxAccountCode = *input.TaxAccountCode
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&outlet).Error; err != nil {
		return nil, err
	}
	return &outlet, nil
}

func GetOutlet(ctx context.Context, id int) (*Outlet, error) {
	outlet, err := utils.FetchModel[Outlet](ctx, id)
	if err != nil {
		if err == utils.ErrorRecordNotFound {
			return nil, &NotFoundError{Resource: "outlet", Id: id}
		}
		return nil, err
	}
	return outlet, nil
}

func GetOutlets(ctx context.Context) ([]*Outlet, error) {
	return utils.FetchAllModels[Outlet](ctx)
}
