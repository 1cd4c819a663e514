package models

import (
	"context"
	"errors"
	"time"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/Roon627/ITnVend-sub003/utils"
)

// Account is immutable reference data for the ledger engine: journal lines
// are posted against accounts, accounts are looked up by code.
type Account struct {
	ID              int             `gorm:"primary_key" json:"id"`
	Code            string          `gorm:"uniqueIndex;size:10;not null" json:"code" binding:"required"`
	Name            string          `gorm:"index;size:100;not null" json:"name" binding:"required"`
	MainType        AccountMainType `gorm:"type:enum('Asset','Liability','Equity','Revenue','Expense');default:'Expense';index;size:10;not null" json:"main_type" binding:"required"`
	IsSystemDefault *bool           `gorm:"not null;default:false" json:"is_system_default"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	Code     string          `json:"code" binding:"required"`
	Name     string          `json:"name" binding:"required"`
	MainType AccountMainType `json:"main_type" binding:"required"`
}

// ChartOfAccounts is the read-only code -> account lookup the journal poster
// posts against.
type ChartOfAccounts map[string]*Account

func (c ChartOfAccounts) AccountByCode(code string) (*Account, bool) {
	account, ok := c[code]
	return account, ok
}

const chartCacheKey = "ChartOfAccounts"

// LoadChartOfAccounts returns the full code map, redis-cached. The chart is
// reference data at engine runtime; cache invalidation happens on account
// creation only.
func LoadChartOfAccounts(ctx context.Context) (ChartOfAccounts, error) {
	var chart ChartOfAccounts

	exists, err := config.GetRedisObject(chartCacheKey, &chart)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		var accounts []*Account
		if err := db.WithContext(ctx).Find(&accounts).Error; err != nil {
			return nil, err
		}
		chart = make(ChartOfAccounts, len(accounts))
		for _, acc := range accounts {
			chart[acc.Code] = acc
		}
		if err := config.SetRedisObject(chartCacheKey, &chart, 0); err != nil {
			return nil, err
		}
	}
	return chart, nil
}

func CreateAccount(ctx context.Context, input *NewAccount) (*Account, error) {
	switch input.MainType {
	case AccountMainTypeAsset, AccountMainTypeLiability, AccountMainTypeEquity,
		AccountMainTypeRevenue, AccountMainTypeExpense:
	default:
		return nil, errors.New("invalid account main type")
	}

	var count int64
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Account{}).Where("code = ?", input.Code).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("duplicate account code")
	}

	account := Account{
		Code:            input.Code,
		Name:            input.Name,
		MainType:        input.MainType,
		IsSystemDefault: utils.NewFalse(),
	}
	if err := db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	if err := config.RemoveRedisKey(chartCacheKey); err != nil {
		return nil, err
	}
	return &account, nil
}

func GetAccounts(ctx context.Context) ([]*Account, error) {
	db := config.GetDB()
	var results []*Account
	if err := db.WithContext(ctx).Order("code").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// SeedDefaultAccounts creates the system-default chart used by the journal
// poster. Idempotent; existing codes are left untouched.
func SeedDefaultAccounts(ctx context.Context) error {
	defaults := []Account{
		{Code: AccountCodeAccountsReceivable, Name: "Accounts Receivable", MainType: AccountMainTypeAsset},
		{Code: AccountCodeSalesRevenue, Name: "Sales Revenue", MainType: AccountMainTypeRevenue},
		{Code: AccountCodeTaxPayable, Name: "Taxes Payable", MainType: AccountMainTypeLiability},
		{Code: AccountCodeInventoryAsset, Name: "Inventory Asset", MainType: AccountMainTypeAsset},
		{Code: AccountCodeOwnerEquity, Name: "Owner Equity", MainType: AccountMainTypeEquity},
		{Code: AccountCodeCostOfGoodsSold, Name: "Cost of Goods Sold", MainType: AccountMainTypeExpense},
	}

	db := config.GetDB()
	for i := range defaults {
		defaults[i].IsSystemDefault = utils.NewTrue()
		var count int64
		if err := db.WithContext(ctx).Model(&Account{}).Where("code = ?", defaults[i].Code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := db.WithContext(ctx).Create(&defaults[i]).Error; err != nil {
			return err
		}
	}
	return config.RemoveRedisKey(chartCacheKey)
}
