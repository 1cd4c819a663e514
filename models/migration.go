package models

import (
	"context"

	"github.com/Roon627/ITnVend-sub003/config"
)

// MigrateTable creates or updates every table this engine owns, then seeds
// the system default chart of accounts.
func MigrateTable() error {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Account{},
		&Outlet{},
		&Customer{},
		&Product{},
		&StockAdjustmentRecord{},
		&InvoiceDocument{},
		&LineItem{},
		&JournalEntry{},
		&JournalLine{},
		&OutboxRecord{},
	)
	if err != nil {
		return err
	}
	return SeedDefaultAccounts(context.Background())
}
