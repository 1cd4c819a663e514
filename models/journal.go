package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// JournalEntry is append-only. Corrections are made by posting a new entry,
// never by mutating an old one; nothing in this package updates or deletes
// journal rows after creation.
type JournalEntry struct {
	ID          int                `gorm:"primary_key" json:"id"`
	EntryDate   time.Time          `gorm:"index;not null" json:"entry_date"`
	Description string             `gorm:"size:255;not null" json:"description"`
	Reference   string             `gorm:"index;size:100;not null" json:"reference"`
	TotalDebit  decimal.Decimal    `gorm:"type:decimal(20,8);not null" json:"total_debit"`
	TotalCredit decimal.Decimal    `gorm:"type:decimal(20,8);not null" json:"total_credit"`
	Status      JournalEntryStatus `gorm:"size:10;not null" json:"status"`
	Lines       []JournalLine      `gorm:"foreignKey:EntryId" json:"lines"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

type JournalLine struct {
	ID          int             `gorm:"primary_key" json:"id"`
	EntryId     int             `gorm:"index;not null" json:"entry_id"`
	AccountId   int             `gorm:"index;not null" json:"account_id"`
	Account     *Account        `json:"account,omitempty"`
	Description string          `gorm:"size:255;not null" json:"description"`
	Debit       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"debit"`
	Credit      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"credit"`
	Position    int             `gorm:"not null" json:"position"`
}

// BuildSaleEntry constructs the double-entry row set for an invoice: debit
// receivables for the total, credit revenue for the subtotal, credit taxes
// payable for the tax (omitted when zero). Pure; callers persist inside
// their own transaction.
func BuildSaleEntry(doc *InvoiceDocument, customerName string, chart ChartOfAccounts, outlet *Outlet) (*JournalEntry, error) {
	receivable, ok := chart.AccountByCode(outlet.ReceivableAccountCode)
	if !ok {
		return nil, &ChartOfAccountsIncompleteError{MissingCode: outlet.ReceivableAccountCode}
	}
	sales, ok := chart.AccountByCode(outlet.SalesAccountCode)
	if !ok {
		return nil, &ChartOfAccountsIncompleteError{MissingCode: outlet.SalesAccountCode}
	}

	description := fmt.Sprintf("Invoice #%d", doc.ID)
	if customerName != "" {
		description = fmt.Sprintf("Invoice #%d - %s", doc.ID, customerName)
	}

	entry := JournalEntry{
		EntryDate:   doc.DocumentDate,
		Description: description,
		Reference:   fmt.Sprintf("invoice:%d", doc.ID),
		Status:      JournalEntryStatusPosted,
		Lines: []JournalLine{
			{
				AccountId:   receivable.ID,
				Description: description,
				Debit:       doc.Total,
				Credit:      decimal.Zero,
				Position:    0,
			},
			{
				AccountId:   sales.ID,
				Description: description,
				Debit:       decimal.Zero,
				Credit:      doc.Subtotal,
				Position:    1,
			},
		},
	}

	if doc.TaxAmount.IsPositive() {
		tax, ok := chart.AccountByCode(outlet.TaxAccountCode)
		if !ok {
			return nil, &ChartOfAccountsIncompleteError{MissingCode: outlet.TaxAccountCode}
		}
		entry.Lines = append(entry.Lines, JournalLine{
			AccountId:   tax.ID,
			Description: description,
			Debit:       decimal.Zero,
			Credit:      doc.TaxAmount,
			Position:    2,
		})
	}

	for i := range entry.Lines {
		entry.TotalDebit = entry.TotalDebit.Add(entry.Lines[i].Debit)
		entry.TotalCredit = entry.TotalCredit.Add(entry.Lines[i].Credit)
	}
	if !entry.TotalDebit.Equal(entry.TotalCredit) {
		return nil, fmt.Errorf("unbalanced journal entry for invoice %d: debit %s credit %s",
			doc.ID, entry.TotalDebit, entry.TotalCredit)
	}
	return &entry, nil
}
