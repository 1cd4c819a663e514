package models_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Roon627/ITnVend-sub003/models"
)

func testChart() models.ChartOfAccounts {
	return models.ChartOfAccounts{
		models.AccountCodeAccountsReceivable: &models.Account{ID: 1, Code: models.AccountCodeAccountsReceivable},
		models.AccountCodeSalesRevenue:       &models.Account{ID: 2, Code: models.AccountCodeSalesRevenue},
		models.AccountCodeTaxPayable:         &models.Account{ID: 3, Code: models.AccountCodeTaxPayable},
	}
}

func testOutlet() *models.Outlet {
	return &models.Outlet{
		ID:                    1,
		ReceivableAccountCode: models.AccountCodeAccountsReceivable,
		SalesAccountCode:      models.AccountCodeSalesRevenue,
		TaxAccountCode:        models.AccountCodeTaxPayable,
	}
}

func TestBuildSaleEntry_BalancedWithTax(t *testing.T) {
	doc := &models.InvoiceDocument{
		ID:        42,
		Kind:      models.DocumentKindInvoice,
		Subtotal:  decimal.NewFromInt(300),
		TaxAmount: decimal.NewFromInt(15),
		Total:     decimal.NewFromInt(315),
	}
	entry, err := models.BuildSaleEntry(doc, "Acme Ltd", testChart(), testOutlet())
	if err != nil {
		t.Fatalf("BuildSaleEntry error: %v", err)
	}
	if len(entry.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(entry.Lines))
	}
	if !entry.Lines[0].Debit.Equal(decimal.NewFromInt(315)) {
		t.Fatalf("receivable debit expected 315, got %s", entry.Lines[0].Debit)
	}
	if !entry.Lines[1].Credit.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("revenue credit expected 300, got %s", entry.Lines[1].Credit)
	}
	if !entry.Lines[2].Credit.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("tax credit expected 15, got %s", entry.Lines[2].Credit)
	}
	if !entry.TotalDebit.Equal(entry.TotalCredit) {
		t.Fatalf("entry unbalanced: debit %s credit %s", entry.TotalDebit, entry.TotalCredit)
	}
	if entry.Status != models.JournalEntryStatusPosted {
		t.Fatalf("expected posted status, got %s", entry.Status)
	}
	if entry.Reference != "invoice:42" {
		t.Fatalf("unexpected reference %q", entry.Reference)
	}
}

func TestBuildSaleEntry_OmitsTaxLineWhenZero(t *testing.T) {
	doc := &models.InvoiceDocument{
		ID:        7,
		Kind:      models.DocumentKindInvoice,
		Subtotal:  decimal.NewFromInt(200),
		TaxAmount: decimal.Zero,
		Total:     decimal.NewFromInt(200),
	}
	entry, err := models.BuildSaleEntry(doc, "", testChart(), testOutlet())
	if err != nil {
		t.Fatalf("BuildSaleEntry error: %v", err)
	}
	if len(entry.Lines) != 2 {
		t.Fatalf("expected 2 lines with zero tax, got %d", len(entry.Lines))
	}
	if !entry.TotalDebit.Equal(entry.TotalCredit) {
		t.Fatalf("entry unbalanced: debit %s credit %s", entry.TotalDebit, entry.TotalCredit)
	}
}

func TestBuildSaleEntry_MissingAccountCode(t *testing.T) {
	doc := &models.InvoiceDocument{
		ID:        9,
		Kind:      models.DocumentKindInvoice,
		Subtotal:  decimal.NewFromInt(100),
		TaxAmount: decimal.NewFromInt(5),
		Total:     decimal.NewFromInt(105),
	}

	cases := []struct {
		name   string
		remove string
	}{
		{"missing receivable", models.AccountCodeAccountsReceivable},
		{"missing revenue", models.AccountCodeSalesRevenue},
		{"missing tax payable", models.AccountCodeTaxPayable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chart := testChart()
			delete(chart, tc.remove)
			_, err := models.BuildSaleEntry(doc, "", chart, testOutlet())
			var incomplete *models.ChartOfAccountsIncompleteError
			if !errors.As(err, &incomplete) {
				t.Fatalf("expected ChartOfAccountsIncompleteError, got %v", err)
			}
			if incomplete.MissingCode != tc.remove {
				t.Fatalf("expected missing code %s, got %s", tc.remove, incomplete.MissingCode)
			}
		})
	}
}
