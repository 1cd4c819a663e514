package workflow_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/Roon627/ITnVend-sub003/models"
	"github.com/Roon627/ITnVend-sub003/utils"
	"github.com/Roon627/ITnVend-sub003/workflow"
)

// End-to-end ledger flow against a real MySQL. Point DB_USER/DB_PASSWORD/
// DB_HOST/DB_PORT/DB_NAME at a disposable database before running.
func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires mysql)")
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	ctx = utils.SetActorIdInContext(ctx, "1")
	ctx = utils.SetActorNameInContext(ctx, "Test Clerk")
	return ctx
}

func countJournalEntries(t *testing.T, reference string) int64 {
	t.Helper()
	var count int64
	err := config.GetDB().Model(&models.JournalEntry{}).
		Where("reference = ?", reference).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count journal entries: %v", err)
	}
	return count
}

func countDocumentEvents(t *testing.T, documentId int) int64 {
	t.Helper()
	var count int64
	err := config.GetDB().Model(&models.OutboxRecord{}).
		Where("event_type = ? AND payload->>'$.document_id' = ?",
			models.EventTypeDocumentChanged, documentId).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count document events: %v", err)
	}
	return count
}

func currentStock(t *testing.T, ctx context.Context, productId int) int {
	t.Helper()
	product, err := models.GetProduct(ctx, productId)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return product.StockQty
}

func TestInvoiceLifecycle(t *testing.T) {
	ctx := setupIntegration(t)

	outlet, err := models.CreateOutlet(ctx, &models.NewOutlet{
		Name:    "Main Store",
		TaxRate: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("create outlet: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Acme Ltd"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Widget",
		Price:        decimal.NewFromInt(100),
		InitialStock: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	// Create an invoice for 3 units at 100 with a 5 percent tax rate.
	doc, err := workflow.CreateDocument(ctx, &models.NewInvoiceDocument{
		CustomerId: &customer.ID,
		OutletId:   outlet.ID,
		Kind:       models.DocumentKindInvoice,
		LineItems: []models.NewLineItem{
			{ProductId: &product.ID, Name: product.Name, Qty: 3, UnitPrice: product.Price},
		},
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if doc.CurrentStatus != models.DocumentStatusIssued {
		t.Fatalf("expected issued, got %s", doc.CurrentStatus)
	}
	if !doc.Total.Equal(decimal.NewFromInt(315)) {
		t.Fatalf("expected total 315, got %s", doc.Total)
	}
	if got := currentStock(t, ctx, product.ID); got != 7 {
		t.Fatalf("expected stock 7 after invoice, got %d", got)
	}
	reference := "invoice:" + strconv.Itoa(doc.ID)
	if n := countJournalEntries(t, reference); n != 1 {
		t.Fatalf("expected 1 journal entry, got %d", n)
	}

	// Edit to 5 units: stock drops by the delta, totals recompute, and the
	// journal entry is not re-posted.
	doc, err = workflow.EditDocument(ctx, doc.ID, []models.NewLineItem{
		{ProductId: &product.ID, Name: product.Name, Qty: 5, UnitPrice: product.Price},
	})
	if err != nil {
		t.Fatalf("edit invoice: %v", err)
	}
	if !doc.Total.Equal(decimal.NewFromInt(525)) {
		t.Fatalf("expected total 525 after edit, got %s", doc.Total)
	}
	if got := currentStock(t, ctx, product.ID); got != 5 {
		t.Fatalf("expected stock 5 after edit, got %d", got)
	}
	if n := countJournalEntries(t, reference); n != 1 {
		t.Fatalf("journal entry was re-posted on edit: %d entries", n)
	}

	// Converting something that is already an invoice is rejected.
	_, err = workflow.ConvertQuoteToInvoice(ctx, doc.ID)
	var invalid *models.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	// Status transitions follow the invoice state machine.
	doc, err = workflow.TransitionStatus(ctx, doc.ID, models.DocumentStatusPaid)
	if err != nil {
		t.Fatalf("transition to paid: %v", err)
	}
	_, err = workflow.TransitionStatus(ctx, doc.ID, models.DocumentStatusCancelled)
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError from terminal status, got %v", err)
	}

	// Deleting the invoice releases its stock and announces the document
	// change; the journal entry remains.
	eventsBefore := countDocumentEvents(t, doc.ID)
	if err := workflow.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("delete invoice: %v", err)
	}
	if got := currentStock(t, ctx, product.ID); got != 10 {
		t.Fatalf("expected stock 10 after delete, got %d", got)
	}
	if n := countJournalEntries(t, reference); n != 1 {
		t.Fatalf("journal entry should survive document deletion, got %d", n)
	}
	if got := countDocumentEvents(t, doc.ID); got != eventsBefore+1 {
		t.Fatalf("expected a document event from delete, had %d now %d", eventsBefore, got)
	}
}

func TestQuoteConversion(t *testing.T) {
	ctx := setupIntegration(t)

	outlet, err := models.CreateOutlet(ctx, &models.NewOutlet{
		Name:    "Quote Store",
		TaxRate: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("create outlet: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Gadget",
		Price:        decimal.NewFromInt(50),
		InitialStock: 4,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	// Quotes need no customer and have no stock effect.
	quote, err := workflow.CreateDocument(ctx, &models.NewInvoiceDocument{
		OutletId: outlet.ID,
		Kind:     models.DocumentKindQuote,
		LineItems: []models.NewLineItem{
			{ProductId: &product.ID, Name: product.Name, Qty: 4, UnitPrice: product.Price},
		},
	})
	if err != nil {
		t.Fatalf("create quote: %v", err)
	}
	if quote.CurrentStatus != models.DocumentStatusDraft {
		t.Fatalf("expected draft, got %s", quote.CurrentStatus)
	}
	if got := currentStock(t, ctx, product.ID); got != 4 {
		t.Fatalf("quote must not touch stock, got %d", got)
	}

	// Shrink the available stock below the quoted quantity: conversion must
	// fail the pre-flight and leave the quote untouched.
	if _, err := workflow.AdjustStock(ctx, product.ID, 2, nil); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	_, err = workflow.ConvertQuoteToInvoice(ctx, quote.ID)
	var short *models.InsufficientStockError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if short.Requested != 4 || short.Available != 2 {
		t.Fatalf("expected requested 4 available 2, got %+v", short)
	}
	reloaded, err := models.GetDocument(ctx, quote.ID)
	if err != nil {
		t.Fatalf("reload quote: %v", err)
	}
	if reloaded.Kind != models.DocumentKindQuote || reloaded.CurrentStatus != models.DocumentStatusDraft {
		t.Fatalf("failed conversion mutated the quote: %s %s", reloaded.Kind, reloaded.CurrentStatus)
	}
	if got := currentStock(t, ctx, product.ID); got != 2 {
		t.Fatalf("failed conversion mutated stock, got %d", got)
	}

	// Restore stock and convert for real. The correction reference lands on
	// the adjustment record.
	recount := "recount-2026-08"
	if _, err := workflow.AdjustStock(ctx, product.ID, 6, &recount); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	history, err := models.GetStockHistory(ctx, config.GetDB(), product.ID)
	if err != nil {
		t.Fatalf("stock history: %v", err)
	}
	if len(history) == 0 || history[0].Reference == nil || *history[0].Reference != recount {
		t.Fatalf("expected newest adjustment to carry reference %q, got %+v", recount, history)
	}
	converted, err := workflow.ConvertQuoteToInvoice(ctx, quote.ID)
	if err != nil {
		t.Fatalf("convert quote: %v", err)
	}
	if converted.Kind != models.DocumentKindInvoice || converted.CurrentStatus != models.DocumentStatusIssued {
		t.Fatalf("expected issued invoice, got %s %s", converted.Kind, converted.CurrentStatus)
	}
	if got := currentStock(t, ctx, product.ID); got != 2 {
		t.Fatalf("expected stock 2 after conversion, got %d", got)
	}
	if n := countJournalEntries(t, "invoice:"+strconv.Itoa(converted.ID)); n != 1 {
		t.Fatalf("expected 1 journal entry after conversion, got %d", n)
	}
}

func TestUntrackedProductSkipsStock(t *testing.T) {
	ctx := setupIntegration(t)

	outlet, err := models.CreateOutlet(ctx, &models.NewOutlet{
		Name:    "Service Desk",
		TaxRate: decimal.Zero,
	})
	if err != nil {
		t.Fatalf("create outlet: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Walk In"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	service, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:            "Installation",
		Price:           decimal.NewFromInt(80),
		TracksInventory: utils.NewFalse(),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	doc, err := workflow.CreateDocument(ctx, &models.NewInvoiceDocument{
		CustomerId: &customer.ID,
		OutletId:   outlet.ID,
		Kind:       models.DocumentKindInvoice,
		LineItems: []models.NewLineItem{
			{ProductId: &service.ID, Name: service.Name, Qty: 2, UnitPrice: service.Price},
		},
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if !doc.Total.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("expected total 160, got %s", doc.Total)
	}
	if got := currentStock(t, ctx, service.ID); got != 0 {
		t.Fatalf("untracked product stock should stay 0, got %d", got)
	}
	var records []*models.StockAdjustmentRecord
	records, err = models.GetStockHistory(ctx, config.GetDB(), service.ID)
	if err != nil {
		t.Fatalf("stock history: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("untracked product should have no adjustment records, got %d", len(records))
	}
}

func TestCreateDocumentRollsBackOnJournalFailure(t *testing.T) {
	ctx := setupIntegration(t)

	// The outlet routes sales to an account code nobody ever created, so the
	// journal step of invoice creation must fail after stock was reserved.
	missing := "ZZ-MISSING"
	outlet, err := models.CreateOutlet(ctx, &models.NewOutlet{
		Name:             "Broken Outlet",
		TaxRate:          decimal.NewFromInt(5),
		SalesAccountCode: &missing,
	})
	if err != nil {
		t.Fatalf("create outlet: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Unlucky Co"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Sprocket",
		Price:        decimal.NewFromInt(100),
		InitialStock: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err = workflow.CreateDocument(ctx, &models.NewInvoiceDocument{
		CustomerId: &customer.ID,
		OutletId:   outlet.ID,
		Kind:       models.DocumentKindInvoice,
		LineItems: []models.NewLineItem{
			{ProductId: &product.ID, Name: product.Name, Qty: 3, UnitPrice: product.Price},
		},
	})
	var incomplete *models.ChartOfAccountsIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected ChartOfAccountsIncompleteError, got %v", err)
	}
	if incomplete.MissingCode != missing {
		t.Fatalf("expected missing code %s, got %s", missing, incomplete.MissingCode)
	}

	// Nothing from the failed unit of work may remain: no document, no stock
	// movement, no adjustment record beyond the initial one.
	var docCount int64
	if err := config.GetDB().Model(&models.InvoiceDocument{}).
		Where("outlet_id = ?", outlet.ID).
		Count(&docCount).Error; err != nil {
		t.Fatalf("count documents: %v", err)
	}
	if docCount != 0 {
		t.Fatalf("failed creation left %d documents behind", docCount)
	}
	if got := currentStock(t, ctx, product.ID); got != 10 {
		t.Fatalf("failed creation moved stock, got %d", got)
	}
	history, err := models.GetStockHistory(ctx, config.GetDB(), product.ID)
	if err != nil {
		t.Fatalf("stock history: %v", err)
	}
	if len(history) != 1 || history[0].Reason != models.StockReasonInitial {
		t.Fatalf("failed creation left adjustment records behind: %+v", history)
	}
}

func TestEditRoundTripRestoresStock(t *testing.T) {
	ctx := setupIntegration(t)

	outlet, err := models.CreateOutlet(ctx, &models.NewOutlet{
		Name:    "Round Trip Store",
		TaxRate: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("create outlet: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Fickle Buyer"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Cog",
		Price:        decimal.NewFromInt(100),
		InitialStock: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	doc, err := workflow.CreateDocument(ctx, &models.NewInvoiceDocument{
		CustomerId: &customer.ID,
		OutletId:   outlet.ID,
		Kind:       models.DocumentKindInvoice,
		LineItems: []models.NewLineItem{
			{ProductId: &product.ID, Name: product.Name, Qty: 3, UnitPrice: product.Price},
		},
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if got := currentStock(t, ctx, product.ID); got != 7 {
		t.Fatalf("expected stock 7 after invoice, got %d", got)
	}

	// Edit away and back again: the net stock effect of the edits is zero.
	if _, err := workflow.EditDocument(ctx, doc.ID, []models.NewLineItem{
		{ProductId: &product.ID, Name: product.Name, Qty: 5, UnitPrice: product.Price},
	}); err != nil {
		t.Fatalf("edit to 5: %v", err)
	}
	if got := currentStock(t, ctx, product.ID); got != 5 {
		t.Fatalf("expected stock 5 after first edit, got %d", got)
	}
	if _, err := workflow.EditDocument(ctx, doc.ID, []models.NewLineItem{
		{ProductId: &product.ID, Name: product.Name, Qty: 3, UnitPrice: product.Price},
	}); err != nil {
		t.Fatalf("edit back to 3: %v", err)
	}
	if got := currentStock(t, ctx, product.ID); got != 7 {
		t.Fatalf("expected stock back at 7 after reverting the edit, got %d", got)
	}
}

func TestConcurrentEditsSerialize(t *testing.T) {
	ctx := setupIntegration(t)

	outlet, err := models.CreateOutlet(ctx, &models.NewOutlet{
		Name:    "Busy Store",
		TaxRate: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("create outlet: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Rush Order Inc"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Flywheel",
		Price:        decimal.NewFromInt(100),
		InitialStock: 20,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	doc, err := workflow.CreateDocument(ctx, &models.NewInvoiceDocument{
		CustomerId: &customer.ID,
		OutletId:   outlet.ID,
		Kind:       models.DocumentKindInvoice,
		LineItems: []models.NewLineItem{
			{ProductId: &product.ID, Name: product.Name, Qty: 2, UnitPrice: product.Price},
		},
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	// Two edits race on the same document. Each must compute its delta from
	// the line items the other one committed, so whichever quantity wins,
	// stock on hand plus the invoiced quantity equals the initial 20.
	quantities := []int{5, 3}
	errCh := make(chan error, len(quantities))
	var wg sync.WaitGroup
	for _, qty := range quantities {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			_, err := workflow.EditDocument(ctx, doc.ID, []models.NewLineItem{
				{ProductId: &product.ID, Name: product.Name, Qty: qty, UnitPrice: product.Price},
			})
			errCh <- err
		}(qty)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent edit: %v", err)
		}
	}

	reloaded, err := models.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("reload document: %v", err)
	}
	if len(reloaded.LineItems) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(reloaded.LineItems))
	}
	finalQty := reloaded.LineItems[0].Qty
	if finalQty != 5 && finalQty != 3 {
		t.Fatalf("unexpected final quantity %d", finalQty)
	}
	if got := currentStock(t, ctx, product.ID); got+finalQty != 20 {
		t.Fatalf("stock %d plus invoiced %d should equal 20", got, finalQty)
	}
}
