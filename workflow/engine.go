package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/Roon627/ITnVend-sub003/models"
	"github.com/Roon627/ITnVend-sub003/utils"
)

// The ledger engine. Every operation here is one unit of work: the document
// write, its stock ledger effects, its journal entry, and its outbox events
// commit together or not at all.

const engineModuleName = "workflow"

func documentReference(documentId int) *string {
	ref := fmt.Sprintf("document:%d", documentId)
	return &ref
}

func validateLineProducts(ctx context.Context, lines []models.LineItem) error {
	productIds := make([]int, 0, len(lines))
	for i := range lines {
		if lines[i].ProductId != nil {
			productIds = append(productIds, *lines[i].ProductId)
		}
	}
	return utils.ValidateResourceIds[models.Product](ctx, productIds)
}

// postSaleJournal builds and persists the double-entry record for an invoice
// inside the caller's transaction.
func postSaleJournal(ctx context.Context, tx *gorm.DB, doc *models.InvoiceDocument, outlet *models.Outlet) error {
	chart, err := models.LoadChartOfAccounts(ctx)
	if err != nil {
		return err
	}
	customerName := ""
	if doc.CustomerId != nil {
		customer, err := models.GetCustomer(ctx, *doc.CustomerId)
		if err != nil {
			return err
		}
		customerName = customer.Name
	}
	entry, err := models.BuildSaleEntry(doc, customerName, chart, outlet)
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// CreateDocument persists a new invoice or quote. Invoices reserve stock for
// every resolvable line and post a sale journal entry; quotes have no stock
// or journal effect.
func CreateDocument(ctx context.Context, input *models.NewInvoiceDocument) (*models.InvoiceDocument, error) {
	logger := config.GetLogger()

	if !input.Kind.Valid() {
		return nil, fmt.Errorf("%s is not a valid document kind", input.Kind)
	}
	outlet, err := models.GetOutlet(ctx, input.OutletId)
	if err != nil {
		return nil, models.WrapStorageError("CreateDocument", err)
	}
	if input.CustomerId != nil {
		if err := utils.ValidateResourceId[models.Customer](ctx, *input.CustomerId); err != nil {
			return nil, models.WrapStorageError("CreateDocument", err)
		}
	} else if input.Kind == models.DocumentKindInvoice {
		return nil, errors.New("invoice requires a customer")
	}

	lines, err := models.NormalizeLineItems(input.LineItems)
	if err != nil {
		return nil, err
	}
	if err := validateLineProducts(ctx, lines); err != nil {
		return nil, models.WrapStorageError("CreateDocument", err)
	}

	doc := models.InvoiceDocument{
		CustomerId:    input.CustomerId,
		OutletId:      input.OutletId,
		Kind:          input.Kind,
		CurrentStatus: models.InitialDocumentStatus(input.Kind),
		TaxRate:       outlet.TaxRate,
		DocumentDate:  time.Now().UTC(),
		LineItems:     lines,
	}
	doc.ApplyTotals()

	db := config.GetDB()
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&doc).Error; err != nil {
			return err
		}

		if doc.Kind == models.DocumentKindInvoice {
			quantities, productIds := models.QuantitiesByProduct(doc.LineItems)
			mutations := make([]*models.StockMutation, 0, len(productIds))
			for _, productId := range productIds {
				mutation, err := models.ReserveStock(ctx, tx, productId, quantities[productId],
					models.StockReasonSale, documentReference(doc.ID))
				if err != nil {
					return err
				}
				mutations = append(mutations, mutation)
			}
			if err := postSaleJournal(ctx, tx, &doc, outlet); err != nil {
				return err
			}
			if err := models.EnqueueStockChanged(ctx, tx, mutations...); err != nil {
				return err
			}
		}
		return models.EnqueueDocumentChanged(ctx, tx, &doc)
	})
	if err != nil {
		config.LogError(logger, engineModuleName, "CreateDocument", "create", doc, err)
		return nil, models.WrapStorageError("CreateDocument", err)
	}
	return models.GetDocument(ctx, doc.ID)
}

// EditDocument replaces a document's line item set atomically. Stock effects
// apply only when the document is an invoice, as the delta between the old
// and new quantity per product. The journal entry is never re-posted.
func EditDocument(ctx context.Context, documentId int, newLineItems []models.NewLineItem) (*models.InvoiceDocument, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	afterLines, err := models.NormalizeLineItems(newLineItems)
	if err != nil {
		return nil, err
	}
	// The before set may reference deleted products; only the after set is
	// validated.
	if err := validateLineProducts(ctx, afterLines); err != nil {
		return nil, models.WrapStorageError("EditDocument", err)
	}

	var doc *models.InvoiceDocument
	err = db.Transaction(func(tx *gorm.DB) error {
		// Edits on the same document serialize on an advisory lock held for
		// the whole transaction, so two concurrent edits cannot compute
		// deltas against the same before set. GET_LOCK is connection-scoped,
		// so it must be taken on the tx session and released before commit.
		if err := AcquireDocumentLock(tx.WithContext(ctx), documentId); err != nil {
			return err
		}
		defer ReleaseDocumentLock(tx.WithContext(ctx), documentId)

		var err error
		doc, err = models.GetDocumentTx(ctx, tx, documentId)
		if err != nil {
			return err
		}

		beforeQty, _ := models.QuantitiesByProduct(doc.LineItems)
		afterQty, _ := models.QuantitiesByProduct(afterLines)
		deltas := make(map[int]int)
		for productId, qty := range afterQty {
			deltas[productId] = qty - beforeQty[productId]
		}
		for productId, qty := range beforeQty {
			if _, ok := afterQty[productId]; !ok {
				deltas[productId] = -qty
			}
		}
		productIds := make([]int, 0, len(deltas))
		for productId := range deltas {
			productIds = append(productIds, productId)
		}
		sort.Ints(productIds)

		mutations := make([]*models.StockMutation, 0, len(productIds))
		if doc.Kind == models.DocumentKindInvoice {
			for _, productId := range productIds {
				delta := deltas[productId]
				var mutation *models.StockMutation
				var err error
				switch {
				case delta > 0:
					mutation, err = models.ReserveStock(ctx, tx, productId, delta,
						models.StockReasonSaleEdit, documentReference(doc.ID))
				case delta < 0:
					mutation, err = models.ReleaseStock(ctx, tx, productId, -delta,
						models.StockReasonSaleEdit, documentReference(doc.ID))
				default:
					continue
				}
				if err != nil {
					return err
				}
				mutations = append(mutations, mutation)
			}
		}

		if err := tx.WithContext(ctx).
			Where("document_id = ?", doc.ID).
			Delete(&models.LineItem{}).Error; err != nil {
			return err
		}
		for i := range afterLines {
			afterLines[i].DocumentId = doc.ID
		}
		if err := tx.WithContext(ctx).Create(&afterLines).Error; err != nil {
			return err
		}

		doc.LineItems = afterLines
		doc.ApplyTotals()
		if err := tx.WithContext(ctx).Model(&models.InvoiceDocument{}).
			Where("id = ?", doc.ID).
			Updates(map[string]interface{}{
				"subtotal":   doc.Subtotal,
				"tax_amount": doc.TaxAmount,
				"total":      doc.Total,
			}).Error; err != nil {
			return err
		}

		if err := models.EnqueueStockChanged(ctx, tx, mutations...); err != nil {
			return err
		}
		return models.EnqueueDocumentChanged(ctx, tx, doc)
	})
	if err != nil {
		config.LogError(logger, engineModuleName, "EditDocument", "edit", documentId, err)
		return nil, models.WrapStorageError("EditDocument", err)
	}
	return models.GetDocument(ctx, doc.ID)
}

// ConvertQuoteToInvoice flips a non-terminal quote into an issued invoice:
// pre-flight the stock for all lines, reserve, post the journal entry, then
// re-stamp the document date. Any failure leaves the quote untouched.
func ConvertQuoteToInvoice(ctx context.Context, documentId int) (*models.InvoiceDocument, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var doc *models.InvoiceDocument
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := AcquireDocumentLock(tx.WithContext(ctx), documentId); err != nil {
			return err
		}
		defer ReleaseDocumentLock(tx.WithContext(ctx), documentId)

		var err error
		doc, err = models.GetDocumentTx(ctx, tx, documentId)
		if err != nil {
			return err
		}
		if doc.Kind != models.DocumentKindQuote || models.IsTerminalStatus(doc.Kind, doc.CurrentStatus) {
			return &models.InvalidTransitionError{
				DocumentId: doc.ID,
				Kind:       doc.Kind,
				Current:    doc.CurrentStatus,
				Requested:  models.DocumentStatusIssued,
			}
		}

		outlet, err := models.GetOutlet(ctx, doc.OutletId)
		if err != nil {
			return err
		}

		quantities, productIds := models.QuantitiesByProduct(doc.LineItems)
		// Two-pass: verify stock for every line under row locks before
		// reserving anything, so a short later line cannot strand earlier
		// reservations.
		if err := models.PreflightStock(ctx, tx, quantities, productIds); err != nil {
			return err
		}
		mutations := make([]*models.StockMutation, 0, len(productIds))
		for _, productId := range productIds {
			mutation, err := models.ReserveStock(ctx, tx, productId, quantities[productId],
				models.StockReasonQuoteConversion, documentReference(doc.ID))
			if err != nil {
				return err
			}
			mutations = append(mutations, mutation)
		}

		doc.Kind = models.DocumentKindInvoice
		doc.CurrentStatus = models.DocumentStatusIssued
		doc.DocumentDate = time.Now().UTC()
		if err := postSaleJournal(ctx, tx, doc, outlet); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Model(&models.InvoiceDocument{}).
			Where("id = ?", doc.ID).
			Updates(map[string]interface{}{
				"kind":           doc.Kind,
				"current_status": doc.CurrentStatus,
				"document_date":  doc.DocumentDate,
			}).Error; err != nil {
			return err
		}

		if err := models.EnqueueStockChanged(ctx, tx, mutations...); err != nil {
			return err
		}
		return models.EnqueueDocumentChanged(ctx, tx, doc)
	})
	if err != nil {
		config.LogError(logger, engineModuleName, "ConvertQuoteToInvoice", "convert", documentId, err)
		return nil, models.WrapStorageError("ConvertQuoteToInvoice", err)
	}
	return models.GetDocument(ctx, doc.ID)
}

// TransitionStatus moves a document through its per-kind state machine. It
// changes the status field only; stock and journal effects belong to the
// operations that create, edit, convert, or delete documents.
func TransitionStatus(ctx context.Context, documentId int, newStatus models.DocumentStatus) (*models.InvoiceDocument, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var doc *models.InvoiceDocument
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := AcquireDocumentLock(tx.WithContext(ctx), documentId); err != nil {
			return err
		}
		defer ReleaseDocumentLock(tx.WithContext(ctx), documentId)

		var err error
		doc, err = models.GetDocumentTx(ctx, tx, documentId)
		if err != nil {
			return err
		}
		if err := doc.ValidateTransition(newStatus); err != nil {
			return err
		}

		doc.CurrentStatus = newStatus
		if err := tx.WithContext(ctx).Model(&models.InvoiceDocument{}).
			Where("id = ?", doc.ID).
			Update("current_status", newStatus).Error; err != nil {
			return err
		}
		return models.EnqueueDocumentChanged(ctx, tx, doc)
	})
	if err != nil {
		config.LogError(logger, engineModuleName, "TransitionStatus", "transition", documentId, err)
		return nil, models.WrapStorageError("TransitionStatus", err)
	}
	return doc, nil
}

// DeleteDocument removes a document and its line items. Invoice deletion
// releases the reserved stock; the journal entry is not reversed.
func DeleteDocument(ctx context.Context, documentId int) error {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := AcquireDocumentLock(tx.WithContext(ctx), documentId); err != nil {
			return err
		}
		defer ReleaseDocumentLock(tx.WithContext(ctx), documentId)

		doc, err := models.GetDocumentTx(ctx, tx, documentId)
		if err != nil {
			return err
		}

		quantities, productIds := models.QuantitiesByProduct(doc.LineItems)
		mutations := make([]*models.StockMutation, 0, len(productIds))
		if doc.Kind == models.DocumentKindInvoice {
			for _, productId := range productIds {
				mutation, err := models.ReleaseStock(ctx, tx, productId, quantities[productId],
					models.StockReasonSaleReversal, documentReference(doc.ID))
				if err != nil {
					return err
				}
				mutations = append(mutations, mutation)
			}
		}
		if err := tx.WithContext(ctx).
			Where("document_id = ?", doc.ID).
			Delete(&models.LineItem{}).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Delete(&models.InvoiceDocument{}, doc.ID).Error; err != nil {
			return err
		}
		if err := models.EnqueueStockChanged(ctx, tx, mutations...); err != nil {
			return err
		}
		return models.EnqueueDocumentChanged(ctx, tx, doc)
	})
	if err != nil {
		config.LogError(logger, engineModuleName, "DeleteDocument", "delete", documentId, err)
		return models.WrapStorageError("DeleteDocument", err)
	}
	return nil
}

// AdjustStock is the manual correction path: set a product's stock to an
// absolute level and record the implied delta. Applies even to untracked
// products.
func AdjustStock(ctx context.Context, productId int, newQuantity int, reference *string) (*models.Product, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.Transaction(func(tx *gorm.DB) error {
		mutation, err := models.SetAbsoluteStock(ctx, tx, productId, newQuantity,
			models.StockReasonManualCorrection, reference)
		if err != nil {
			return err
		}
		return models.EnqueueStockChanged(ctx, tx, mutation)
	})
	if err != nil {
		config.LogError(logger, engineModuleName, "AdjustStock", "set-absolute", productId, err)
		return nil, models.WrapStorageError("AdjustStock", err)
	}
	return models.GetProduct(ctx, productId)
}
