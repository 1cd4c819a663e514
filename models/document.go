package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/Roon627/ITnVend-sub003/utils"
)

// InvoiceDocument is the sale aggregate. A document is either an invoice or
// a quote; the two share one table and one line item shape, and a quote can
// be converted into an invoice in place. Totals are derived from the line
// items and the captured tax rate, never accepted from callers.
type InvoiceDocument struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CustomerId    *int            `gorm:"index" json:"customer_id"`
	Customer      *Customer       `json:"customer,omitempty"`
	OutletId      int             `gorm:"index;not null" json:"outlet_id"`
	Outlet        *Outlet         `json:"outlet,omitempty"`
	Kind          DocumentKind    `gorm:"type:enum('Invoice','Quote');index;size:10;not null" json:"kind"`
	CurrentStatus DocumentStatus  `gorm:"index;size:10;not null" json:"current_status"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"subtotal"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"tax_amount"`
	Total         decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"total"`
	TaxRate       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"tax_rate"`
	DocumentDate  time.Time       `gorm:"index;not null" json:"document_date"`
	LineItems     []LineItem      `gorm:"foreignKey:DocumentId" json:"line_items"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LineItem captures the unit price at time of sale. ProductId is nullable so
// documents survive product deletion; Position preserves the caller's line
// order across reads.
type LineItem struct {
	ID         int             `gorm:"primary_key" json:"id"`
	DocumentId int             `gorm:"index;not null" json:"document_id"`
	ProductId  *int            `gorm:"index" json:"product_id"`
	Product    *Product        `json:"product,omitempty"`
	Name       string          `gorm:"size:100;not null" json:"name"`
	Qty        int             `gorm:"not null" json:"qty"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"unit_price"`
	Position   int             `gorm:"not null" json:"position"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (item *LineItem) Amount() decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty)))
}

type NewLineItem struct {
	ProductId *int            `json:"product_id"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type NewInvoiceDocument struct {
	CustomerId *int          `json:"customer_id"`
	OutletId   int           `json:"outlet_id"`
	Kind       DocumentKind  `json:"kind" binding:"required"`
	LineItems  []NewLineItem `json:"line_items" binding:"required"`
}

// NormalizeLineItems drops zero and negative quantity lines, rejects negative
// prices, and stamps positions. An empty result is EmptyDocumentError.
func NormalizeLineItems(inputs []NewLineItem) ([]LineItem, error) {
	lines := make([]LineItem, 0, len(inputs))
	for _, input := range inputs {
		if input.Qty <= 0 {
			continue
		}
		if input.UnitPrice.IsNegative() {
			return nil, &InvalidQuantityError{
				ProductId: utils.DereferencePtr(input.ProductId),
				Quantity:  input.Qty,
			}
		}
		lines = append(lines, LineItem{
			ProductId: input.ProductId,
			Name:      input.Name,
			Qty:       input.Qty,
			UnitPrice: input.UnitPrice,
			Position:  len(lines),
		})
	}
	if len(lines) == 0 {
		return nil, &EmptyDocumentError{}
	}
	return lines, nil
}

// ComputeTotals derives subtotal, tax, and total from the line items and the
// tax rate in effect. The rate is a percentage.
func ComputeTotals(lines []LineItem, taxRate decimal.Decimal) (subtotal, taxAmount, total decimal.Decimal) {
	subtotal = decimal.Zero
	for i := range lines {
		subtotal = subtotal.Add(lines[i].Amount())
	}
	taxAmount = utils.CalculateTaxAmount(subtotal, taxRate)
	total = subtotal.Add(taxAmount)
	return subtotal, taxAmount, total
}

func (doc *InvoiceDocument) ApplyTotals() {
	doc.Subtotal, doc.TaxAmount, doc.Total = ComputeTotals(doc.LineItems, doc.TaxRate)
}

// InitialDocumentStatus is Draft for quotes and Issued for invoices.
func InitialDocumentStatus(kind DocumentKind) DocumentStatus {
	if kind == DocumentKindQuote {
		return DocumentStatusDraft
	}
	return DocumentStatusIssued
}

var documentTransitions = map[DocumentKind]map[DocumentStatus][]DocumentStatus{
	DocumentKindQuote: {
		DocumentStatusDraft: {DocumentStatusSent, DocumentStatusCancelled},
		DocumentStatusSent:  {DocumentStatusAccepted, DocumentStatusCancelled},
	},
	DocumentKindInvoice: {
		DocumentStatusIssued: {DocumentStatusPaid, DocumentStatusCancelled},
	},
}

// IsTerminalStatus reports whether a status admits no further transitions
// for the given kind.
func IsTerminalStatus(kind DocumentKind, status DocumentStatus) bool {
	return len(documentTransitions[kind][status]) == 0
}

// ValidateTransition checks current -> requested against the per-kind state
// machine.
func (doc *InvoiceDocument) ValidateTransition(requested DocumentStatus) error {
	for _, next := range documentTransitions[doc.Kind][doc.CurrentStatus] {
		if next == requested {
			return nil
		}
	}
	return &InvalidTransitionError{
		DocumentId: doc.ID,
		Kind:       doc.Kind,
		Current:    doc.CurrentStatus,
		Requested:  requested,
	}
}

// QuantitiesByProduct aggregates line quantities per resolvable product.
// Lines without a product reference are skipped; the returned ids are
// sorted so callers lock products in a stable order.
func QuantitiesByProduct(lines []LineItem) (map[int]int, []int) {
	quantities := make(map[int]int)
	for i := range lines {
		if lines[i].ProductId == nil {
			continue
		}
		quantities[*lines[i].ProductId] += lines[i].Qty
	}
	ids := make([]int, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return quantities, ids
}

// GetDocument loads a document with its line items in position order.
func GetDocument(ctx context.Context, id int) (*InvoiceDocument, error) {
	return GetDocumentTx(ctx, config.GetDB(), id)
}

// GetDocumentTx is GetDocument on an explicit handle, for callers that must
// read the document inside an open transaction.
func GetDocumentTx(ctx context.Context, tx *gorm.DB, id int) (*InvoiceDocument, error) {
	var doc InvoiceDocument
	err := tx.WithContext(ctx).
		Preload("LineItems", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position")
		}).
		Preload("Customer").
		Preload("Outlet").
		First(&doc, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "document", Id: id}
		}
		return nil, err
	}
	return &doc, nil
}

// GetDocuments lists documents, optionally filtered by kind, newest first.
func GetDocuments(ctx context.Context, kind *DocumentKind) ([]*InvoiceDocument, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).
		Preload("LineItems", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position")
		})
	if kind != nil {
		query = query.Where("kind = ?", *kind)
	}
	var docs []*InvoiceDocument
	if err := query.Order("id DESC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
