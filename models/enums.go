package models

import "fmt"

type DocumentKind string

const (
	DocumentKindInvoice DocumentKind = "Invoice"
	DocumentKindQuote   DocumentKind = "Quote"
)

func (k DocumentKind) Valid() bool {
	return k == DocumentKindInvoice || k == DocumentKindQuote
}

type DocumentStatus string

const (
	// quote statuses
	DocumentStatusDraft     DocumentStatus = "Draft"
	DocumentStatusSent      DocumentStatus = "Sent"
	DocumentStatusAccepted  DocumentStatus = "Accepted"
	// invoice statuses
	DocumentStatusIssued DocumentStatus = "Issued"
	DocumentStatusPaid   DocumentStatus = "Paid"
	// shared terminal
	DocumentStatusCancelled DocumentStatus = "Cancelled"
)

func ParseDocumentStatus(s string) (DocumentStatus, error) {
	statuses := map[string]DocumentStatus{
		"Draft":     DocumentStatusDraft,
		"Sent":      DocumentStatusSent,
		"Accepted":  DocumentStatusAccepted,
		"Issued":    DocumentStatusIssued,
		"Paid":      DocumentStatusPaid,
		"Cancelled": DocumentStatusCancelled,
	}
	status, ok := statuses[s]
	if !ok {
		return "", fmt.Errorf("%s is not a valid document status", s)
	}
	return status, nil
}

type AccountMainType string

const (
	AccountMainTypeAsset     AccountMainType = "Asset"
	AccountMainTypeLiability AccountMainType = "Liability"
	AccountMainTypeEquity    AccountMainType = "Equity"
	AccountMainTypeRevenue   AccountMainType = "Revenue"
	AccountMainTypeExpense   AccountMainType = "Expense"
)

// System default account codes. Outlets reference these codes for posting;
// the seeded chart of accounts carries one account per code.
const (
	AccountCodeAccountsReceivable = "AR"
	AccountCodeSalesRevenue       = "SR"
	AccountCodeTaxPayable         = "TP"
	AccountCodeInventoryAsset     = "IA"
	AccountCodeOwnerEquity        = "OE"
	AccountCodeCostOfGoodsSold    = "CGS"
)

// Reasons recorded on stock adjustment records. Each stock mutation names
// why it happened so the audit trail reads without joining documents.
const (
	StockReasonInitial          = "initial"
	StockReasonSale             = "sale"
	StockReasonSaleEdit         = "sale-edit"
	StockReasonSaleReversal     = "sale-reversal"
	StockReasonQuoteConversion  = "quote-conversion"
	StockReasonManualCorrection = "manual-correction"
)

type JournalEntryStatus string

const (
	// this engine only posts finalized entries; drafts are out of scope
	JournalEntryStatusPosted JournalEntryStatus = "Posted"
)

type EventType string

const (
	EventTypeStockChanged    EventType = "StockChanged"
	EventTypeDocumentChanged EventType = "DocumentChanged"
)

// Outbox publish lifecycle. PENDING rows are picked up by the dispatcher,
// FAILED rows retry with backoff, DEAD rows need manual intervention.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusPublished  = "PUBLISHED"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
