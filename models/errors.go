package models

import (
	"errors"
	"fmt"

	"github.com/Roon627/ITnVend-sub003/utils"
)

// Terminal error kinds raised by the ledger engine. Every multi-step
// operation rolls back fully on any of these; retry policy belongs to the
// calling layer.

type InsufficientStockError struct {
	ProductId int
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductId, e.Requested, e.Available)
}

type InvalidQuantityError struct {
	ProductId int
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for product %d", e.Quantity, e.ProductId)
}

type EmptyDocumentError struct{}

func (e *EmptyDocumentError) Error() string {
	return "document must have at least one line item with quantity > 0"
}

type InvalidTransitionError struct {
	DocumentId int
	Kind       DocumentKind
	Current    DocumentStatus
	Requested  DocumentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s %d: %s -> %s",
		e.Kind, e.DocumentId, e.Current, e.Requested)
}

type ChartOfAccountsIncompleteError struct {
	MissingCode string
}

func (e *ChartOfAccountsIncompleteError) Error() string {
	return fmt.Sprintf("chart of accounts is missing account code %q", e.MissingCode)
}

type NotFoundError struct {
	Resource string
	Id       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.Id)
}

// StorageUnavailableError hides raw storage failures from callers to avoid
// leaking implementation detail. The wrapped error stays available for logs.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s", e.Op)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// IsDomainError reports whether err is one of the engine's typed error kinds
// (as opposed to a raw storage failure that should be reported generically).
func IsDomainError(err error) bool {
	var (
		insufficientStock *InsufficientStockError
		invalidQuantity   *InvalidQuantityError
		emptyDocument     *EmptyDocumentError
		invalidTransition *InvalidTransitionError
		chartIncomplete   *ChartOfAccountsIncompleteError
		notFound          *NotFoundError
		storage           *StorageUnavailableError
	)
	return errors.As(err, &insufficientStock) ||
		errors.As(err, &invalidQuantity) ||
		errors.As(err, &emptyDocument) ||
		errors.As(err, &invalidTransition) ||
		errors.As(err, &chartIncomplete) ||
		errors.As(err, &notFound) ||
		errors.As(err, &storage) ||
		errors.Is(err, utils.ErrorRecordNotFound)
}

// WrapStorageError passes domain errors through unchanged and wraps anything
// else (driver errors, timeouts) as a generic StorageUnavailableError.
func WrapStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return err
	}
	return &StorageUnavailableError{Op: op, Err: err}
}
