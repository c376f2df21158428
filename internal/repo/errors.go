package repo

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrInsufficientFunds is returned when wallet balance is not enough.
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrUnknownCurrency   = errors.New("unknown currency")
	// ErrTransactionNotFound means no transaction carries the provider reference.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrReferenceConflict means the reference is already used by a different
	// kind of transaction or by another account.
	ErrReferenceConflict = errors.New("provider reference conflict")
	// ErrInvalidTransition guards PENDING -> SUCCEEDED|FAILED; settled rows never move.
	ErrInvalidTransition = errors.New("invalid transaction status transition")
	ErrVersionConflict   = errors.New("optimistic lock conflict")
	// ErrStoreUnavailable wraps every failure that is not a ledger outcome.
	// Callers may retry.
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)

var domainErrors = []error{
	ErrInsufficientFunds,
	ErrAccountNotFound,
	ErrAccountExists,
	ErrWalletNotFound,
	ErrUnknownCurrency,
	ErrTransactionNotFound,
	ErrReferenceConflict,
	ErrInvalidTransition,
}

// IsDomainError reports whether err is a ledger outcome rather than an
// infrastructure failure.
func IsDomainError(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

func classify(err error) error {
	if err == nil || IsDomainError(err) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func notFound(err, as error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return as
	}
	return err
}
