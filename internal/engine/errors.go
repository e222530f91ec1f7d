package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"jobpay/internal/domain"
	"jobpay/internal/engine/auth"
)

var (
	ErrUnauthenticated   = auth.ErrUnauthenticated
	ErrForbidden         = auth.ErrForbidden
	ErrNotFound          = domain.ErrNotFound
	ErrAlreadyPaid       = errors.New("job has already been paid")
	ErrInsufficientFunds = errors.New("insufficient balance to pay for the job")
	ErrInvalidRole       = errors.New("only clients can deposit money")
	ErrInvalidAmount     = errors.New("amount must be positive with at most two decimals")
	ErrInvalidRange      = errors.New("end must not be before start")
	ErrInvalidLimit      = errors.New("limit must be between 1 and 100")
)

// DepositLimitError reports a deposit above the allowed cap.
type DepositLimitError struct {
	Cap decimal.Decimal
}

func (e *DepositLimitError) Error() string {
	return fmt.Sprintf("deposit amount exceeds the allowed limit of %s", e.Cap.StringFixed(2))
}

// TransactionError wraps any failure inside the payment transaction that is
// not one of its preconditions. Nothing it covers was committed.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	if e.Op == "" {
		return "payment transaction: " + e.Err.Error()
	}
	return fmt.Sprintf("payment transaction: %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

func isPaymentPrecondition(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyPaid) || errors.Is(err, ErrInsufficientFunds)
}
