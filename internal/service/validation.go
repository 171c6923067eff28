package service

import (
	"errors"

	"tallybook/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// ValidationError reports a payload the caller must fix before resubmitting.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid transaction: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Fields returns per-field messages when available.
func (e *ValidationError) Fields() map[string]string {
	var errs validation.Errors
	if !errors.As(e.Err, &errs) {
		return nil
	}
	out := make(map[string]string, len(errs))
	for field, err := range errs {
		out[field] = err.Error()
	}
	return out
}

var positiveAmount = validation.By(func(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal")
	}
	if !amount.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
})

// ValidatePayload checks a transaction before it is written anywhere.
func ValidatePayload(p models.Transaction) error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Amount, positiveAmount),
		validation.Field(&p.Type, validation.Required, validation.In(models.TransactionIncome, models.TransactionExpense)),
		validation.Field(&p.Category, validation.Required, validation.Length(1, 64)),
		validation.Field(&p.Description, validation.Length(0, 500)),
		validation.Field(&p.Date, validation.Required),
		validation.Field(&p.OwnerID, validation.Required),
	)
	if err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}
