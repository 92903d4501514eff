// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/shopspring/decimal"
)

// TransactionStatus tracks where a transaction is in the review flow.
type TransactionStatus string

// Transaction status constants.
const (
	StatusPending    TransactionStatus = "Pending"
	StatusSentToUser TransactionStatus = "Sent to User"
	StatusCleared    TransactionStatus = "Cleared"
)

// Valid reports whether s is one of the known statuses.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSentToUser, StatusCleared:
		return true
	default:
		return false
	}
}

// UnknownValue fills optional string fields that were not supplied.
const UnknownValue = "Unknown"

// Transaction represents a single card transaction awaiting or past fraud review.
type Transaction struct {
	Timestamp     time.Time         `json:"Timestamp"`
	ActualFraud   *bool             `json:"IsActualFraud,omitempty"` // Ground truth, synthetic data only
	ID            string            `json:"TransactionID"`
	UserID        string            `json:"UserID"`
	Merchant      string            `json:"Merchant"`
	Category      string            `json:"Category"`
	PaymentMethod string            `json:"PaymentMethod"`
	Location      string            `json:"Location"`
	Status        TransactionStatus `json:"Status"`
	Amount        decimal.Decimal   `json:"Amount"`

	// BaseRiskIndicator is the merchant's prior fraud weight in [0,1].
	BaseRiskIndicator float64 `json:"RiskScore"`
}

// Validate checks the invariants the scoring rules rely on.
func (t *Transaction) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil transaction", common.ErrInvalidInput)
	}
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: missing transaction ID", common.ErrInvalidInput)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: transaction %s has negative amount %s", common.ErrInvalidInput, t.ID, t.Amount.String())
	}
	if math.IsNaN(t.BaseRiskIndicator) || t.BaseRiskIndicator < 0 || t.BaseRiskIndicator > 1 {
		return fmt.Errorf("%w: transaction %s has base risk %v outside [0,1]", common.ErrInvalidInput, t.ID, t.BaseRiskIndicator)
	}
	return nil
}

// Normalize returns a copy with documented defaults applied to optional fields.
func (t Transaction) Normalize() Transaction {
	t.ID = strings.TrimSpace(t.ID)
	t.Location = strings.TrimSpace(t.Location)
	if t.Location == "" {
		t.Location = UnknownValue
	}
	if strings.TrimSpace(t.UserID) == "" {
		t.UserID = UnknownValue
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	return t
}

// Label returns the ground truth fraud label and whether one is present.
func (t *Transaction) Label() (fraud bool, ok bool) {
	if t.ActualFraud == nil {
		return false, false
	}
	return *t.ActualFraud, true
}

// WithLabel returns a copy carrying the given ground truth label.
func (t Transaction) WithLabel(fraud bool) Transaction {
	t.ActualFraud = &fraud
	return t
}

// ParseAmount parses a monetary amount, rejecting anything that is not a
// non-negative number.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", common.ErrInvalidInput)
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", common.ErrInvalidInput, raw)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount %q is negative", common.ErrInvalidInput, raw)
	}
	return amount, nil
}
