package testutil

import (
	"time"

	"github.com/Veraticus/phishnet/internal/model"
	"github.com/shopspring/decimal"
)

// FixedTime is the timestamp given to built fixtures.
var FixedTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// TransactionBuilder provides a fluent interface for constructing test
// transactions. The defaults describe a small, low-risk purchase.
type TransactionBuilder struct {
	txn model.Transaction
}

// NewTransaction starts a builder for a transaction with the given ID.
func NewTransaction(id string) *TransactionBuilder {
	return &TransactionBuilder{txn: model.Transaction{
		ID:                id,
		UserID:            "user_0001",
		Amount:            decimal.NewFromInt(25),
		Timestamp:         FixedTime,
		Merchant:          "Starbucks",
		Category:          "Food",
		PaymentMethod:     "Credit Card",
		Location:          "New York",
		BaseRiskIndicator: 0.1,
		Status:            model.StatusPending,
	}}
}

// WithAmount sets the amount from a decimal string.
func (b *TransactionBuilder) WithAmount(amount string) *TransactionBuilder {
	b.txn.Amount = decimal.RequireFromString(amount)
	return b
}

// InLocation sets where the transaction happened.
func (b *TransactionBuilder) InLocation(location string) *TransactionBuilder {
	b.txn.Location = location
	return b
}

// ForUser sets the owning user.
func (b *TransactionBuilder) ForUser(userID string) *TransactionBuilder {
	b.txn.UserID = userID
	return b
}

// AtMerchant sets the merchant and its base risk.
func (b *TransactionBuilder) AtMerchant(name string, baseRisk float64) *TransactionBuilder {
	b.txn.Merchant = name
	b.txn.BaseRiskIndicator = baseRisk
	return b
}

// Labeled attaches a ground truth label.
func (b *TransactionBuilder) Labeled(fraud bool) *TransactionBuilder {
	b.txn = b.txn.WithLabel(fraud)
	return b
}

// Build returns the transaction.
func (b *TransactionBuilder) Build() model.Transaction {
	return b.txn
}

// HighRisk returns a transaction that scores 80 under the default rules.
func HighRisk(id string) model.Transaction {
	return NewTransaction(id).WithAmount("3500").InLocation("Tokyo").Build()
}

// LowRisk returns a transaction that scores 10 under the default rules.
func LowRisk(id string) model.Transaction {
	return NewTransaction(id).WithAmount("500").Build()
}

// NewUser returns an active user with travel mode off.
func NewUser(id string) model.User {
	return model.User{
		ID:        id,
		FirstName: "Test",
		LastName:  "User",
		Email:     id + "@example.com",
		Phone:     "+15555550100",
		Location:  "New York",
		Status:    model.UserActive,
		CreatedAt: FixedTime,
	}
}

// Traveling returns a copy of user with travel mode on for locations.
func Traveling(user model.User, locations ...string) model.User {
	user.Travel = model.TravelSettings{TravelModeEnabled: true, TrustedLocations: locations}
	return user
}
