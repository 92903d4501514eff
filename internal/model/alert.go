package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AlertSubject is the subject line used for every fraud alert.
const AlertSubject = "Fraud Alert Notification"

// Alert is a request to tell a user that one of their transactions was flagged.
type Alert struct {
	TransactionID string
	UserID        string
	Email         string // Optional; channel default used when empty
	Phone         string // Optional; channel default used when empty
	Amount        decimal.Decimal
	Score         FraudScore
}

// Body renders the alert text shared by every channel.
func (a Alert) Body() string {
	return fmt.Sprintf("Fraud Alert Detected \n"+
		"- Transaction ID: %s\n"+
		"- Amount: $%s\n"+
		"- User: %s\n\n"+
		"Action is required to verify this transaction.",
		a.TransactionID, a.Amount.StringFixed(2), a.UserID)
}
