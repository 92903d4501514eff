// Package queue moves transaction IDs from the generators to the fraud
// handler over Kafka.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/phishnet/internal/common"
)

// Message errors.
var (
	ErrMalformedMessage = errors.New("malformed queue message")
	ErrMissingID        = errors.New("queue message has no TransactionID")
)

// Message is the payload published for every new transaction.
type Message struct {
	TransactionID string `json:"TransactionID"`
}

// Encode renders the message for transactionID.
func Encode(transactionID string) ([]byte, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("%w: empty transaction ID", common.ErrInvalidInput)
	}
	return json.Marshal(Message{TransactionID: transactionID})
}

// Decode extracts the transaction ID from a message body. Bodies that were
// JSON-encoded twice (a JSON string holding the object) are accepted.
func Decode(body []byte) (string, error) {
	var raw json.RawMessage = body

	var nested string
	if err := json.Unmarshal(raw, &nested); err == nil {
		raw = json.RawMessage(nested)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	id := strings.TrimSpace(msg.TransactionID)
	if id == "" {
		return "", ErrMissingID
	}
	return id, nil
}
