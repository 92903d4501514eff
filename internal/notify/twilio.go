package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig configures SMS alerts.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	DefaultTo  string
}

// Validate checks the credentials and sender number.
func (c TwilioConfig) Validate() error {
	var missing []string
	if c.AccountSID == "" {
		missing = append(missing, "account SID")
	}
	if c.AuthToken == "" {
		missing = append(missing, "auth token")
	}
	if c.From == "" {
		missing = append(missing, "from number")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: twilio %s", common.ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// MessageCreator is the part of the Twilio API used for alerts.
type MessageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioNotifier texts alerts to the user's phone.
type TwilioNotifier struct {
	api       MessageCreator
	from      string
	defaultTo string
}

// NewTwilioNotifier creates an SMS alert channel.
func NewTwilioNotifier(api MessageCreator, cfg TwilioConfig) *TwilioNotifier {
	return &TwilioNotifier{
		api:       api,
		from:      cfg.From,
		defaultTo: cfg.DefaultTo,
	}
}

// SendAlert sends the alert body as an SMS.
func (n *TwilioNotifier) SendAlert(ctx context.Context, alert model.Alert) error {
	to := alert.Phone
	if to == "" {
		to = n.defaultTo
	}
	if to == "" {
		return common.Permanent(failed(ChannelSMS, alert,
			fmt.Errorf("%w: no phone number for user %s", common.ErrInvalidInput, alert.UserID)))
	}

	// The Twilio client has no context support.
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(n.from)
	params.SetBody(alert.Body())

	msg, err := n.api.CreateMessage(params)
	if err != nil {
		return failed(ChannelSMS, alert, err)
	}

	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	slog.Info("Fraud alert SMS sent",
		"transaction_id", alert.TransactionID,
		"sid", sid)
	return nil
}
