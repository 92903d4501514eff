// Package notify delivers fraud alerts over email (SNS), SMS (Twilio) and
// the local log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/service"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/twilio/twilio-go"
)

// Channel names accepted in configuration.
const (
	ChannelLog = "log"
	ChannelSNS = "sns"
	ChannelSMS = "sms"
)

// Config selects and configures alert channels.
type Config struct {
	Channels []string
	SNS      SNSConfig
	Twilio   TwilioConfig
	Retry    common.RetryOptions
}

// LogNotifier writes alerts to the structured log. It is the default channel
// for local runs.
type LogNotifier struct{}

// SendAlert logs the alert.
func (LogNotifier) SendAlert(_ context.Context, alert model.Alert) error {
	slog.Warn("Fraud alert",
		"transaction_id", alert.TransactionID,
		"user_id", alert.UserID,
		"amount", alert.Amount.StringFixed(2),
		"score", float64(alert.Score))
	return nil
}

// MultiNotifier sends every alert on all of its channels. One channel failing
// does not stop the others.
type MultiNotifier []service.Notifier

// SendAlert fans the alert out and joins any failures.
func (m MultiNotifier) SendAlert(ctx context.Context, alert model.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.SendAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Retrying retries transient delivery failures.
type Retrying struct {
	next service.Notifier
	opts common.RetryOptions
}

// WithRetry wraps n so that retryable errors are attempted again.
func WithRetry(n service.Notifier, opts common.RetryOptions) *Retrying {
	return &Retrying{next: n, opts: opts}
}

// SendAlert delivers the alert, retrying per the configured options.
func (r *Retrying) SendAlert(ctx context.Context, alert model.Alert) error {
	return common.WithRetry(ctx, func() error {
		return r.next.SendAlert(ctx, alert)
	}, r.opts)
}

// Build assembles the configured channels. With no channels configured,
// alerts go to the log.
func Build(ctx context.Context, cfg Config) (service.Notifier, error) {
	channels := cfg.Channels
	if len(channels) == 0 {
		channels = []string{ChannelLog}
	}

	var notifiers MultiNotifier
	seen := make(map[string]bool, len(channels))
	for _, ch := range channels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if seen[ch] {
			continue
		}
		seen[ch] = true

		switch ch {
		case ChannelLog:
			notifiers = append(notifiers, LogNotifier{})
		case ChannelSNS:
			n, err := newSNSFromEnvironment(ctx, cfg.SNS)
			if err != nil {
				return nil, err
			}
			notifiers = append(notifiers, n)
		case ChannelSMS:
			n, err := newTwilioFromConfig(cfg.Twilio)
			if err != nil {
				return nil, err
			}
			notifiers = append(notifiers, n)
		default:
			return nil, fmt.Errorf("%w: unknown alert channel %q", common.ErrInvalidConfig, ch)
		}
	}

	opts := cfg.Retry
	if opts.MaxAttempts == 0 {
		opts = common.DefaultRetryOptions()
	}

	var notifier service.Notifier = notifiers
	if len(notifiers) == 1 {
		notifier = notifiers[0]
	}
	return WithRetry(notifier, opts), nil
}

func newSNSFromEnvironment(ctx context.Context, cfg SNSConfig) (*SNSNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return NewSNSNotifier(sns.NewFromConfig(awsCfg), cfg), nil
}

func newTwilioFromConfig(cfg TwilioConfig) (*TwilioNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewTwilioNotifier(client.Api, cfg), nil
}

func failed(channel string, alert model.Alert, err error) error {
	return fmt.Errorf("%w: %s alert for transaction %s: %w", common.ErrNotifyFailed, channel, alert.TransactionID, err)
}
