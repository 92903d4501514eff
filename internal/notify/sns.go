package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSConfig configures email alerts through an SNS topic.
type SNSConfig struct {
	TopicARN     string
	Region       string
	DefaultEmail string
}

// Validate checks the settings SNS needs.
func (c SNSConfig) Validate() error {
	if strings.TrimSpace(c.TopicARN) == "" {
		return fmt.Errorf("%w: sns topic ARN", common.ErrMissingConfig)
	}
	return nil
}

// SNSPublisher is the part of the SNS client used for alerts.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes alerts to a topic that fans out to email
// subscriptions.
type SNSNotifier struct {
	client       SNSPublisher
	topicARN     string
	defaultEmail string
}

// NewSNSNotifier creates an SNS alert channel.
func NewSNSNotifier(client SNSPublisher, cfg SNSConfig) *SNSNotifier {
	return &SNSNotifier{
		client:       client,
		topicARN:     cfg.TopicARN,
		defaultEmail: cfg.DefaultEmail,
	}
}

// SendAlert publishes the alert. The recipient travels as the "email"
// message attribute so subscription filter policies can route it.
func (n *SNSNotifier) SendAlert(ctx context.Context, alert model.Alert) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(model.AlertSubject),
		Message:  aws.String(alert.Body()),
	}

	recipient := alert.Email
	if recipient == "" {
		recipient = n.defaultEmail
	}
	if recipient != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"email": {
				DataType:    aws.String("String"),
				StringValue: aws.String(recipient),
			},
		}
	}

	out, err := n.client.Publish(ctx, input)
	if err != nil {
		return failed(ChannelSNS, alert, err)
	}

	slog.Info("Fraud alert email sent",
		"transaction_id", alert.TransactionID,
		"message_id", aws.ToString(out.MessageId))
	return nil
}
