package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/service"
)

// DefaultTopic is where transaction IDs are published.
const DefaultTopic = "transactions"

// DefaultGroupID is the consumer group of the fraud handler.
const DefaultGroupID = "phishnet-fraud-detection"

// Config holds Kafka connection settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Validate checks that the config can reach a topic.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("%w: no kafka brokers configured", common.ErrMissingConfig)
	}
	if strings.TrimSpace(c.Topic) == "" {
		return fmt.Errorf("%w: kafka topic is empty", common.ErrMissingConfig)
	}
	return nil
}

func newSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.ClientID = "phishnet"
	return cfg
}

// Producer publishes transaction IDs and waits for the broker ack.
type Producer struct {
	sp    sarama.SyncProducer
	topic string
}

var _ service.Publisher = (*Producer)(nil)

// NewProducer connects a synchronous producer.
func NewProducer(cfg Config) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scfg := newSaramaConfig()
	scfg.Producer.RequiredAcks = sarama.WaitForAll
	scfg.Producer.Retry.Max = 10
	scfg.Producer.Retry.Backoff = 200 * time.Millisecond
	scfg.Producer.Return.Successes = true
	scfg.Producer.Return.Errors = true

	sp, err := sarama.NewSyncProducer(cfg.Brokers, scfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerFrom(sp, cfg.Topic), nil
}

// NewProducerFrom wraps an existing sarama producer.
func NewProducerFrom(sp sarama.SyncProducer, topic string) *Producer {
	return &Producer{sp: sp, topic: topic}
}

// Publish sends transactionID keyed by itself so that retries of the same
// transaction land on the same partition.
func (p *Producer) Publish(ctx context.Context, transactionID string) error {
	payload, err := Encode(transactionID)
	if err != nil {
		return err
	}

	// SyncProducer doesn't take a context; check before sending.
	if err := ctx.Err(); err != nil {
		return err
	}

	partition, offset, err := p.sp.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(transactionID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to publish transaction %s: %w", transactionID, err)
	}

	slog.Debug("Published transaction",
		"transaction_id", transactionID,
		"partition", partition,
		"offset", offset)
	return nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	if p.sp != nil {
		return p.sp.Close()
	}
	return nil
}

// HandlerFunc processes one transaction ID taken off the queue.
type HandlerFunc func(ctx context.Context, transactionID string)

// Consumer reads transaction IDs as part of a consumer group.
type Consumer struct {
	group sarama.ConsumerGroup
	topic string
}

// NewConsumer joins the configured consumer group.
func NewConsumer(cfg Config) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = DefaultGroupID
	}

	scfg := newSaramaConfig()
	scfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	scfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	scfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, scfg)
	if err != nil {
		return nil, fmt.Errorf("failed to join consumer group %s: %w", groupID, err)
	}
	return &Consumer{group: group, topic: cfg.Topic}, nil
}

// Run consumes until ctx is canceled. Consume returns on every rebalance, so
// it is called in a loop.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	go func() {
		for err := range c.group.Errors() {
			slog.Warn("Kafka consumer error", "error", err)
		}
	}()

	h := &groupHandler{handle: handle}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			slog.Warn("Kafka consume failed, retrying", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(300 * time.Millisecond):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	handle HandlerFunc
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim decodes each message and hands the ID to the handler. Offsets
// are marked once handling returns; malformed messages are logged, marked
// and skipped so they are not redelivered forever.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			id, err := Decode(msg.Value)
			if err != nil {
				slog.Warn("Skipping queue message",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err)
				sess.MarkMessage(msg, "")
				continue
			}

			h.handle(ctx, id)
			sess.MarkMessage(msg, "")
		}
	}
}
