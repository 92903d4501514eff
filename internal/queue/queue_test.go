package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/Veraticus/phishnet/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	body, err := Encode("txn_abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"TransactionID":"txn_abc"}`, string(body))

	id, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, "txn_abc", id)

	_, err = Encode(" ")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestDecode(t *testing.T) {
	doubleEncoded, err := json.Marshal(`{"TransactionID": "txn_double"}`)
	require.NoError(t, err)

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{name: "plain", body: `{"TransactionID": "txn_1"}`, want: "txn_1"},
		{name: "double encoded", body: string(doubleEncoded), want: "txn_double"},
		{name: "extra fields ignored", body: `{"TransactionID": "txn_2", "Source": "test"}`, want: "txn_2"},
		{name: "missing id", body: `{"Other": "x"}`, wantErr: ErrMissingID},
		{name: "blank id", body: `{"TransactionID": "  "}`, wantErr: ErrMissingID},
		{name: "not json", body: `TransactionID=txn_1`, wantErr: ErrMalformedMessage},
		{name: "string holding garbage", body: `"nope"`, wantErr: ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, Config{Topic: "t"}.Validate(), common.ErrMissingConfig)
	assert.ErrorIs(t, Config{Brokers: []string{"localhost:9092"}}.Validate(), common.ErrMissingConfig)
	assert.NoError(t, Config{Brokers: []string{"localhost:9092"}, Topic: "t"}.Validate())
}

func TestProducer_Publish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		id, err := Decode(val)
		if err != nil {
			return err
		}
		if id != "txn_1" {
			return errors.New("unexpected transaction ID " + id)
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFrom(sp, DefaultTopic)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "txn_1"))

	err := p.Publish(ctx, "txn_2")
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	assert.ErrorIs(t, p.Publish(ctx, ""), common.ErrInvalidInput)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, p.Publish(canceled, "txn_3"), context.Canceled)

	require.NoError(t, p.Close())
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return DefaultTopic }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestGroupHandler_ConsumeClaim(t *testing.T) {
	bodies := []string{
		`{"TransactionID": "txn_1"}`,
		`garbage`,
		`{}`,
		`"{\"TransactionID\": \"txn_2\"}"`,
	}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, len(bodies))}
	for i, body := range bodies {
		claim.messages <- &sarama.ConsumerMessage{Offset: int64(i), Value: []byte(body)}
	}
	close(claim.messages)

	var handled []string
	h := &groupHandler{handle: func(_ context.Context, id string) {
		handled = append(handled, id)
	}}
	sess := &fakeSession{ctx: context.Background()}

	require.NoError(t, h.Setup(sess))
	require.NoError(t, h.ConsumeClaim(sess, claim))
	require.NoError(t, h.Cleanup(sess))

	assert.Equal(t, []string{"txn_1", "txn_2"}, handled)
	assert.Equal(t, []int64{0, 1, 2, 3}, sess.marked, "every message is marked, including skipped ones")
}

func TestGroupHandler_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}
	h := &groupHandler{handle: func(context.Context, string) {
		t.Fatal("handler must not run")
	}}

	assert.NoError(t, h.ConsumeClaim(&fakeSession{ctx: ctx}, claim))
}
