package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

func testAlert() model.Alert {
	return model.Alert{
		TransactionID: "txn_0123456789",
		UserID:        "user_1",
		Email:         "alice@example.com",
		Phone:         "+15550001111",
		Amount:        decimal.RequireFromString("3500"),
		Score:         80,
	}
}

func fastRetry(attempts int) common.RetryOptions {
	return common.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

type fakeSNS struct {
	mu     sync.Mutex
	inputs []*sns.PublishInput
	errs   []error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

type fakeTwilio struct {
	params []*openapi.CreateMessageParams
	err    error
}

func (f *fakeTwilio) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &openapi.ApiV2010Message{Sid: &sid}, nil
}

type countingNotifier struct {
	calls int
	errs  []error
}

func (c *countingNotifier) SendAlert(context.Context, model.Alert) error {
	c.calls++
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

func TestSNSNotifier_SendAlert(t *testing.T) {
	client := &fakeSNS{}
	n := NewSNSNotifier(client, SNSConfig{TopicARN: "arn:aws:sns:us-east-1:123:alerts"})

	alert := testAlert()
	require.NoError(t, n.SendAlert(context.Background(), alert))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123:alerts", aws.ToString(in.TopicArn))
	assert.Equal(t, "Fraud Alert Notification", aws.ToString(in.Subject))
	assert.Equal(t, alert.Body(), aws.ToString(in.Message))
	assert.Contains(t, aws.ToString(in.Message), "- Amount: $3500.00")
	require.Contains(t, in.MessageAttributes, "email")
	assert.Equal(t, "String", aws.ToString(in.MessageAttributes["email"].DataType))
	assert.Equal(t, "alice@example.com", aws.ToString(in.MessageAttributes["email"].StringValue))
}

func TestSNSNotifier_Recipient(t *testing.T) {
	tests := []struct {
		name         string
		email        string
		defaultEmail string
		want         string
	}{
		{name: "user email", email: "a@example.com", defaultEmail: "ops@example.com", want: "a@example.com"},
		{name: "falls back to default", defaultEmail: "ops@example.com", want: "ops@example.com"},
		{name: "no recipient"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSNS{}
			n := NewSNSNotifier(client, SNSConfig{TopicARN: "arn", DefaultEmail: tt.defaultEmail})

			alert := testAlert()
			alert.Email = tt.email
			require.NoError(t, n.SendAlert(context.Background(), alert))

			attrs := client.inputs[0].MessageAttributes
			if tt.want == "" {
				assert.Empty(t, attrs)
				return
			}
			assert.Equal(t, tt.want, aws.ToString(attrs["email"].StringValue))
		})
	}
}

func TestSNSNotifier_Error(t *testing.T) {
	client := &fakeSNS{errs: []error{errors.New("throttled")}}
	n := NewSNSNotifier(client, SNSConfig{TopicARN: "arn"})

	err := n.SendAlert(context.Background(), testAlert())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotifyFailed)
	assert.Contains(t, err.Error(), "txn_0123456789")
	assert.True(t, common.IsRetryable(err))
}

func TestTwilioNotifier_SendAlert(t *testing.T) {
	api := &fakeTwilio{}
	n := NewTwilioNotifier(api, TwilioConfig{From: "+15559990000"})

	alert := testAlert()
	require.NoError(t, n.SendAlert(context.Background(), alert))

	require.Len(t, api.params, 1)
	p := api.params[0]
	require.NotNil(t, p.To)
	require.NotNil(t, p.From)
	require.NotNil(t, p.Body)
	assert.Equal(t, "+15550001111", *p.To)
	assert.Equal(t, "+15559990000", *p.From)
	assert.Equal(t, alert.Body(), *p.Body)
}

func TestTwilioNotifier_Errors(t *testing.T) {
	t.Run("no phone number is permanent", func(t *testing.T) {
		api := &fakeTwilio{}
		n := NewTwilioNotifier(api, TwilioConfig{From: "+1"})

		alert := testAlert()
		alert.Phone = ""
		err := n.SendAlert(context.Background(), alert)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
		assert.False(t, common.IsRetryable(err))
		assert.Empty(t, api.params)
	})

	t.Run("default recipient", func(t *testing.T) {
		api := &fakeTwilio{}
		n := NewTwilioNotifier(api, TwilioConfig{From: "+1", DefaultTo: "+15551234567"})

		alert := testAlert()
		alert.Phone = ""
		require.NoError(t, n.SendAlert(context.Background(), alert))
		assert.Equal(t, "+15551234567", *api.params[0].To)
	})

	t.Run("api failure", func(t *testing.T) {
		api := &fakeTwilio{err: errors.New("503")}
		n := NewTwilioNotifier(api, TwilioConfig{From: "+1"})

		err := n.SendAlert(context.Background(), testAlert())
		assert.ErrorIs(t, err, common.ErrNotifyFailed)
	})

	t.Run("canceled context", func(t *testing.T) {
		api := &fakeTwilio{}
		n := NewTwilioNotifier(api, TwilioConfig{From: "+1"})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, n.SendAlert(ctx, testAlert()), context.Canceled)
		assert.Empty(t, api.params)
	})
}

func TestTwilioConfig_Validate(t *testing.T) {
	err := TwilioConfig{From: "+1"}.Validate()
	require.ErrorIs(t, err, common.ErrMissingConfig)
	assert.Contains(t, err.Error(), "account SID, auth token")

	assert.NoError(t, TwilioConfig{AccountSID: "AC1", AuthToken: "tok", From: "+1"}.Validate())
}

func TestMultiNotifier(t *testing.T) {
	ok := &countingNotifier{}
	bad := &countingNotifier{errs: []error{errors.New("boom")}}
	alsoOK := &countingNotifier{}

	err := MultiNotifier{ok, bad, alsoOK}.SendAlert(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, alsoOK.calls, "a failing channel must not stop later channels")

	assert.NoError(t, MultiNotifier{}.SendAlert(context.Background(), testAlert()))
}

func TestRetrying(t *testing.T) {
	permanent := common.Permanent(errors.New("bad number"))

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{name: "first try", wantCalls: 1},
		{name: "transient then success", errs: []error{errors.New("timeout")}, wantCalls: 2},
		{
			name:      "exhausted",
			errs:      []error{errors.New("a"), errors.New("b"), errors.New("c")},
			wantCalls: 3,
			wantErr:   common.ErrMaxRetries,
		},
		{name: "permanent", errs: []error{permanent}, wantCalls: 1, wantErr: permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &countingNotifier{errs: tt.errs}
			err := WithRetry(inner, fastRetry(3)).SendAlert(context.Background(), testAlert())

			assert.Equal(t, tt.wantCalls, inner.calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to log", func(t *testing.T) {
		n, err := Build(ctx, Config{})
		require.NoError(t, err)
		r, ok := n.(*Retrying)
		require.True(t, ok)
		assert.IsType(t, LogNotifier{}, r.next)
		assert.Equal(t, common.DefaultRetryOptions(), r.opts)
		assert.NoError(t, n.SendAlert(ctx, testAlert()))
	})

	t.Run("sms", func(t *testing.T) {
		n, err := Build(ctx, Config{
			Channels: []string{"SMS", "log", "log"},
			Twilio:   TwilioConfig{AccountSID: "AC1", AuthToken: "tok", From: "+1"},
			Retry:    fastRetry(2),
		})
		require.NoError(t, err)
		r := n.(*Retrying)
		multi, ok := r.next.(MultiNotifier)
		require.True(t, ok)
		require.Len(t, multi, 2)
		assert.IsType(t, &TwilioNotifier{}, multi[0])
		assert.IsType(t, LogNotifier{}, multi[1])
	})

	t.Run("sns without topic", func(t *testing.T) {
		_, err := Build(ctx, Config{Channels: []string{ChannelSNS}})
		assert.ErrorIs(t, err, common.ErrMissingConfig)
	})

	t.Run("sms without credentials", func(t *testing.T) {
		_, err := Build(ctx, Config{Channels: []string{ChannelSMS}})
		assert.ErrorIs(t, err, common.ErrMissingConfig)
	})

	t.Run("unknown channel", func(t *testing.T) {
		_, err := Build(ctx, Config{Channels: []string{"pager"}})
		assert.ErrorIs(t, err, common.ErrInvalidConfig)
	})
}
