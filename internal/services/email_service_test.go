package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, params)
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESNotificationChannel_Messages(t *testing.T) {
	client := &mockSES{}
	channel := NewSESNotificationChannelWithClient(client, "no-reply@cadence.test", newTestLogger())
	ctx := context.Background()
	expiresAt := time.Now().Add(15 * time.Minute)
	link := testBaseURL + "/auth/magic-link?token=abc"

	tests := []struct {
		name    string
		send    func() error
		subject string
		payload string
	}{
		{"confirmation", func() error { return channel.SendConfirmation(ctx, "fan@example.com", link, expiresAt) }, "Confirm your Cadence account", link},
		{"magic link", func() error { return channel.SendMagicLink(ctx, "fan@example.com", link, expiresAt) }, "Your Cadence sign-in link", link},
		{"password reset", func() error { return channel.SendPasswordReset(ctx, "fan@example.com", link, expiresAt) }, "Reset your Cadence password", link},
		{"login code", func() error { return channel.SendLoginCode(ctx, "fan@example.com", "123456", expiresAt) }, "Your Cadence sign-in code", "123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.send())

			input := client.inputs[len(client.inputs)-1]
			assert.Equal(t, "no-reply@cadence.test", aws.ToString(input.Source))
			assert.Equal(t, []string{"fan@example.com"}, input.Destination.ToAddresses)
			assert.Equal(t, tt.subject, aws.ToString(input.Message.Subject.Data))
			assert.Contains(t, aws.ToString(input.Message.Body.Html.Data), tt.payload)
			assert.Contains(t, aws.ToString(input.Message.Body.Text.Data), tt.payload)
			assert.Contains(t, aws.ToString(input.Message.Body.Text.Data), "15 minutes")
		})
	}
}

func TestSESNotificationChannel_SendError(t *testing.T) {
	client := &mockSES{err: errors.New("throttled")}
	channel := NewSESNotificationChannelWithClient(client, "no-reply@cadence.test", newTestLogger())

	err := channel.SendLoginCode(context.Background(), "fan@example.com", "123456", time.Now().Add(time.Minute))
	assert.ErrorContains(t, err, "login_code")
}
