package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
)

// SESAPI is the subset of the SES client used by SESNotificationChannel
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotificationChannel delivers codes and links by email through AWS SES
type SESNotificationChannel struct {
	client      SESAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotificationChannel creates a channel backed by the default AWS
// credential chain for region.
func NewSESNotificationChannel(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESNotificationChannel, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESNotificationChannelWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

// NewSESNotificationChannelWithClient creates a channel around an existing client
func NewSESNotificationChannelWithClient(client SESAPI, fromAddress string, logger *slog.Logger) *SESNotificationChannel {
	return &SESNotificationChannel{
		client:      client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

type emailContent struct {
	kind    string
	subject string
	heading string
	intro   string
	action  string
	outro   string
}

// SendConfirmation sends the account confirmation link
func (c *SESNotificationChannel) SendConfirmation(ctx context.Context, email, link string, expiresAt time.Time) error {
	return c.sendLink(ctx, email, link, expiresAt, emailContent{
		kind:    "confirmation",
		subject: "Confirm your Cadence account",
		heading: "Confirm Your Account",
		intro:   "Thanks for signing up. Confirm your email address to start following artists and genres.",
		action:  "Confirm Account",
		outro:   "If you didn't create this account, you can ignore this email.",
	})
}

// SendMagicLink sends a passwordless login link
func (c *SESNotificationChannel) SendMagicLink(ctx context.Context, email, link string, expiresAt time.Time) error {
	return c.sendLink(ctx, email, link, expiresAt, emailContent{
		kind:    "magic_link",
		subject: "Your Cadence sign-in link",
		heading: "Sign In",
		intro:   "Use the link below to sign in. It works once.",
		action:  "Sign In",
		outro:   "If you didn't ask to sign in, you can ignore this email.",
	})
}

// SendPasswordReset sends a password reset link
func (c *SESNotificationChannel) SendPasswordReset(ctx context.Context, email, link string, expiresAt time.Time) error {
	return c.sendLink(ctx, email, link, expiresAt, emailContent{
		kind:    "password_reset",
		subject: "Reset your Cadence password",
		heading: "Reset Your Password",
		intro:   "We received a request to reset your password. Resetting it signs you out everywhere.",
		action:  "Reset Password",
		outro:   "If you didn't request a reset, your password has not been changed.",
	})
}

// SendLoginCode sends the one-time login code
func (c *SESNotificationChannel) SendLoginCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	minutes := minutesUntil(expiresAt)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Your Sign-In Code</h1>
        <p>Enter this code to finish signing in:</p>
        <div class="code">%s</div>
        <p>The code expires in %d minutes. Never share it with anyone.</p>
        <div class="footer">
            <p>If you didn't try to sign in, change your password.</p>
        </div>
    </div>
</body>
</html>
`, code, minutes)

	textBody := fmt.Sprintf(`Your Sign-In Code

Enter this code to finish signing in: %s

The code expires in %d minutes. Never share it with anyone.

If you didn't try to sign in, change your password.
`, code, minutes)

	return c.send(ctx, "login_code", email, "Your Cadence sign-in code", htmlBody, textBody)
}

func (c *SESNotificationChannel) sendLink(ctx context.Context, email, link string, expiresAt time.Time, content emailContent) error {
	minutes := minutesUntil(expiresAt)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>%s</h1>
        </div>
        <p>%s</p>
        <p><a href="%s" class="button">%s</a></p>
        <p>Or copy and paste this link in your browser:<br>
        <code>%s</code></p>
        <p>This link expires in %d minutes.</p>
        <div class="footer">
            <p>%s</p>
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, content.heading, content.intro, link, content.action, link, minutes, content.outro)

	textBody := fmt.Sprintf(`%s

%s

%s

This link expires in %d minutes.

%s
`, content.heading, content.intro, link, minutes, content.outro)

	return c.send(ctx, content.kind, email, content.subject, htmlBody, textBody)
}

func (c *SESNotificationChannel) send(ctx context.Context, kind, email, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(c.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := c.client.SendEmail(ctx, input)
	if err != nil {
		c.logger.Error("failed to send email via SES",
			slog.String("kind", kind),
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}

	c.logger.Info("email sent",
		slog.String("kind", kind),
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

func minutesUntil(t time.Time) int {
	minutes := int(time.Until(t).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		return 1
	}
	return minutes
}
