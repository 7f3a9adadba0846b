package adapters

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
)

// EmailServiceConfig holds email service configuration
type EmailServiceConfig struct {
	Provider     string
	APIKey       string
	FromEmail    string
	FromName     string
	SupportEmail string
}

// EmailService sends operational notifications. The "log" provider writes the
// message to the logger instead of delivering it.
type EmailService struct {
	logger *zap.Logger
	config EmailServiceConfig
	client *sendgrid.Client
}

// NewEmailService creates a new email service
func NewEmailService(logger *zap.Logger, config EmailServiceConfig) (*EmailService, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Provider))
	if provider == "" {
		provider = "log"
	}
	config.Provider = provider

	var client *sendgrid.Client
	switch provider {
	case "sendgrid":
		if strings.TrimSpace(config.APIKey) == "" {
			return nil, fmt.Errorf("sendgrid api key is required")
		}
		if strings.TrimSpace(config.FromEmail) == "" {
			return nil, fmt.Errorf("email from address is required")
		}
		client = sendgrid.NewSendClient(config.APIKey)
	case "log":
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", provider)
	}

	return &EmailService{
		logger: logger,
		config: config,
		client: client,
	}, nil
}

// sendEmail is a helper method to send emails via the configured provider
func (e *EmailService) sendEmail(ctx context.Context, to, subject, htmlContent, textContent string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("email recipient is required")
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch e.config.Provider {
	case "sendgrid":
		return e.sendViaSendgrid(ctxWithTimeout, to, subject, htmlContent, textContent)
	case "log":
		e.logger.Info("Email (log provider)",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.String("body", textContent))
		return nil
	default:
		return fmt.Errorf("unsupported email provider: %s", e.config.Provider)
	}
}

func (e *EmailService) sendViaSendgrid(ctx context.Context, to, subject, htmlContent, textContent string) error {
	if e.client == nil {
		return fmt.Errorf("sendgrid client not configured")
	}

	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)
	toEmail := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, toEmail, textContent, htmlContent)

	response, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		e.logger.Error("Failed to send email",
			zap.String("provider", "sendgrid"),
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		e.logger.Error("Email service returned error",
			zap.String("provider", "sendgrid"),
			zap.String("to", to),
			zap.Int("status_code", response.StatusCode),
			zap.String("response_body", response.Body))
		return fmt.Errorf("email service error: status %d, body: %s", response.StatusCode, response.Body)
	}

	e.logger.Info("Email sent successfully",
		zap.String("provider", "sendgrid"),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("status_code", response.StatusCode))
	return nil
}

// SendReconciliationAlert tells support that a payment confirmed on-chain but
// the backend record was not updated.
func (e *EmailService) SendReconciliationAlert(ctx context.Context, rec *entities.Reconciliation, cause error) error {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	subject := fmt.Sprintf("[ZynPay] Payment succeeded but %s %s was not updated", rec.Kind, rec.RecordID)

	text := fmt.Sprintf(`Payment successful but the %s update failed.

Record:      %s
Participant: %s
Chain:       %d
Transaction: %s
Attempts:    %d
Error:       %s

The reconciliation worker keeps retrying. No funds need to be resent.`,
		rec.Kind, rec.RecordID, rec.Participant, rec.ChainID, rec.TxHash, rec.Attempts, reason)

	htmlBody := fmt.Sprintf(`<h2>Payment successful but the %s update failed</h2>
<table>
<tr><td>Record</td><td>%s</td></tr>
<tr><td>Participant</td><td>%s</td></tr>
<tr><td>Chain</td><td>%d</td></tr>
<tr><td>Transaction</td><td><code>%s</code></td></tr>
<tr><td>Attempts</td><td>%d</td></tr>
<tr><td>Error</td><td>%s</td></tr>
</table>
<p>The reconciliation worker keeps retrying. No funds need to be resent.</p>`,
		html.EscapeString(string(rec.Kind)), html.EscapeString(rec.RecordID), html.EscapeString(rec.Participant),
		rec.ChainID, html.EscapeString(rec.TxHash), rec.Attempts, html.EscapeString(reason))

	return e.sendEmail(ctx, e.config.SupportEmail, subject, htmlBody, text)
}

// SendCustomEmail sends an arbitrary message.
func (e *EmailService) SendCustomEmail(ctx context.Context, to, subject, htmlContent, textContent string) error {
	return e.sendEmail(ctx, to, subject, htmlContent, textContent)
}
