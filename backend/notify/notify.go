// Package notify sends transactional email to account owners.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/adlens/adlens/backend/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

type Notifier interface {
	PaymentFailed(ctx context.Context, email string, inv models.Invoice) error
}

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESNotifier struct {
	client    SESService
	fromEmail string
	appURL    string
}

func NewSESNotifier(ctx context.Context, region, fromEmail, appURL string) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromEmail, appURL), nil
}

func NewSESNotifierWithClient(client SESService, fromEmail, appURL string) *SESNotifier {
	return &SESNotifier{client: client, fromEmail: fromEmail, appURL: strings.TrimRight(appURL, "/")}
}

func (n *SESNotifier) PaymentFailed(ctx context.Context, email string, inv models.Invoice) error {
	subject, text, html := paymentFailedMessage(inv, n.appURL)

	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(text)},
				Html: &types.Content{Data: aws.String(html)},
			},
		},
		Source: aws.String(n.fromEmail),
	})
	if err != nil {
		return fmt.Errorf("send payment failed email: %w", err)
	}
	return nil
}

func paymentFailedMessage(inv models.Invoice, appURL string) (subject, text, html string) {
	amount := FormatAmount(inv.AmountDue, inv.Currency)
	link := inv.HostedInvoiceURL
	if link == "" {
		link = appURL + "/settings/billing"
	}

	subject = fmt.Sprintf("Payment of %s failed", amount)
	text = fmt.Sprintf("We could not collect %s for invoice %s.\nUpdate your payment method: %s\n", amount, inv.Number, link)
	html = fmt.Sprintf(`<p>We could not collect <strong>%s</strong> for invoice %s.</p><p><a href="%s">Update your payment method</a></p>`,
		amount, inv.Number, link)
	return subject, text, html
}

// FormatAmount renders a minor-unit amount such as 2900 usd as "29.00 USD".
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, strings.ToUpper(currency))
}

// Noop is used when SES is not configured.
type Noop struct{}

func (Noop) PaymentFailed(ctx context.Context, email string, inv models.Invoice) error {
	zap.L().Info("payment failed notification skipped, SES not configured",
		zap.String("invoice_id", inv.ID))
	return nil
}
