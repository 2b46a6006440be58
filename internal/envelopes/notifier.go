package envelopes

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"
)

// Notifier tells people about envelope activity.
type Notifier interface {
	InviteSigner(ctx context.Context, env *Envelope, signer *Signer, link string) error
	EnvelopeCompleted(ctx context.Context, env *Envelope) error
}

// SESAPI is the part of the SES v2 client used for mail.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier sends plain and HTML mail through Amazon SES.
type SESNotifier struct {
	client SESAPI
	sender string
	logger *zap.Logger
}

// NewSESNotifier loads AWS configuration for region and builds a notifier.
func NewSESNotifier(ctx context.Context, region, sender string, logger *zap.Logger) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewSESNotifierWithClient(sesv2.NewFromConfig(cfg), sender, logger), nil
}

func NewSESNotifierWithClient(client SESAPI, sender string, logger *zap.Logger) *SESNotifier {
	return &SESNotifier{client: client, sender: sender, logger: logger}
}

func (n *SESNotifier) InviteSigner(ctx context.Context, env *Envelope, signer *Signer, link string) error {
	subject := fmt.Sprintf("Please sign: %s", env.Title)
	var text strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\n", signer.Name)
	fmt.Fprintf(&text, "You have been asked to sign \"%s\".\n", env.Title)
	if env.Message != "" {
		fmt.Fprintf(&text, "\n%s\n", env.Message)
	}
	fmt.Fprintf(&text, "\nOpen the documents here:\n%s\n", link)
	if signer.RequiresAccessCode() {
		text.WriteString("\nThe sender will share an access code with you separately.\n")
	}

	body := fmt.Sprintf(`<p>Hello %s,</p><p>You have been asked to sign <strong>%s</strong>.</p>%s<p><a href="%s">Review and sign</a></p>`,
		html.EscapeString(signer.Name), html.EscapeString(env.Title), paragraph(env.Message), html.EscapeString(link))

	return n.send(ctx, []string{signer.Email}, subject, text.String(), body)
}

func (n *SESNotifier) EnvelopeCompleted(ctx context.Context, env *Envelope) error {
	to := make([]string, 0, len(env.Signers)+1)
	if env.OwnerEmail != "" {
		to = append(to, env.OwnerEmail)
	}
	for _, s := range env.Signers {
		to = append(to, s.Email)
	}
	if len(to) == 0 {
		return nil
	}
	subject := fmt.Sprintf("Completed: %s", env.Title)
	text := fmt.Sprintf("All parties have signed \"%s\".\n", env.Title)
	body := fmt.Sprintf("<p>All parties have signed <strong>%s</strong>.</p>", html.EscapeString(env.Title))
	return n.send(ctx, to, subject, text, body)
}

func (n *SESNotifier) send(ctx context.Context, to []string, subject, text, body string) error {
	out, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.sender),
		Destination:      &types.Destination{ToAddresses: to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
					Html: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	n.logger.Info("Email sent", zap.Strings("to", to), zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

func paragraph(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return "<p>" + html.EscapeString(s) + "</p>"
}

// LogNotifier logs invitations instead of mailing them. It is used when no
// sender address is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) InviteSigner(ctx context.Context, env *Envelope, signer *Signer, link string) error {
	n.logger.Info("Signer invitation",
		zap.String("envelope_id", env.ID.String()),
		zap.String("email", signer.Email),
		zap.String("link", link))
	return nil
}

func (n *LogNotifier) EnvelopeCompleted(ctx context.Context, env *Envelope) error {
	n.logger.Info("Envelope completed", zap.String("envelope_id", env.ID.String()))
	return nil
}
