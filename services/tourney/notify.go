package tourney

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type Notifier struct {
	Smtp SmtpConfig
}

// Send emails the rendered summary to every configured recipient. It is a
// no-op without a server or recipients.
func (n Notifier) Send(ctx context.Context, summary Summary) error {
	if !n.Smtp.Enabled() {
		return nil
	}
	ctx, span := tracer.Start(ctx, "Notify")
	defer span.End()

	var body bytes.Buffer
	RenderSummary(&body, summary)

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("repeatbot <%s>", n.Smtp.EmailAddress)
	mail.To = n.Smtp.To
	mail.Subject = summary.Headline()
	mail.Text = body.Bytes()

	addr := fmt.Sprintf("%s:%d", n.Smtp.Server, n.Smtp.Port)
	err := mail.Send(addr, smtp.PlainAuth("", n.Smtp.EmailAddress, n.Smtp.Password, n.Smtp.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
