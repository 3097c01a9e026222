package jobscout

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"jobscout-backend/lib/scrapers/linkedin/posting"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
	To           string `json:"to"`
}

// Digest mails a plain-text summary of newly collected jobs after a run.
type Digest struct {
	config SmtpConfig
}

func NewDigest(config SmtpConfig) *Digest {
	return &Digest{config: config}
}

func (d *Digest) Send(ctx context.Context, jobs []posting.JobRecord) error {
	ctx, span := tracer.Start(ctx, "digest:Send")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Jobscout <%s>", d.config.EmailAddress)
	mail.To = []string{d.config.To}
	mail.Subject = fmt.Sprintf("Jobscout digest: %d new jobs", len(jobs))

	var body strings.Builder
	fmt.Fprintf(&body, "Collected %d jobs this run.\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(&body, "%s | %s | %s\n", job.Title, job.Company, job.JobURL)
	}
	mail.Text = []byte(body.String())

	err := mail.Send(
		fmt.Sprintf("%s:%d", d.config.Server, d.config.Port),
		smtp.PlainAuth("", d.config.EmailAddress, d.config.Password, d.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(fmt.Sprintf("%s:%d", d.config.Server, d.config.Port), nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send digest email")
		return err
	}

	return nil
}
