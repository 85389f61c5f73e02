// internal/adapters/out/mail/registration_mailer.go
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

// EmailClient は実際のメール送信クライアント（SendGrid など）を抽象化したものです。
type EmailClient interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// RegistrationMailer tells moderators about each new community registration.
// It satisfies usecase.RegistrationNotifier.
type RegistrationMailer struct {
	client      EmailClient
	fromAddress string
	recipients  []string
}

func NewRegistrationMailer(client EmailClient, fromAddress string, recipients []string) *RegistrationMailer {
	to := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &RegistrationMailer{
		client:      client,
		fromAddress: strings.TrimSpace(fromAddress),
		recipients:  to,
	}
}

// NotifyRegistration sends one mail per recipient. Every recipient is tried;
// the returned error joins the failures.
func (m *RegistrationMailer) NotifyRegistration(ctx context.Context, r regdom.Registration) error {
	if m == nil || m.client == nil {
		return errors.New("registration mailer: client is nil")
	}
	if len(m.recipients) == 0 {
		return errors.New("registration mailer: no recipients")
	}

	subject := fmt.Sprintf("[BOP] New community registration: %s", r.ProjectName)
	body := registrationBody(r)

	var errs []error
	for _, to := range m.recipients {
		if err := m.client.Send(ctx, m.fromAddress, to, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func registrationBody(r regdom.Registration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A new community was registered on the Board of Peace wall.\n\n")
	fmt.Fprintf(&b, "  Project    : %s\n", r.ProjectName)
	fmt.Fprintf(&b, "  Description: %s\n", r.Description)
	fmt.Fprintf(&b, "  Wallet     : %s\n", r.WalletAddress)
	fmt.Fprintf(&b, "  NFT        : %s\n", r.NFTTokenID)
	for _, l := range []struct {
		label string
		v     *string
	}{
		{"Image      ", r.DisplayImageURL()},
		{"Twitter    ", r.TwitterURL},
		{"Discord    ", r.DiscordURL},
		{"Website    ", r.WebsiteURL},
	} {
		if l.v != nil {
			fmt.Fprintf(&b, "  %s: %s\n", l.label, *l.v)
		}
	}
	fmt.Fprintf(&b, "\n  ID         : %s\n  Created    : %s\n", r.ID, r.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	b.WriteString("\nUse the admin API to edit or remove this entry if needed.\n")
	return b.String()
}
