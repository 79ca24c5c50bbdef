package channel

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"alarm-gateway/internal/gateway"
	"alarm-gateway/internal/login"
	"alarm-gateway/internal/payload"
	"alarm-gateway/internal/timez"
	domainerrors "alarm-gateway/pkg/errors"
)

// smtpAuthCandidates returns the ordered set of SMTP authentication
// mechanisms to try for a login's declared auth mode. A mode tries its
// mechanisms in this order and only fails once every one of them has been
// rejected by the server.
func smtpAuthCandidates(mode login.SMTPAuthMode) []gomail.SMTPAuthType {
	switch mode {
	case login.SMTPAuthCRAM:
		return []gomail.SMTPAuthType{gomail.SMTPAuthCramMD5}
	case login.SMTPAuthLogin:
		return []gomail.SMTPAuthType{gomail.SMTPAuthLogin, gomail.SMTPAuthPlain}
	default:
		return []gomail.SMTPAuthType{gomail.SMTPAuthNoAuth}
	}
}

func smtpTLSPolicy(transport login.SMTPTransport) gomail.TLSPolicy {
	switch transport {
	case login.SMTPStartTLS:
		return gomail.TLSMandatory
	case login.SMTPImplicitTLS:
		return gomail.NoTLS // implicit TLS is negotiated at dial time, not via STARTTLS
	default:
		return gomail.NoTLS
	}
}

// SmtpSender implements gateway.Sender for the outbound email channel.
type SmtpSender struct {
	zone *timez.Zone
}

func NewSmtpSender(zone *timez.Zone) *SmtpSender {
	if zone == nil {
		zone = timez.Default
	}
	return &SmtpSender{zone: zone}
}

var _ gateway.Sender = (*SmtpSender)(nil)

func (s *SmtpSender) buildMessage(msg gateway.Message, email *payload.Email) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	from := msg.Login.Credentials.FromAddress
	if from == "" {
		from = msg.Login.Credentials.Username
	}
	if err := m.From(from); err != nil {
		return nil, domainerrors.NewFatalSend("invalid sender address", err)
	}
	for _, r := range email.Recipients {
		if err := m.AddToFormat(r.DisplayName, r.Address); err != nil {
			return nil, domainerrors.NewFatalSend(fmt.Sprintf("invalid recipient address %q", r.Address), err)
		}
	}
	m.Subject(fmt.Sprintf("%s / %s", email.SiteID, email.AlarmID))
	body := fmt.Sprintf("%s\n\n%s", email.Body, s.zone.FormatLocal(msg.EventTime))
	m.SetBodyString(gomail.TypeTextPlain, body)

	if msg.Audio != nil && len(msg.Audio.Data) > 0 {
		mediaType := msg.Audio.MediaType
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		m.AttachReader("alarm-audio", strings.NewReader(string(msg.Audio.Data)), gomail.WithFileContentType(gomail.ContentType(mediaType)))
	}
	return m, nil
}

// Send dials the configured SMTP server with the login's transport policy,
// tries each candidate auth mechanism for the login's declared mode in
// order, and delivers the message on the first one the server accepts.
func (s *SmtpSender) Send(ctx context.Context, msg gateway.Message) error {
	email, ok := msg.Payload.(*payload.Email)
	if !ok {
		return domainerrors.NewFatalSend("smtp sender received a non-email payload", nil)
	}

	m, err := s.buildMessage(msg, email)
	if err != nil {
		return err
	}

	creds := msg.Login.Credentials
	candidates := smtpAuthCandidates(creds.AuthMode)
	policy := smtpTLSPolicy(creds.Transport)

	var lastErr error
	for _, auth := range candidates {
		opts := []gomail.Option{
			gomail.WithPort(creds.Port),
			gomail.WithTLSPolicy(policy),
			gomail.WithTimeout(30 * 1e9),
		}
		if creds.Transport == login.SMTPImplicitTLS {
			opts = append(opts, gomail.WithSSL())
		}
		if auth != gomail.SMTPAuthNoAuth {
			opts = append(opts, gomail.WithSMTPAuth(auth), gomail.WithUsername(creds.Username), gomail.WithPassword(creds.Password))
		}

		client, err := gomail.NewClient(creds.Host, opts...)
		if err != nil {
			lastErr = err
			continue
		}

		sendErr := client.DialAndSendWithContext(ctx, m)
		if sendErr == nil {
			return nil
		}
		lastErr = sendErr
		if !isAuthRejection(sendErr) {
			break
		}
	}

	return classifySMTPError(lastErr)
}

func isAuthRejection(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "535") || strings.Contains(msg, "534") || strings.Contains(msg, "authentication")
}

// classifySMTPError maps a transport/protocol failure to the send-pipeline
// taxonomy: transient reply codes, TLS handshake timeouts, DNS failures, and
// socket errors are non-fatal; 5xx replies and certificate rejection are
// fatal.
func classifySMTPError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domainerrors.NewNonFatalSend("smtp transport error", err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domainerrors.NewNonFatalSend("smtp host resolution failed", err)
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return domainerrors.NewFatalSend("smtp certificate rejected", err)
	}

	text := err.Error()
	if hasReplyCodePrefix(text, '4') || strings.Contains(text, "timeout") {
		return domainerrors.NewNonFatalSend("smtp transient failure", err)
	}
	if hasReplyCodePrefix(text, '5') {
		return domainerrors.NewFatalSend("smtp permanent failure", err)
	}
	return domainerrors.NewFatalSend("smtp send failed", err)
}

func hasReplyCodePrefix(text string, firstDigit byte) bool {
	for i := 0; i+2 < len(text); i++ {
		if text[i] == firstDigit && text[i+1] >= '0' && text[i+1] <= '9' && text[i+2] >= '0' && text[i+2] <= '9' {
			if i == 0 || text[i-1] == ' ' || text[i-1] == ':' {
				return true
			}
		}
	}
	return false
}
