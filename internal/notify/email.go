package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"sylvia_browser_agent/internal/automation"
	"sylvia_browser_agent/internal/config"
)

// Mailer delivers automation run reports over SMTP as multipart/alternative
// messages (markdown text plus rendered HTML).
type Mailer struct {
	cfg config.SMTPConfig
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) SendRunReport(ctx context.Context, a automation.Automation, r automation.Result) error {
	if m == nil || !m.cfg.Enabled() {
		return errors.New("smtp delivery is not configured")
	}
	recipients := cleanRecipients(a.Notify.Email)
	if len(recipients) == 0 {
		return errors.New("no recipients")
	}

	subject := reportSubject(a, r)
	body := reportMarkdownBody(a, r)
	htmlBody, err := RenderHTML(subject, body)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	msg, err := buildAlternativeMessage(m.cfg.From, recipients, subject, body, htmlBody)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	return m.send(ctx, recipients, msg)
}

func reportSubject(a automation.Automation, r automation.Result) string {
	status := "ok"
	if !r.Success {
		status = "failed"
	}
	return fmt.Sprintf("[sylvia] %s: %s", a.Name, status)
}

func reportMarkdownBody(a automation.Automation, r automation.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", a.Name)
	fmt.Fprintf(&b, "- Command: `%s`\n", r.CommandSlug)
	fmt.Fprintf(&b, "- URL: %s\n", a.TargetURL)
	fmt.Fprintf(&b, "- Ran at: %s\n", r.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %dms\n\n", r.DurationMs)
	if r.Success {
		b.WriteString(r.Output)
	} else {
		fmt.Fprintf(&b, "**Run failed:** %s\n", r.Error)
	}
	return b.String()
}

func cleanRecipients(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, addr := range raw {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

func buildAlternativeMessage(from string, to []string, subject string, text string, htmlBody string) ([]byte, error) {
	var header mail.Header
	header.SetDate(time.Now())
	header.SetAddressList("From", []*mail.Address{{Address: from}})
	toAddrs := make([]*mail.Address, 0, len(to))
	for _, addr := range to {
		toAddrs = append(toAddrs, &mail.Address{Address: addr})
	}
	header.SetAddressList("To", toAddrs)
	header.SetSubject(subject)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}

	var textHeader mail.InlineHeader
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := iw.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(tw, text); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	var htmlHeader mail.InlineHeader
	htmlHeader.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	hw, err := iw.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(hw, htmlBody); err != nil {
		return nil, err
	}
	if err := hw.Close(); err != nil {
		return nil, err
	}

	if err := iw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Mailer) send(ctx context.Context, to []string, msg []byte) error {
	server := strings.TrimSpace(m.cfg.Server)
	addr := fmt.Sprintf("%s:%d", server, m.cfg.Port)
	dialer := &net.Dialer{Timeout: 15 * time.Second}

	var conn net.Conn
	var err error
	if m.cfg.UseSSL {
		tlsCfg := &tls.Config{ServerName: server}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, server)
	if err != nil {
		return fmt.Errorf("smtp client failed: %w", err)
	}
	defer func() { _ = c.Quit() }()

	from := strings.TrimSpace(m.cfg.From)
	if m.cfg.Password != "" {
		auth := smtp.PlainAuth("", from, m.cfg.Password, server)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO failed: %w", err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close failed: %w", err)
	}
	return nil
}
