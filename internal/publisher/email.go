package publisher

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/ryosukesatoh/autumn/internal/config"
	"github.com/ryosukesatoh/autumn/internal/digest"
)

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailPublisher sends a short text mail over SMTP with the rendered digest
// attached as an HTML file.
type EmailPublisher struct {
	host       string
	port       int
	username   string
	password   string
	from       mail.Address
	to         []string
	subject    string
	attachment string
	renderer   *digest.Renderer
	sendMail   sendMailFunc
}

// NewEmailPublisher creates a new EmailPublisher.
func NewEmailPublisher(cfg config.EmailConfig, subject, attachment string) *EmailPublisher {
	return &EmailPublisher{
		host:       cfg.SMTPHost,
		port:       cfg.SMTPPort,
		username:   cfg.Username,
		password:   cfg.Password,
		from:       mail.Address{Name: cfg.FromName, Address: cfg.From},
		to:         cfg.To,
		subject:    subject,
		attachment: attachment,
		renderer:   digest.NewRenderer(),
		sendMail:   sendMailContext,
	}
}

// Publish mails the digest. Cancelling ctx aborts a send in progress.
func (p *EmailPublisher) Publish(ctx context.Context, d *digest.Digest) error {
	if d.Empty() {
		return nil
	}

	report, err := p.renderer.Render(d)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	msg, err := p.buildMessage(d, report)
	if err != nil {
		return fmt.Errorf("email: failed to build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", p.host, p.port)
	auth := smtp.PlainAuth("", p.username, p.password, p.host)

	if err := p.sendMail(ctx, addr, auth, p.from.Address, p.to, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("email: send interrupted: %w", ctxErr)
		}
		return fmt.Errorf("email: failed to send: %w", err)
	}

	return nil
}

// sendMailContext is smtp.SendMail over a connection that is closed when ctx
// ends, so a stalled server cannot hold the caller past shutdown.
func sendMailContext(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		conn.Close()
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (p *EmailPublisher) buildMessage(d *digest.Digest, report []byte) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", p.from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(p.to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", p.subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/plain; charset="UTF-8"`},
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(text, "Hello,\r\n\r\nHere is your weekly tech digest with %d new articles from %s to %s.\r\nThe full report is attached.\r\n",
		len(d.Entries), d.Start.Format("Jan 2"), d.End.Format("Jan 2, 2006"))

	att, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf("text/html; charset=\"UTF-8\"; name=%q", p.attachment)},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", p.attachment)},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := att.Write([]byte(wrapBase64(report))); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapBase64 encodes data with CRLF line breaks every 76 characters.
func wrapBase64(data []byte) string {
	enc := base64.StdEncoding.EncodeToString(data)
	var sb strings.Builder
	for len(enc) > 76 {
		sb.WriteString(enc[:76])
		sb.WriteString("\r\n")
		enc = enc[76:]
	}
	sb.WriteString(enc)
	sb.WriteString("\r\n")
	return sb.String()
}
