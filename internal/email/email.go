package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"

	"github.com/Domenick1991/exhibitions/config"
	"github.com/Domenick1991/exhibitions/internal/service/notification"
	"gopkg.in/gomail.v2"
)

const qrAttachment = "qr_ticket.png"

var ticketTemplate = template.Must(template.New("ticket").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
  <p>Hello {{.Name}},</p>
  <p>Your registration for <strong>{{.Title}}</strong> is confirmed.</p>
  <table>
    <tr><td>Tickets</td><td>{{.Quantity}}</td></tr>
    {{- if .Dates}}
    <tr><td>Dates</td><td>{{.Dates}}</td></tr>
    {{- end}}
    {{- if .Location}}
    <tr><td>Location</td><td>{{.Location}}</td></tr>
    {{- end}}
  </table>
  <p>Show this code at the entrance:</p>
  <img src="cid:{{.Image}}" alt="ticket QR code" width="256" height="256">
</body>
</html>
`))

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Sender delivers tickets over SMTP.
type Sender struct {
	from   string
	dialer dialer
}

func NewSender(cfg config.SMTPConfig) *Sender {
	return &Sender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}
}

// Send gives up when ctx is done. The SMTP exchange itself cannot be interrupted and
// finishes in the background.
func (s *Sender) Send(ctx context.Context, msg notification.Message) error {
	m, err := s.Build(msg)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Build renders the HTML message with the QR code embedded inline.
func (s *Sender) Build(msg notification.Message) (*gomail.Message, error) {
	body, err := renderBody(msg)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", "Your ticket for: "+msg.Exhibition.Title)
	m.SetBody("text/html", body)
	png := msg.QRCode
	m.Embed(qrAttachment, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(png)
		return err
	}))
	return m, nil
}

func renderBody(msg notification.Message) (string, error) {
	e := msg.Exhibition
	var dates string
	switch {
	case !e.StartsAt.IsZero() && !e.EndsAt.IsZero():
		dates = e.StartsAt.Format("2 Jan 2006") + " - " + e.EndsAt.Format("2 Jan 2006")
	case !e.StartsAt.IsZero():
		dates = e.StartsAt.Format("2 Jan 2006")
	}
	name := msg.ToName
	if name == "" {
		name = msg.To
	}

	var buf bytes.Buffer
	err := ticketTemplate.Execute(&buf, struct {
		Name, Title, Dates, Location, Image string
		Quantity                            int
	}{
		Name:     name,
		Title:    e.Title,
		Dates:    dates,
		Location: e.Location,
		Image:    qrAttachment,
		Quantity: msg.Registration.Quantity,
	})
	if err != nil {
		return "", fmt.Errorf("render ticket email: %w", err)
	}
	return buf.String(), nil
}

var _ notification.Transport = (*Sender)(nil)
