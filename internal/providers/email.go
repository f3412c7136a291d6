package providers

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"dispatch-watch/internal/models"
)

type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	Username   string
	Password   string
	From       string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email delivers escalation alerts as an HTML table over SMTP.
type Email struct {
	cfg      EmailConfig
	sendMail sendMailFunc
}

func NewEmail(cfg EmailConfig) (*Email, error) {
	if cfg.SMTPServer == "" || cfg.SMTPPort == 0 || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Email{cfg: cfg, sendMail: smtp.SendMail}, nil
}

// Send mails n to its To and CC recipients. net/smtp has no context
// support, so a cancelled ctx abandons the wait but not the dial.
func (e *Email) Send(ctx context.Context, n models.Notification) error {
	if len(n.To) == 0 {
		return fmt.Errorf("email: no recipients for %s alert", n.Stage)
	}
	msg, err := buildMessage(e.cfg.From, n)
	if err != nil {
		return err
	}

	rcpt := append(append([]string{}, n.To...), n.CC...)
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPServer)
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPServer, e.cfg.SMTPPort)

	done := make(chan error, 1)
	go func() {
		done <- e.sendMail(addr, auth, e.cfg.From, rcpt, msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email to %s: %w", strings.Join(rcpt, ", "), err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email: %w", ctx.Err())
	}
}

var alertTable = template.Must(template.New("alert").Parse(`<h2 style="color: red;">Pending Dispatcher Tasks Alert</h2>
<table border="1" cellpadding="8" cellspacing="0" style="border-collapse: collapse; width: 100%;">
    <thead>
        <tr style="background-color: #f2f2f2;">
            <th>Task ID</th>
            <th>Part Number</th>
            <th>Owning Group</th>
            <th>Service Name</th>
            <th>Current State</th>
            <th>Time Difference</th>
        </tr>
    </thead>
    <tbody>
{{- range .}}
        <tr>
            <td>{{.ID}}</td>
            <td>{{.PrimaryObjects}}</td>
            <td>{{.OwningGroup}}</td>
            <td>{{.ServiceName}}</td>
            <td>{{.CurrentState}}</td>
            <td>{{.AgeFormatted}}</td>
        </tr>
{{- end}}
    </tbody>
</table>
<p>Please address these tasks immediately to avoid disruptions.</p>
`))

// RenderTable renders the HTML alert body for tasks.
func RenderTable(tasks []models.Task) (string, error) {
	var buf bytes.Buffer
	if err := alertTable.Execute(&buf, tasks); err != nil {
		return "", fmt.Errorf("render alert table: %w", err)
	}
	return buf.String(), nil
}

func buildMessage(from string, n models.Notification) ([]byte, error) {
	body, err := RenderTable(n.Tasks)
	if err != nil {
		return nil, err
	}
	date := n.CreatedAt
	if date.IsZero() {
		date = time.Now()
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(n.To, ", "))
	if len(n.CC) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(n.CC, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", n.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return buf.Bytes(), nil
}
