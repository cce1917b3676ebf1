package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Sender delivers plain-text mail through an authenticated SMTP relay.
type Sender struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Send mails subject and body to every address in to.
func (s Sender) Send(to []string, subject, body string) error {
	if s.Server == "" || s.Port == 0 {
		return fmt.Errorf("missing Email configuration: SMTPServer or SMTPPort is empty")
	}
	if len(to) == 0 {
		return fmt.Errorf("no email recipients")
	}
	for _, addr := range to {
		if !strings.Contains(addr, "@") {
			return fmt.Errorf("invalid email address: %s", addr)
		}
	}

	from := s.From
	if from == "" {
		from = s.Username
	}
	msg := []byte(Compose(from, s.FromName, to, subject, body))

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Server)
	}
	addr := fmt.Sprintf("%s:%d", s.Server, s.Port)
	return smtp.SendMail(addr, auth, from, to, msg)
}

// Compose renders the RFC 822 message.
func Compose(from, fromName string, to []string, subject, body string) string {
	sender := from
	if fromName != "" {
		sender = fmt.Sprintf("%s <%s>", fromName, from)
	}
	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n",
		sender, strings.Join(to, ", "), subject, body)
}
