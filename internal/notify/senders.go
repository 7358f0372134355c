package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"github.com/xela07ax/auditchain-platform/internal/domain"
	"github.com/xela07ax/auditchain-platform/internal/infra"
)

// Sender — один канал доставки. target — адрес/телефон/токен из настроек.
type Sender interface {
	Send(ctx context.Context, n domain.NotificationEvent, target string) error
}

// EmailSender шлет письма через SMTP-релей.
type EmailSender struct {
	cfg infra.NotifyConfig
}

func NewEmailSender(cfg infra.NotifyConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

func (s *EmailSender) Send(ctx context.Context, n domain.NotificationEvent, target string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.FromAddress, target, n.Type, n.Content))

	var auth smtp.Auth
	if s.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.FromAddress, []string{target}, msg); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}

// httpSender — общий код для SMS и Push шлюзов: POST JSON на URL провайдера.
type httpSender struct {
	client *http.Client
	url    string
	field  string // Имя поля адресата в теле запроса
}

func newHTTPSender(url, field string) *httpSender {
	return &httpSender{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		field:  field,
	}
}

func (s *httpSender) Send(ctx context.Context, n domain.NotificationEvent, target string) error {
	body, err := json.Marshal(map[string]string{
		s.field:   target,
		"subject": n.Type,
		"content": n.Content,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: gateway call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: gateway returned %d", resp.StatusCode)
	}
	return nil
}

func NewSMSSender(cfg infra.NotifyConfig) Sender {
	return newHTTPSender(cfg.SMSGatewayURL, "phone_number")
}

func NewPushSender(cfg infra.NotifyConfig) Sender {
	return newHTTPSender(cfg.PushGateURL, "push_token")
}
