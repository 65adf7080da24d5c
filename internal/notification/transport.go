package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/tendant/simple-classroom/internal/config"
	"github.com/tendant/simple-classroom/internal/queue"
	"gopkg.in/gomail.v2"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Transport delivers a rendered message.
type Transport interface {
	Send(ctx context.Context, from Sender, msg Message) error
}

// Sender is the From identity of outgoing mail.
type Sender struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

func (s Sender) String() string {
	if s.Name == "" {
		return s.Address
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Address)
}

// SMTPConfig holds SMTP server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// SMTPTransport sends mail through an SMTP relay.
type SMTPTransport struct {
	dialer *gomail.Dialer
}

// NewSMTPTransport creates an SMTP transport.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)}
}

func (t *SMTPTransport) Send(ctx context.Context, from Sender, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetAddressHeader("From", from.Address, from.Name)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	return t.dialer.DialAndSend(m)
}

// SendGridTransport sends mail through the SendGrid v3 API.
type SendGridTransport struct {
	client *sendgrid.Client
}

// NewSendGridTransport creates a SendGrid transport.
func NewSendGridTransport(apiKey string) *SendGridTransport {
	return &SendGridTransport{client: sendgrid.NewSendClient(apiKey)}
}

func (t *SendGridTransport) Send(ctx context.Context, from Sender, msg Message) error {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail("", msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(from.Name, from.Address))
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/html", msg.HTML))

	res, err := t.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// LogTransport writes messages to the log instead of sending them.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a transport for local development.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, from Sender, msg Message) error {
	t.logger.Info("email", "from", from.String(), "to", msg.To, "subject", msg.Subject, "body", msg.HTML)
	return nil
}

// MailTaskType is the queue task that carries one outgoing message.
const MailTaskType = "mail:send"

// MailTask is the JSON payload of a MailTaskType task.
type MailTask struct {
	From    Sender  `json:"from"`
	Message Message `json:"message"`
}

// QueueTransport hands messages to the background worker.
type QueueTransport struct {
	client queue.Client
}

// NewQueueTransport creates a transport that enqueues mail for the worker.
func NewQueueTransport(client queue.Client) *QueueTransport {
	return &QueueTransport{client: client}
}

func (t *QueueTransport) Send(ctx context.Context, from Sender, msg Message) error {
	payload, err := json.Marshal(MailTask{From: from, Message: msg})
	if err != nil {
		return fmt.Errorf("encode mail task: %w", err)
	}
	_, err = t.client.Enqueue(ctx, queue.Task{Type: MailTaskType, Payload: payload}, queue.EnqueueOption{
		Queue:    "mail",
		MaxRetry: 5,
	})
	return err
}

// MailTaskHandler delivers queued messages through transport.
func MailTaskHandler(transport Transport) queue.Handler {
	return func(ctx context.Context, task queue.Task) error {
		var p MailTask
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode mail task: %w", err)
		}
		return transport.Send(ctx, p.From, p.Message)
	}
}

// NewTransport builds the delivery transport named by cfg.Transport.
func NewTransport(cfg config.MailConfig, logger *slog.Logger) (Transport, error) {
	switch cfg.Transport {
	case "", "log":
		return NewLogTransport(logger), nil
	case "smtp":
		return NewSMTPTransport(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		}), nil
	case "sendgrid":
		return NewSendGridTransport(cfg.SendGridAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}
