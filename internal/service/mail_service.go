package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/feellog-api/pkg/jobs"
)

// MailKindPasswordReset tags password reset messages.
const MailKindPasswordReset = "password_reset"

// MailMessage is a rendered outbound email.
type MailMessage struct {
	Kind    string
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// LogMailer writes messages to the log instead of delivering them. The body is never logged.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send implements Mailer.
func (m *LogMailer) Send(ctx context.Context, msg MailMessage) error {
	m.logger.Info("mail dispatched",
		zap.String("kind", msg.Kind),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// MailConfig configures the mail dispatcher.
type MailConfig struct {
	From       string
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// MailService renders messages and hands them to a background queue.
type MailService struct {
	queue   *jobs.Queue[MailMessage]
	from    string
	logger  *zap.Logger
	metrics *MetricsService
}

// NewMailService builds the dispatcher. Start must be called before messages are accepted.
func NewMailService(mailer Mailer, logger *zap.Logger, metrics *MetricsService, cfg MailConfig) *MailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &MailService{from: cfg.From, logger: logger, metrics: metrics}
	svc.queue = jobs.NewQueue[MailMessage]("mail", func(ctx context.Context, job jobs.Job[MailMessage]) error {
		err := mailer.Send(ctx, job.Payload)
		metrics.RecordMailDispatch(job.Payload.Kind, err)
		return err
	}, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the mail workers.
func (s *MailService) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop drains the workers.
func (s *MailService) Stop() { s.queue.Stop() }

// SendPasswordReset queues the one-time code for email.
func (s *MailService) SendPasswordReset(ctx context.Context, email, fullName, code string, expiresAt time.Time) error {
	msg := MailMessage{
		Kind:    MailKindPasswordReset,
		From:    s.from,
		To:      email,
		Subject: "Your FeelLog password reset code",
		Body: fmt.Sprintf("Hi %s,\n\nUse the code %s to reset your password. It expires at %s UTC.\n\nIf you did not request this, you can ignore this email.\n",
			fullName, code, expiresAt.UTC().Format("15:04")),
	}
	id, err := s.queue.Enqueue(ctx, msg)
	if err != nil {
		return fmt.Errorf("queue password reset mail: %w", err)
	}
	s.logger.Debug("password reset mail queued", zap.String("job_id", id))
	return nil
}
