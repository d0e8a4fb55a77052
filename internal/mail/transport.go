// Package mail holds the outbound email transports. The engine treats every
// transport as a fire-once relay and never retries a failed send itself.
package mail

import (
	"context"
	"fmt"

	awsclients "compliance-engine/internal/common/aws"
	"compliance-engine/internal/common/config"
	"compliance-engine/internal/common/logger"
)

type Transport interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
	Name() string
}

// New builds the transport selected by cfg.Provider.
func New(ctx context.Context, cfg config.MailConfig, log logger.Logger) (Transport, error) {
	switch cfg.Provider {
	case config.MailProviderSES:
		client, err := awsclients.NewSESClient(ctx, cfg.SES.Region)
		if err != nil {
			return nil, fmt.Errorf("ses transport: %w", err)
		}
		return NewSESTransport(client, cfg.FromAddress), nil
	case config.MailProviderSNS:
		client, err := awsclients.NewSNSClient(ctx, cfg.SNS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns transport: %w", err)
		}
		return NewSNSTransport(client, cfg.SNS.TopicARN), nil
	case config.MailProviderSMTP:
		return NewSMTPTransport(SMTPSettings{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			UseTLS:   cfg.SMTP.UseTLS,
			From:     cfg.FromAddress,
		}), nil
	case config.MailProviderLog, "":
		return NewLogTransport(log), nil
	default:
		return nil, fmt.Errorf("unknown mail provider: %s", cfg.Provider)
	}
}
