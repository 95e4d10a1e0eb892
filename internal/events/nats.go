package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	publishAttempts = 3
	flushTimeout    = 2 * time.Second
)

type natsConn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

type NATSPublisher struct {
	conn       natsConn
	logger     *slog.Logger
	retryDelay time.Duration
}

func ConnectNATS(ctx context.Context, url string, logger *slog.Logger) (*NATSPublisher, error) {
	var (
		conn *nats.Conn
		err  error
	)
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		conn, err = nats.Connect(url,
			nats.Name("storefront"),
			nats.MaxReconnects(5),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err == nil {
			logger.Info("connected to nats", "url", conn.ConnectedUrl())
			return newNATSPublisher(conn, logger), nil
		}

		logger.Warn("failed to connect to nats", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect to nats after retries: %w", err)
}

func newNATSPublisher(conn natsConn, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, logger: logger, retryDelay: time.Second}
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = p.conn.Publish(subject, data); lastErr == nil {
			if lastErr = p.conn.FlushTimeout(flushTimeout); lastErr == nil {
				return nil
			}
		}
		p.logger.Warn("failed to publish event", "subject", subject, "attempt", attempt, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.retryDelay):
		}
	}
	return fmt.Errorf("failed to publish %s after retries: %w", subject, lastErr)
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
