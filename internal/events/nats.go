package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher публикует события аудита в subject NATS (core NATS, без JetStream).
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher подключается к NATS и возвращает публикатор.
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	logger = logger.With(slog.String("component", "nats"))

	opts := []nats.Option{
		nats.Name("panel-dot"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error("NATS отключён с ошибкой", slog.String("error", err.Error()))
			} else {
				logger.Warn("NATS отключён")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS переподключён")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к NATS: %w", err)
	}

	logger.Info("Подключение к NATS установлено",
		slog.String("url", nc.ConnectedUrlRedacted()),
		slog.String("subject", subject),
	)
	return &NATSPublisher{nc: nc, subject: subject, logger: logger}, nil
}

// Заголовки сообщения с событием аудита.
const (
	HeaderActionType = "Action-Type"
	HeaderEventID    = "Nats-Msg-Id"
)

// Publish сериализует событие в JSON и публикует его.
// Subject: <subject>.<action_type> с экранированным типом,
// исходный тип передаётся в заголовке Action-Type.
func (p *NATSPublisher) Publish(ctx context.Context, ev AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := newAuditMsg(p.subject, ev)
	if err != nil {
		return err
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("ошибка публикации в NATS: %w", err)
	}
	return nil
}

// newAuditMsg собирает сообщение NATS для события.
func newAuditMsg(subject string, ev AuditEvent) (*nats.Msg, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации события: %w", err)
	}
	msg := nats.NewMsg(subject + "." + subjectToken(ev.ActionType))
	msg.Data = data
	msg.Header.Set(HeaderActionType, ev.ActionType)
	msg.Header.Set(HeaderEventID, ev.EventID)
	return msg, nil
}

// subjectToken превращает тип действия в один токен subject.
// Допустимы буквы, цифры, '_' и '-', остальное заменяется на '_'.
// Точка, '*' и '>' в токене дали бы лишний уровень или wildcard.
func subjectToken(actionType string) string {
	if actionType == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, actionType)
}

// Close дожидается отправки буфера и закрывает соединение.
func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	p.logger.Info("Соединение с NATS закрыто")
	return nil
}

// IsConnected возвращает true, если соединение активно.
func (p *NATSPublisher) IsConnected() bool {
	return p.nc != nil && p.nc.IsConnected()
}
