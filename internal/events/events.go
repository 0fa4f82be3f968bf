// Пакет events: публикация событий аудита во внешнюю шину.
// Если NATS не настроен, используется NoopPublisher.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/paneldot/internal/domain/model"
)

// AuditEvent: событие, публикуемое после успешной записи в журнал аудита.
type AuditEvent struct {
	EventID      string    `json:"event_id"`
	OccurredAt   time.Time `json:"occurred_at"`
	ActionLogID  string    `json:"action_log_id"`
	EnterpriseID string    `json:"enterprise_id"`
	UserID       string    `json:"user_id,omitempty"`
	ActionType   string    `json:"action_type"`
	Description  string    `json:"action_description"`
	TargetTable  string    `json:"target_table,omitempty"`
	TargetID     string    `json:"target_id,omitempty"`
}

// NewAuditEvent формирует событие по записи журнала.
func NewAuditEvent(actionLogID string, e model.ActionEntry, now time.Time) AuditEvent {
	return AuditEvent{
		EventID:      uuid.NewString(),
		OccurredAt:   now.UTC(),
		ActionLogID:  actionLogID,
		EnterpriseID: e.EnterpriseID,
		UserID:       e.UserID,
		ActionType:   e.ActionType,
		Description:  e.Description,
		TargetTable:  e.TargetTable,
		TargetID:     e.TargetID,
	}
}

// Publisher публикует события аудита.
type Publisher interface {
	Publish(ctx context.Context, ev AuditEvent) error
	Close() error
}

// NoopPublisher ничего не публикует.
type NoopPublisher struct{}

// NewNoopPublisher создаёт публикатор-заглушку.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish ничего не делает.
func (NoopPublisher) Publish(context.Context, AuditEvent) error { return nil }

// Close ничего не делает.
func (NoopPublisher) Close() error { return nil }
