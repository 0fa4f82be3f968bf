package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/events"
	"github.com/bigkaa/paneldot/internal/repository"
)

var auditWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pd_audit_writes_total",
	Help: "Количество записей в журнал аудита по результату.",
}, []string{"result"})

// AuditLogger записывает действия в журнал аудита.
// Ошибки записи не возвращаются вызывающему.
type AuditLogger interface {
	Log(ctx context.Context, e model.ActionEntry)
}

// Auditor: запись в журнал через log_action и публикация события в шину.
type Auditor struct {
	logs      repository.ActionLogRepository
	publisher events.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewAuditor создаёт Auditor. publisher может быть NoopPublisher.
func NewAuditor(logs repository.ActionLogRepository, publisher events.Publisher, logger *slog.Logger) *Auditor {
	return &Auditor{
		logs:      logs,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "auditor")),
	}
}

// Log добавляет запись. Данные клиента берутся из контекста, если не заданы явно.
// Ошибки журнала и публикации только логируются на уровне WARN.
func (a *Auditor) Log(ctx context.Context, e model.ActionEntry) {
	ci := ClientInfoFromContext(ctx)
	if e.IPAddress == "" {
		e.IPAddress = ci.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = ci.UserAgent
	}

	id, err := a.logs.Log(ctx, e)
	if err != nil {
		auditWritesTotal.WithLabelValues("error").Inc()
		a.logger.Warn("Не удалось записать действие в журнал",
			slog.String("action_type", e.ActionType),
			slog.String("enterprise_id", e.EnterpriseID),
			slog.String("error", err.Error()),
		)
		return
	}
	auditWritesTotal.WithLabelValues("ok").Inc()

	if err := a.publisher.Publish(ctx, events.NewAuditEvent(id, e, a.now())); err != nil {
		a.logger.Warn("Не удалось опубликовать событие аудита",
			slog.String("action_log_id", id),
			slog.String("error", err.Error()),
		)
	}
}
