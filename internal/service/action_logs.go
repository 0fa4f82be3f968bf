package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/domain/rbac"
	"github.com/bigkaa/paneldot/internal/repository"
)

// Ограничения выборки журнала.
const (
	DefaultLogLimit = 100
	MaxLogLimit     = 500
)

// ActionLogService: просмотр журнала аудита (только superadmin).
type ActionLogService struct {
	repo repository.ActionLogRepository
}

// NewActionLogService создаёт сервис журнала аудита.
func NewActionLogService(repo repository.ActionLogRepository) *ActionLogService {
	return &ActionLogService{repo: repo}
}

// List возвращает записи всех предприятий, новые первыми.
// limit <= 0 заменяется на DefaultLogLimit, больше MaxLogLimit обрезается.
func (s *ActionLogService) List(ctx context.Context, actor AuthState, limit, offset int) ([]model.ActionLog, error) {
	if !rbac.CanViewLogs(actor.IsSuperAdmin) {
		return nil, fmt.Errorf("%w: журнал аудита", ErrForbidden)
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.repo.List(ctx, repository.ActionLogFilter{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала: %w", translateRepoError(err))
	}
	return logs, nil
}

// Search ищет подстроку без учёта регистра в типе действия или описании.
// Пустой запрос эквивалентен List(DefaultLogLimit, 0).
func (s *ActionLogService) Search(ctx context.Context, actor AuthState, query string) ([]model.ActionLog, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx, actor, DefaultLogLimit, 0)
	}
	if !rbac.CanViewLogs(actor.IsSuperAdmin) {
		return nil, fmt.Errorf("%w: журнал аудита", ErrForbidden)
	}

	logs, err := s.repo.List(ctx, repository.ActionLogFilter{Query: query, Limit: DefaultLogLimit})
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска в журнале: %w", translateRepoError(err))
	}
	return logs, nil
}
