package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/domain/tax"
	"github.com/bigkaa/paneldot/internal/repository"
)

// ParametrageUpdate: частичное обновление параметров. nil означает «без изменений».
type ParametrageUpdate struct {
	ActiveVersion     *string                   `json:"active_version,omitempty"`
	EffectiveFrom     *time.Time                `json:"effective_from,omitempty"`
	EffectiveTo       *time.Time                `json:"effective_to,omitempty"`
	OpenDatetime      *time.Time                `json:"open_datetime,omitempty"`
	CloseDatetime     *time.Time                `json:"close_datetime,omitempty"`
	SalaryMaxEmployee *decimal.Decimal          `json:"salary_max_employee,omitempty"`
	BonusMaxEmployee  *decimal.Decimal          `json:"bonus_max_employee,omitempty"`
	SalaryMaxBoss     *decimal.Decimal          `json:"salary_max_boss,omitempty"`
	BonusMaxBoss      *decimal.Decimal          `json:"bonus_max_boss,omitempty"`
	TaxBrackets       *[]model.TaxBracket       `json:"tax_brackets,omitempty"`
	WealthTaxBrackets *[]model.WealthTaxBracket `json:"wealth_tax_brackets,omitempty"`
}

// apply переносит заданные поля в p. ID и EnterpriseID не затрагиваются.
func (u ParametrageUpdate) apply(p *model.Parametrage) {
	if u.ActiveVersion != nil {
		p.ActiveVersion = strings.TrimSpace(*u.ActiveVersion)
	}
	if u.EffectiveFrom != nil {
		t := *u.EffectiveFrom
		p.EffectiveFrom = &t
	}
	if u.EffectiveTo != nil {
		t := *u.EffectiveTo
		p.EffectiveTo = &t
	}
	if u.OpenDatetime != nil {
		p.OpenDatetime = *u.OpenDatetime
	}
	if u.CloseDatetime != nil {
		p.CloseDatetime = *u.CloseDatetime
	}
	if u.SalaryMaxEmployee != nil {
		p.SalaryMaxEmployee = *u.SalaryMaxEmployee
	}
	if u.BonusMaxEmployee != nil {
		p.BonusMaxEmployee = *u.BonusMaxEmployee
	}
	if u.SalaryMaxBoss != nil {
		p.SalaryMaxBoss = *u.SalaryMaxBoss
	}
	if u.BonusMaxBoss != nil {
		p.BonusMaxBoss = *u.BonusMaxBoss
	}
	if u.TaxBrackets != nil {
		p.TaxBrackets = append([]model.TaxBracket{}, (*u.TaxBrackets)...)
	}
	if u.WealthTaxBrackets != nil {
		p.WealthTaxBrackets = append([]model.WealthTaxBracket{}, (*u.WealthTaxBrackets)...)
	}
}

// ParametrageService: чтение и изменение налоговых параметров предприятия.
type ParametrageService struct {
	repo   repository.ParametrageRepository
	audit  AuditLogger
	now    func() time.Time
	logger *slog.Logger
}

// NewParametrageService создаёт сервис параметров.
func NewParametrageService(repo repository.ParametrageRepository, audit AuditLogger, logger *slog.Logger) *ParametrageService {
	return &ParametrageService{
		repo:   repo,
		audit:  audit,
		now:    time.Now,
		logger: logger.With(slog.String("component", "parametrage_service")),
	}
}

// Fetch возвращает актуальную версию параметров предприятия.
// Если версий нет, создаёт и возвращает запись по умолчанию.
// Без предприятия возвращает nil без ошибки.
func (s *ParametrageService) Fetch(ctx context.Context, actor AuthState, tenant string) (*model.Parametrage, error) {
	tenant, err := actor.Tenant(tenant)
	if err != nil || tenant == "" {
		return nil, err
	}
	return s.current(ctx, tenant)
}

// current возвращает последнюю версию или создаёт запись по умолчанию.
func (s *ParametrageService) current(ctx context.Context, tenant string) (*model.Parametrage, error) {
	def := model.DefaultParametrage(tenant, s.now())
	p, created, err := s.repo.LatestOrCreate(ctx, &def)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения параметров %s: %w", tenant, translateRepoError(err))
	}
	if created {
		s.logger.Info("Созданы параметры по умолчанию",
			slog.String("enterprise_id", tenant),
			slog.String("id", p.ID),
		)
	}
	return p, nil
}

// Update применяет частичное обновление к актуальной версии.
// Требует права редактирования. Возвращает сохранённую запись и
// предупреждения проверки (разрывы между ступенями).
func (s *ParametrageService) Update(ctx context.Context, actor AuthState, tenant string, upd ParametrageUpdate) (*model.Parametrage, []string, error) {
	if !actor.CanEdit {
		return nil, nil, fmt.Errorf("%w: изменение параметров", ErrForbidden)
	}
	tenant, err := actor.Tenant(tenant)
	if err != nil || tenant == "" {
		return nil, nil, err
	}

	current, err := s.current(ctx, tenant)
	if err != nil {
		return nil, nil, err
	}
	old := *current
	updated := current.CopyConfig()
	updated.ID = current.ID
	updated.ActiveVersion = current.ActiveVersion
	updated.CreatedAt = current.CreatedAt
	upd.apply(&updated)

	if updated.ActiveVersion == "" {
		return nil, nil, fmt.Errorf("%w: active_version не может быть пустой", ErrValidation)
	}
	warnings, err := tax.Check(updated)
	if err != nil {
		return nil, warnings, translateRepoError(err)
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, nil, fmt.Errorf("ошибка сохранения параметров %s: %w", tenant, translateRepoError(err))
	}

	s.audit.Log(ctx, model.ActionEntry{
		UserID:       actor.UserID(),
		EnterpriseID: tenant,
		ActionType:   model.ActionUpdateParametrage,
		Description:  "Mise à jour des paramètres de taxation",
		TargetTable:  "parametrage",
		TargetID:     updated.ID,
		OldData:      old,
		NewData:      updated,
	})
	s.logger.Info("Параметры обновлены",
		slog.String("enterprise_id", tenant),
		slog.String("id", updated.ID),
		slog.String("user_id", actor.UserID()),
	)
	return &updated, warnings, nil
}

// CreateVersion создаёт новую версию, копируя все параметры актуальной.
// Пустая метка заменяется следующей вида vN. Предыдущая версия не меняется.
func (s *ParametrageService) CreateVersion(ctx context.Context, actor AuthState, tenant, label string) (*model.Parametrage, error) {
	if !actor.CanEdit {
		return nil, fmt.Errorf("%w: создание версии", ErrForbidden)
	}
	tenant, err := actor.Tenant(tenant)
	if err != nil || tenant == "" {
		return nil, err
	}

	current, err := s.current(ctx, tenant)
	if err != nil {
		return nil, err
	}

	label = strings.TrimSpace(label)
	if label == "" {
		label = NextVersionLabel(current.ActiveVersion)
	}

	next := current.CopyConfig()
	next.ActiveVersion = label
	if err := s.repo.Create(ctx, &next); err != nil {
		return nil, fmt.Errorf("ошибка создания версии %q: %w", label, translateRepoError(err))
	}

	s.audit.Log(ctx, model.ActionEntry{
		UserID:       actor.UserID(),
		EnterpriseID: tenant,
		ActionType:   model.ActionCreateVersion,
		Description:  "Création d'une nouvelle version " + label,
		TargetTable:  "parametrage",
		TargetID:     next.ID,
		NewData:      map[string]string{"active_version": label, "copied_from": current.ID},
	})
	s.logger.Info("Создана новая версия параметров",
		slog.String("enterprise_id", tenant),
		slog.String("version", label),
		slog.String("from", current.ActiveVersion),
	)
	return &next, nil
}

// ListVersions возвращает все версии предприятия, новые первыми.
func (s *ParametrageService) ListVersions(ctx context.Context, actor AuthState, tenant string) ([]model.Parametrage, error) {
	tenant, err := actor.Tenant(tenant)
	if err != nil || tenant == "" {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, tenant)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return versions, nil
}

// PreviewTax рассчитывает налог по актуальным ступеням предприятия.
func (s *ParametrageService) PreviewTax(ctx context.Context, actor AuthState, tenant string, revenue, wealth decimal.Decimal) (*tax.Preview, error) {
	if revenue.IsNegative() || wealth.IsNegative() {
		return nil, fmt.Errorf("%w: суммы не могут быть отрицательными", ErrValidation)
	}
	p, err := s.Fetch(ctx, actor, tenant)
	if err != nil || p == nil {
		return nil, err
	}
	pv := tax.ComputePreview(*p, revenue, wealth)
	return &pv, nil
}

var versionNumberRe = regexp.MustCompile(`(\d+)(?:\.\d+)*$`)

// NextVersionLabel возвращает следующую метку: v1 → v2, v2.0 → v3.
// Метка без числа получает суффикс -2.
func NextVersionLabel(current string) string {
	m := versionNumberRe.FindStringSubmatchIndex(current)
	if m == nil {
		if current == "" {
			return "v1"
		}
		return current + "-2"
	}
	n, err := strconv.Atoi(current[m[2]:m[3]])
	if err != nil {
		return current + "-2"
	}
	return current[:m[2]] + strconv.Itoa(n+1)
}
