package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/paneldot/internal/domain/model"
)

// ParametrageRepository: интерфейс для таблицы parametrage.
// Актуальной версией предприятия считается последняя по created_at,
// при равных created_at последняя вставленная (seq).
type ParametrageRepository interface {
	// Latest возвращает последнюю версию параметров предприятия. Если нет, ErrNotFound.
	Latest(ctx context.Context, enterpriseID string) (*model.Parametrage, error)
	// LatestOrCreate возвращает последнюю версию или атомарно создаёт def,
	// если у предприятия ещё нет ни одной версии. created = true, если создана def.
	LatestOrCreate(ctx context.Context, def *model.Parametrage) (p *model.Parametrage, created bool, err error)
	// ListVersions возвращает все версии предприятия, новые первыми.
	ListVersions(ctx context.Context, enterpriseID string) ([]model.Parametrage, error)
	// Create сохраняет новую версию; заполняет ID и временные метки.
	// Повтор метки версии в пределах предприятия: ErrConflict.
	Create(ctx context.Context, p *model.Parametrage) error
	// Update сохраняет изменения версии по (ID, EnterpriseID). Если не найдена, ErrNotFound.
	Update(ctx context.Context, p *model.Parametrage) error
}

// parametrageRepo: реализация ParametrageRepository для PostgreSQL.
type parametrageRepo struct {
	db DBTX
}

// NewParametrageRepository создаёт репозиторий параметров.
func NewParametrageRepository(db DBTX) ParametrageRepository {
	return &parametrageRepo{db: db}
}

const parametrageColumns = `
	id::text, enterprise_id, active_version, effective_from, effective_to,
	open_datetime, close_datetime,
	salary_max_employee, bonus_max_employee, salary_max_boss, bonus_max_boss,
	tax_brackets, wealth_tax_brackets, created_at, updated_at`

// Latest возвращает последнюю версию параметров предприятия.
func (r *parametrageRepo) Latest(ctx context.Context, enterpriseID string) (*model.Parametrage, error) {
	query := `SELECT ` + parametrageColumns + `
		FROM parametrage
		WHERE enterprise_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`

	p, err := scanParametrage(r.db.QueryRow(ctx, query, enterpriseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения parametrage[%s]: %w", enterpriseID, err)
	}
	return p, nil
}

// LatestOrCreate выполняется в транзакции под advisory-блокировкой предприятия,
// поэтому параллельные вызовы создают не более одной записи по умолчанию.
func (r *parametrageRepo) LatestOrCreate(ctx context.Context, def *model.Parametrage) (*model.Parametrage, bool, error) {
	var (
		result  *model.Parametrage
		created bool
	)

	err := runInTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('parametrage:' || $1))`, def.EnterpriseID); err != nil {
			return fmt.Errorf("ошибка блокировки parametrage[%s]: %w", def.EnterpriseID, err)
		}

		txRepo := &parametrageRepo{db: tx}
		p, err := txRepo.Latest(ctx, def.EnterpriseID)
		if err == nil {
			result = p
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		if err := txRepo.Create(ctx, def); err != nil {
			return err
		}
		result, created = def, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// ListVersions возвращает все версии предприятия, новые первыми.
func (r *parametrageRepo) ListVersions(ctx context.Context, enterpriseID string) ([]model.Parametrage, error) {
	query := `SELECT ` + parametrageColumns + `
		FROM parametrage
		WHERE enterprise_id = $1
		ORDER BY created_at DESC, seq DESC`

	rows, err := r.db.Query(ctx, query, enterpriseID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения версий parametrage[%s]: %w", enterpriseID, err)
	}
	defer rows.Close()

	var versions []model.Parametrage
	for rows.Next() {
		p, err := scanParametrage(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования parametrage: %w", err)
		}
		versions = append(versions, *p)
	}
	return versions, rows.Err()
}

// Create сохраняет новую версию параметров.
func (r *parametrageRepo) Create(ctx context.Context, p *model.Parametrage) error {
	taxJSON, wealthJSON, err := marshalBrackets(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO parametrage (
			enterprise_id, active_version, effective_from, effective_to,
			open_datetime, close_datetime,
			salary_max_employee, bonus_max_employee, salary_max_boss, bonus_max_boss,
			tax_brackets, wealth_tax_brackets
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id::text, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		p.EnterpriseID, p.ActiveVersion, p.EffectiveFrom, p.EffectiveTo,
		p.OpenDatetime, p.CloseDatetime,
		p.SalaryMaxEmployee, p.BonusMaxEmployee, p.SalaryMaxBoss, p.BonusMaxBoss,
		taxJSON, wealthJSON,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: версия %q предприятия %s", ErrConflict, p.ActiveVersion, p.EnterpriseID)
		}
		return fmt.Errorf("ошибка создания parametrage[%s]: %w", p.EnterpriseID, err)
	}
	return nil
}

// Update сохраняет изменения версии. id и enterprise_id не меняются.
func (r *parametrageRepo) Update(ctx context.Context, p *model.Parametrage) error {
	taxJSON, wealthJSON, err := marshalBrackets(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE parametrage SET
			active_version = $3,
			effective_from = $4,
			effective_to = $5,
			open_datetime = $6,
			close_datetime = $7,
			salary_max_employee = $8,
			bonus_max_employee = $9,
			salary_max_boss = $10,
			bonus_max_boss = $11,
			tax_brackets = $12,
			wealth_tax_brackets = $13,
			updated_at = NOW()
		WHERE id::text = $1 AND enterprise_id = $2
		RETURNING updated_at`

	err = r.db.QueryRow(ctx, query,
		p.ID, p.EnterpriseID, p.ActiveVersion, p.EffectiveFrom, p.EffectiveTo,
		p.OpenDatetime, p.CloseDatetime,
		p.SalaryMaxEmployee, p.BonusMaxEmployee, p.SalaryMaxBoss, p.BonusMaxBoss,
		taxJSON, wealthJSON,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: версия %q предприятия %s", ErrConflict, p.ActiveVersion, p.EnterpriseID)
		}
		return fmt.Errorf("ошибка обновления parametrage[%s]: %w", p.ID, err)
	}
	return nil
}

// marshalBrackets сериализует ступени в JSON для колонок jsonb.
func marshalBrackets(p *model.Parametrage) (taxJSON, wealthJSON []byte, err error) {
	tax := p.TaxBrackets
	if tax == nil {
		tax = []model.TaxBracket{}
	}
	wealth := p.WealthTaxBrackets
	if wealth == nil {
		wealth = []model.WealthTaxBracket{}
	}

	if taxJSON, err = json.Marshal(tax); err != nil {
		return nil, nil, fmt.Errorf("ошибка сериализации tax_brackets: %w", err)
	}
	if wealthJSON, err = json.Marshal(wealth); err != nil {
		return nil, nil, fmt.Errorf("ошибка сериализации wealth_tax_brackets: %w", err)
	}
	return taxJSON, wealthJSON, nil
}

// DecodeBrackets строго декодирует JSON-массив ступеней: неизвестные поля запрещены.
func DecodeBrackets[T model.TaxBracket | model.WealthTaxBracket](data []byte) ([]T, error) {
	out := []T{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// scanParametrage сканирует строку parametrage в модель.
func scanParametrage(row pgx.Row) (*model.Parametrage, error) {
	p := &model.Parametrage{}
	var taxJSON, wealthJSON []byte

	err := row.Scan(
		&p.ID, &p.EnterpriseID, &p.ActiveVersion, &p.EffectiveFrom, &p.EffectiveTo,
		&p.OpenDatetime, &p.CloseDatetime,
		&p.SalaryMaxEmployee, &p.BonusMaxEmployee, &p.SalaryMaxBoss, &p.BonusMaxBoss,
		&taxJSON, &wealthJSON, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.TaxBrackets, err = DecodeBrackets[model.TaxBracket](taxJSON); err != nil {
		return nil, fmt.Errorf("некорректный tax_brackets у parametrage %s: %w", p.ID, err)
	}
	if p.WealthTaxBrackets, err = DecodeBrackets[model.WealthTaxBracket](wealthJSON); err != nil {
		return nil, fmt.Errorf("некорректный wealth_tax_brackets у parametrage %s: %w", p.ID, err)
	}
	return p, nil
}
