package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxBracket: налоговая ступень по выручке предприятия.
// Границы включительные, ставка в процентах.
type TaxBracket struct {
	MinInclusive      decimal.Decimal `json:"min_inclusive"`
	MaxInclusive      decimal.Decimal `json:"max_inclusive"`
	TaxRatePercent    decimal.Decimal `json:"taux_imposition_percent"`
	SalaryMaxEmployee decimal.Decimal `json:"salaire_max_employe"`
	SalaryMaxBoss     decimal.Decimal `json:"salaire_max_patron"`
	BonusMaxEmployee  decimal.Decimal `json:"prime_max_employe"`
	BonusMaxBoss      decimal.Decimal `json:"prime_max_patron"`
}

// WealthTaxBracket: ступень налога на богатство.
type WealthTaxBracket struct {
	MinInclusive decimal.Decimal `json:"min_inclusive"`
	MaxInclusive decimal.Decimal `json:"max_inclusive"`
	RatePercent  decimal.Decimal `json:"taux_percent"`
}

// Parametrage: версия налоговых параметров предприятия.
// Хранится в таблице parametrage; актуальной считается последняя по created_at.
type Parametrage struct {
	ID            string     `json:"id"`
	EnterpriseID  string     `json:"enterprise_id"`
	ActiveVersion string     `json:"active_version"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	// OpenDatetime, CloseDatetime: окно приёма бухгалтерских деклараций
	OpenDatetime  time.Time `json:"open_datetime"`
	CloseDatetime time.Time `json:"close_datetime"`

	SalaryMaxEmployee decimal.Decimal `json:"salary_max_employee"`
	BonusMaxEmployee  decimal.Decimal `json:"bonus_max_employee"`
	SalaryMaxBoss     decimal.Decimal `json:"salary_max_boss"`
	BonusMaxBoss      decimal.Decimal `json:"bonus_max_boss"`

	TaxBrackets       []TaxBracket       `json:"tax_brackets"`
	WealthTaxBrackets []WealthTaxBracket `json:"wealth_tax_brackets"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultParametrage возвращает параметры по умолчанию для нового предприятия.
func DefaultParametrage(enterpriseID string, now time.Time) Parametrage {
	from := now
	return Parametrage{
		EnterpriseID:      enterpriseID,
		ActiveVersion:     "v1",
		EffectiveFrom:     &from,
		OpenDatetime:      now,
		CloseDatetime:     now.Add(30 * 24 * time.Hour),
		SalaryMaxEmployee: decimal.NewFromInt(100000),
		BonusMaxEmployee:  decimal.NewFromInt(50000),
		SalaryMaxBoss:     decimal.NewFromInt(200000),
		BonusMaxBoss:      decimal.NewFromInt(100000),
		TaxBrackets:       []TaxBracket{},
		WealthTaxBrackets: []WealthTaxBracket{},
	}
}

// CopyConfig возвращает копию конфигурационных полей без идентификатора,
// метки версии и временных меток. Срезы ступеней копируются.
func (p Parametrage) CopyConfig() Parametrage {
	cp := Parametrage{
		EnterpriseID:      p.EnterpriseID,
		OpenDatetime:      p.OpenDatetime,
		CloseDatetime:     p.CloseDatetime,
		SalaryMaxEmployee: p.SalaryMaxEmployee,
		BonusMaxEmployee:  p.BonusMaxEmployee,
		SalaryMaxBoss:     p.SalaryMaxBoss,
		BonusMaxBoss:      p.BonusMaxBoss,
		TaxBrackets:       append([]TaxBracket{}, p.TaxBrackets...),
		WealthTaxBrackets: append([]WealthTaxBracket{}, p.WealthTaxBrackets...),
	}
	if p.EffectiveFrom != nil {
		t := *p.EffectiveFrom
		cp.EffectiveFrom = &t
	}
	if p.EffectiveTo != nil {
		t := *p.EffectiveTo
		cp.EffectiveTo = &t
	}
	return cp
}
