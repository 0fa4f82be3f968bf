// Пакет tax: проверка налоговых ступеней и расчёт налога по выручке
// и состоянию предприятия.
package tax

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/paneldot/internal/domain/model"
)

// ErrInvalid возвращается (обёрнутой), если параметры не прошли проверку.
var ErrInvalid = errors.New("некорректные параметры")

var hundred = decimal.NewFromInt(100)

// ValidationError содержит список найденных нарушений.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// span: диапазон ступени с исходным индексом.
type span struct {
	idx      int
	min, max decimal.Decimal
	rate     decimal.Decimal
}

// Check проверяет параметры предприятия.
// Нарушения (min > max, отрицательные границы, ставка вне [0, 100],
// пересечения ступеней, отрицательные потолки, закрытие раньше открытия)
// возвращаются как *ValidationError. Разрывы между ступенями не ошибка,
// они попадают в warnings.
func Check(p model.Parametrage) (warnings []string, err error) {
	var problems []string

	ceilings := []struct {
		name  string
		value decimal.Decimal
	}{
		{"salary_max_employee", p.SalaryMaxEmployee},
		{"bonus_max_employee", p.BonusMaxEmployee},
		{"salary_max_boss", p.SalaryMaxBoss},
		{"bonus_max_boss", p.BonusMaxBoss},
	}
	for _, c := range ceilings {
		if c.value.IsNegative() {
			problems = append(problems, fmt.Sprintf("%s не может быть отрицательным", c.name))
		}
	}

	if p.CloseDatetime.Before(p.OpenDatetime) {
		problems = append(problems, "close_datetime раньше open_datetime")
	}
	if p.EffectiveFrom != nil && p.EffectiveTo != nil && p.EffectiveTo.Before(*p.EffectiveFrom) {
		problems = append(problems, "effective_to раньше effective_from")
	}

	taxSpans := make([]span, len(p.TaxBrackets))
	for i, b := range p.TaxBrackets {
		taxSpans[i] = span{idx: i, min: b.MinInclusive, max: b.MaxInclusive, rate: b.TaxRatePercent}
		for _, c := range []decimal.Decimal{b.SalaryMaxEmployee, b.SalaryMaxBoss, b.BonusMaxEmployee, b.BonusMaxBoss} {
			if c.IsNegative() {
				problems = append(problems, fmt.Sprintf("tax_brackets[%d]: потолок не может быть отрицательным", i))
				break
			}
		}
	}
	w, pr := checkSpans("tax_brackets", taxSpans)
	warnings = append(warnings, w...)
	problems = append(problems, pr...)

	wealthSpans := make([]span, len(p.WealthTaxBrackets))
	for i, b := range p.WealthTaxBrackets {
		wealthSpans[i] = span{idx: i, min: b.MinInclusive, max: b.MaxInclusive, rate: b.RatePercent}
	}
	w, pr = checkSpans("wealth_tax_brackets", wealthSpans)
	warnings = append(warnings, w...)
	problems = append(problems, pr...)

	if len(problems) > 0 {
		return warnings, &ValidationError{Problems: problems}
	}
	return warnings, nil
}

// checkSpans проверяет набор ступеней одного вида.
func checkSpans(field string, spans []span) (warnings, problems []string) {
	for _, s := range spans {
		if s.min.IsNegative() || s.max.IsNegative() {
			problems = append(problems, fmt.Sprintf("%s[%d]: границы не могут быть отрицательными", field, s.idx))
		}
		if s.min.GreaterThan(s.max) {
			problems = append(problems, fmt.Sprintf("%s[%d]: min_inclusive больше max_inclusive", field, s.idx))
		}
		if s.rate.IsNegative() || s.rate.GreaterThan(hundred) {
			problems = append(problems, fmt.Sprintf("%s[%d]: ставка должна быть в диапазоне 0..100", field, s.idx))
		}
	}

	sorted := append([]span(nil), spans...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].min.LessThan(sorted[j].min) })

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		switch {
		case cur.min.LessThanOrEqual(prev.max):
			problems = append(problems, fmt.Sprintf("%s[%d] и %s[%d] пересекаются", field, prev.idx, field, cur.idx))
		case cur.min.GreaterThan(prev.max.Add(step(prev.max, cur.min))):
			warnings = append(warnings, fmt.Sprintf("%s: разрыв между %s и %s", field, prev.max, cur.min))
		}
	}
	return warnings, problems
}

// step: наименьший шаг среди двух границ. Для целых границ 1,
// для дробных единица последнего знака (1000.50 даёт 0.01).
func step(a, b decimal.Decimal) decimal.Decimal {
	exp := min(a.Exponent(), b.Exponent(), 0)
	return decimal.New(1, exp)
}

// FindTaxBracket возвращает ступень, в границы которой попадает выручка.
func FindTaxBracket(brackets []model.TaxBracket, revenue decimal.Decimal) (model.TaxBracket, bool) {
	for _, b := range brackets {
		if revenue.GreaterThanOrEqual(b.MinInclusive) && revenue.LessThanOrEqual(b.MaxInclusive) {
			return b, true
		}
	}
	return model.TaxBracket{}, false
}

// FindWealthBracket возвращает ступень налога на богатство для суммы состояния.
func FindWealthBracket(brackets []model.WealthTaxBracket, wealth decimal.Decimal) (model.WealthTaxBracket, bool) {
	for _, b := range brackets {
		if wealth.GreaterThanOrEqual(b.MinInclusive) && wealth.LessThanOrEqual(b.MaxInclusive) {
			return b, true
		}
	}
	return model.WealthTaxBracket{}, false
}

// Preview: результат предварительного расчёта налога.
type Preview struct {
	Revenue decimal.Decimal `json:"revenue"`
	Wealth  decimal.Decimal `json:"wealth"`

	TaxBracket     *model.TaxBracket `json:"tax_bracket,omitempty"`
	TaxRatePercent decimal.Decimal   `json:"tax_rate_percent"`
	TaxAmount      decimal.Decimal   `json:"tax_amount"`

	WealthBracket     *model.WealthTaxBracket `json:"wealth_bracket,omitempty"`
	WealthRatePercent decimal.Decimal         `json:"wealth_rate_percent"`
	WealthTaxAmount   decimal.Decimal         `json:"wealth_tax_amount"`

	Total decimal.Decimal `json:"total"`
}

// ComputePreview рассчитывает налог: ставка найденной ступени применяется
// ко всей сумме. Если ступень не найдена, налог равен нулю.
// Суммы округляются до центов.
func ComputePreview(p model.Parametrage, revenue, wealth decimal.Decimal) Preview {
	pv := Preview{
		Revenue:           revenue,
		Wealth:            wealth,
		TaxRatePercent:    decimal.Zero,
		TaxAmount:         decimal.Zero,
		WealthRatePercent: decimal.Zero,
		WealthTaxAmount:   decimal.Zero,
	}

	if b, ok := FindTaxBracket(p.TaxBrackets, revenue); ok {
		pv.TaxBracket = &b
		pv.TaxRatePercent = b.TaxRatePercent
		pv.TaxAmount = revenue.Mul(b.TaxRatePercent).Div(hundred).Round(2)
	}
	if b, ok := FindWealthBracket(p.WealthTaxBrackets, wealth); ok {
		pv.WealthBracket = &b
		pv.WealthRatePercent = b.RatePercent
		pv.WealthTaxAmount = wealth.Mul(b.RatePercent).Div(hundred).Round(2)
	}
	pv.Total = pv.TaxAmount.Add(pv.WealthTaxAmount)
	return pv
}
