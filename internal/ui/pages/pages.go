// Пакет pages: HTML-страницы панели. Разметка в *.templ, *_templ.go
// генерируются командой templ generate и хранятся в репозитории.
package pages

import (
	"time"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/domain/tax"
	"github.com/bigkaa/paneldot/internal/service"
	"github.com/bigkaa/paneldot/internal/ui/i18n"
)

// Виды уведомлений.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashWarning = "warning"
)

// Flash: одноразовое уведомление для следующей страницы.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// LayoutData: общие данные страницы.
type LayoutData struct {
	Title string
	State service.AuthState
	Flash *Flash
}

// StylesheetPath: адрес встроенной таблицы стилей.
const StylesheetPath = "/static/css/panel.css"

// LogsData: данные страницы журнала аудита.
type LogsData struct {
	Logs  []model.ActionLog
	Query string
}

// ActionBadge возвращает CSS-класс значка для типа действия.
func ActionBadge(actionType string) string {
	switch actionType {
	case model.ActionUserLogin, model.ActionUserFirstLogin:
		return "badge-green"
	case model.ActionUpdateParametrage:
		return "badge-blue"
	case model.ActionUpdateDiscordSettings:
		return "badge-purple"
	case model.ActionCreateVersion:
		return "badge-orange"
	default:
		return "badge-gray"
	}
}

// ReadOnlyNotice: текст баннера для пользователей без права изменения.
const ReadOnlyNotice = "Seuls les SUPERSTAFF peuvent modifier ces paramètres."

// ParametrageData: данные страницы параметров.
type ParametrageData struct {
	CanEdit     bool
	Parametrage *model.Parametrage
	Versions    []model.Parametrage
	Discord     *model.DiscordSettings
	Warnings    []string
	// Enterprise: явно выбранное предприятие (superadmin), пусто для своего
	Enterprise string

	// Ступени в JSON для редактирования
	TaxBracketsJSON    string
	WealthBracketsJSON string

	Preview        *tax.Preview
	PreviewRevenue string
	PreviewWealth  string
}

// effectivePeriod: период действия, по умолчанию окно учёта.
func effectivePeriod(p *model.Parametrage) (from, to string) {
	start, end := p.OpenDatetime, p.CloseDatetime
	if p.EffectiveFrom != nil {
		start = *p.EffectiveFrom
	}
	if p.EffectiveTo != nil {
		end = *p.EffectiveTo
	}
	return i18n.DateTime(start), i18n.DateTime(end)
}

func optionalInput(t *time.Time) string {
	if t == nil {
		return ""
	}
	return i18n.DateTimeInput(*t)
}

// taxCells: ячейки строки барема в порядке колонок таблицы.
func taxCells(b model.TaxBracket) []string {
	return []string{
		i18n.Currency(b.MinInclusive), i18n.Currency(b.MaxInclusive), i18n.Percent(b.TaxRatePercent),
		i18n.Currency(b.SalaryMaxEmployee), i18n.Currency(b.SalaryMaxBoss),
		i18n.Currency(b.BonusMaxEmployee), i18n.Currency(b.BonusMaxBoss),
	}
}

type discordField struct {
	ID    string
	Label string
	Value string
}

// discordFields: поля настроек Discord в порядке вывода.
func discordFields(ds *model.DiscordSettings) []discordField {
	return []discordField{
		{"main_guild_id", "Serveur principal", ds.MainGuildID},
		{"main_guild_staff_role_id", "Rôle Staff (principal)", ds.MainGuildStaffRoleID},
		{"main_guild_patron_role_id", "Rôle Patron (principal)", ds.MainGuildPatronRoleID},
		{"main_guild_co_patron_role_id", "Rôle Co-Patron (principal)", ds.MainGuildCoPatronRoleID},
		{"main_guild_enterprise_role_id", "Rôle Entreprise (principal)", ds.MainGuildEnterpriseRoleID},
		{"dot_guild_id", "Serveur DOT", ds.DotGuildID},
		{"dot_guild_staff_role_id", "Rôle Staff (DOT)", ds.DotGuildStaffRoleID},
		{"dot_guild_dot_role_id", "Rôle DOT (DOT)", ds.DotGuildDotRoleID},
	}
}
