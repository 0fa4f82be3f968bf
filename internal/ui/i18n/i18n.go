// Пакет i18n: форматирование для интерфейса панели в локали fr-FR.
// Валюта USD без дробной части ("1 234 $"), проценты "7%",
// даты в часовом поясе Europe/Paris.
package i18n

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Europe/Paris без системной базы часовых поясов

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Locale: язык интерфейса.
var Locale = language.French

// nbsp: неразрывный пробел, разделитель групп разрядов в выводе.
const nbsp = "\u00a0"

// Форматы дат.
const (
	dateTimeLayout = "02/01/2006 15:04"
	// InputLayout: значение для <input type="datetime-local">
	InputLayout = "2006-01-02T15:04"
)

var (
	paris   = mustLoadLocation("Europe/Paris")
	printer = message.NewPrinter(Locale)
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("i18n: часовой пояс %s: %v", name, err))
	}
	return loc
}

// Location возвращает часовой пояс интерфейса.
func Location() *time.Location {
	return paris
}

// normalizeSpaces приводит все пробельные разделители CLDR к неразрывному пробелу.
func normalizeSpaces(s string) string {
	return strings.NewReplacer("\u202f", nbsp, " ", nbsp).Replace(s)
}

// Number форматирует число с разделителем групп и не более чем двумя знаками после запятой.
func Number(d decimal.Decimal) string {
	return normalizeSpaces(printer.Sprint(number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(2))))
}

// Currency форматирует сумму в долларах без дробной части: "1 234 $".
func Currency(d decimal.Decimal) string {
	rounded := d.Round(0).InexactFloat64()
	return normalizeSpaces(printer.Sprint(number.Decimal(rounded, number.MaxFractionDigits(0)))) + nbsp + "$"
}

// Percent форматирует ставку: "7%", "7,5%".
func Percent(d decimal.Decimal) string {
	return Number(d) + "%"
}

// DateTime форматирует момент как "02/01/2006 15:04" по парижскому времени.
func DateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(paris).Format(dateTimeLayout)
}

// DateTimeInput форматирует момент для поля datetime-local.
func DateTimeInput(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(paris).Format(InputLayout)
}

// ParseDateTimeInput разбирает значение поля datetime-local как парижское время.
func ParseDateTimeInput(s string) (time.Time, error) {
	t, err := time.ParseInLocation(InputLayout, strings.TrimSpace(s), paris)
	if err != nil {
		return time.Time{}, fmt.Errorf("некорректная дата %q: %w", s, err)
	}
	return t, nil
}
