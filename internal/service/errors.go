// errors.go: ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/paneldot/internal/domain/tax"
	"github.com/bigkaa/paneldot/internal/repository"
)

var (
	// ErrNotFound: ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict: конфликт (например, повтор метки версии).
	ErrConflict = errors.New("конфликт: ресурс уже существует")
	// ErrValidation: ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrForbidden: недостаточно прав для операции.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrNoTenant: у вызывающего нет предприятия.
	ErrNoTenant = errors.New("предприятие не определено")
	// ErrSessionInvalid: сессия недействительна, требуется выход.
	ErrSessionInvalid = errors.New("сессия недействительна")
)

// translateRepoError переводит ошибки репозитория в ошибки сервисного слоя.
func translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, tax.ErrInvalid):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return err
	}
}
