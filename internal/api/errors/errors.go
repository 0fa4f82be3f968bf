// Пакет errors: ошибки JSON API в едином формате.
// Формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы API с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bigkaa/paneldot/internal/domain/tax"
	"github.com/bigkaa/paneldot/internal/service"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody: структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail: детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Problems: нарушения проверки ступеней
	Problems []string `json:"problems,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode: HTTP статус-код, code: машиночитаемый код, message: описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	write(w, statusCode, errorDetail{Code: code, Message: message})
}

func write(w http.ResponseWriter, statusCode int, detail errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// ValidationError: 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound: 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized: 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden: 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict: 409 конфликт (дублирующаяся версия).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InternalError: 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromService записывает ответ для ошибки сервисного слоя.
// Возвращает false для неизвестных ошибок: их текст не раскрывается,
// отвечается 500, вызывающий логирует ошибку сам.
func FromService(w http.ResponseWriter, err error) bool {
	var verr *tax.ValidationError
	switch {
	case errors.As(err, &verr):
		write(w, http.StatusBadRequest, errorDetail{
			Code:     CodeValidationError,
			Message:  strings.Join(verr.Problems, "; "),
			Problems: verr.Problems,
		})
	case errors.Is(err, service.ErrValidation):
		ValidationError(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		Forbidden(w, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrNoTenant):
		NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		Conflict(w, err.Error())
	case errors.Is(err, service.ErrSessionInvalid):
		Unauthorized(w, err.Error())
	default:
		InternalError(w, "Внутренняя ошибка сервера")
		return false
	}
	return true
}
