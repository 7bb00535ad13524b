// Пакет errors — ответы с ошибками Storage Gateway.
// Единый формат: {"error": {"code": "...", "message": "...", "message_long": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeCheckedOut      = "FILE_CHECKED_OUT"
	CodeConflict        = "CONFLICT"
	CodeGone            = "GONE"
	CodeUnavailable     = "SERVICE_UNAVAILABLE"
	CodeInternalError   = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	MessageLong string `json:"message_long,omitempty"`
}

// WriteError записывает ответ ошибки.
// message — краткое описание, messageLong — пояснение для пользователя (может быть пустым).
func WriteError(w http.ResponseWriter, statusCode int, code, message, messageLong string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:        code,
			Message:     message,
			MessageLong: messageLong,
		},
	})
}

// ValidationError — 400.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message, "")
}

// Unauthorized — 401.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message, "")
}

// Forbidden — 403.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message, "")
}

// NotFound — 404.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message, "")
}

// CheckedOut — файл заблокирован. Статус зависит от операции: 403 для
// удаления, 405 для остальных записей.
func CheckedOut(w http.ResponseWriter, status int, messageLong string) {
	WriteError(w, status, CodeCheckedOut, "Файл заблокирован", messageLong)
}

// Conflict — 409.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message, "")
}

// Gone — 410, ресурс удалён или отозван.
func Gone(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGone, CodeGone, message, "")
}

// Unavailable — 503, зависимость временно недоступна.
func Unavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, message, "")
}

// InternalError — 500. Детали ошибки клиенту не раскрываются.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message, "")
}
