// waterbutler.go — endpoints обмена с исполнительным слоем хранения:
// выдача учётных данных и приём отчётов о завершённых операциях.
// Маршруты и привязка параметров — в generated (oapi-codegen chi-server).
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/samber/lo"

	"github.com/bigkaa/goartstore/storage-gateway/internal/action"
	apierrors "github.com/bigkaa/goartstore/storage-gateway/internal/api/errors"
	"github.com/bigkaa/goartstore/storage-gateway/internal/api/generated"
	"github.com/bigkaa/goartstore/storage-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/storage-gateway/internal/envelope"
	"github.com/bigkaa/goartstore/storage-gateway/internal/filetree"
	"github.com/bigkaa/goartstore/storage-gateway/internal/gateway"
	"github.com/bigkaa/goartstore/storage-gateway/internal/permission"
	"github.com/bigkaa/goartstore/storage-gateway/internal/provider"
)

// maxBodySize — предел тела запроса с конвертом.
const maxBodySize = 1 << 20

// Gateway — операции шлюза, вызываемые обработчиками.
type Gateway interface {
	IssueCredentials(ctx context.Context, ciphertext string, caller permission.Caller) (string, error)
	RecordOperation(ctx context.Context, resourceID, signed string) error
}

var _ generated.ServerInterface = (*WaterButlerHandler)(nil)

// WaterButlerHandler реализует generated.ServerInterface: выдача учётных
// данных, приём отчётов и отдача документа OpenAPI.
type WaterButlerHandler struct {
	gw     Gateway
	spec   *openapi3.T
	logger *slog.Logger
}

// NewWaterButlerHandler создаёт обработчик. spec может быть nil, тогда
// /openapi.json отвечает 404.
func NewWaterButlerHandler(gw Gateway, spec *openapi3.T, logger *slog.Logger) *WaterButlerHandler {
	return &WaterButlerHandler{
		gw:     gw,
		spec:   spec,
		logger: logger.With(slog.String("component", "waterbutler_handler")),
	}
}

// GetOpenAPISpec отдаёт проверенный документ OpenAPI.
func (h *WaterButlerHandler) GetOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	if h.spec == nil {
		apierrors.NotFound(w, "Документ OpenAPI не загружен")
		return
	}
	writeJSON(w, http.StatusOK, h.spec)
}

// GetCredentials выдаёт учётные данные по конверту из query-параметра payload.
func (h *WaterButlerHandler) GetCredentials(w http.ResponseWriter, r *http.Request, params generated.GetCredentialsParams) {
	h.issue(w, r, lo.FromPtr(params.Payload))
}

// PostCredentials выдаёт учётные данные. Query-параметр payload
// имеет приоритет над телом {"payload": ...}.
func (h *WaterButlerHandler) PostCredentials(w http.ResponseWriter, r *http.Request, params generated.PostCredentialsParams) {
	ct := lo.FromPtr(params.Payload)
	if ct == "" {
		body, err := decodePayload(w, r)
		if err != nil {
			apierrors.ValidationError(w, "Некорректное тело запроса")
			return
		}
		ct = body.Payload
	}
	h.issue(w, r, ct)
}

func (h *WaterButlerHandler) issue(w http.ResponseWriter, r *http.Request, ct string) {
	if ct == "" {
		apierrors.ValidationError(w, "Отсутствует payload")
		return
	}

	sealed, err := h.gw.IssueCredentials(r.Context(), ct, middleware.CallerFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generated.Sealed{Payload: sealed})
}

// RecordOperation принимает подписанный отчёт об операции над ресурсом nid.
func (h *WaterButlerHandler) RecordOperation(w http.ResponseWriter, r *http.Request, nid generated.Nid) {
	body, err := decodePayload(w, r)
	if err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}
	if body.Payload == "" {
		apierrors.ValidationError(w, "Отсутствует payload")
		return
	}

	if err := h.gw.RecordOperation(r.Context(), nid, body.Payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generated.StatusResponse{Status: "success"})
}

func decodePayload(w http.ResponseWriter, r *http.Request) (generated.PayloadBody, error) {
	var body generated.PayloadBody
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body)
	return body, err
}

// writeError переводит ошибку шлюза в HTTP-ответ.
func (h *WaterButlerHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var coErr *gateway.CheckoutError
	switch {
	case errors.As(err, &coErr):
		status := http.StatusMethodNotAllowed
		if coErr.Action == action.Delete {
			status = http.StatusForbidden
		}
		apierrors.CheckedOut(w, status,
			"Файл заблокирован другим пользователем. Операция станет доступна после снятия блокировки.")

	case errors.Is(err, envelope.ErrInvalid):
		// Содержимое конверта не логируется
		h.logger.Warn("Конверт отклонён", slog.String("remote_addr", r.RemoteAddr))
		apierrors.Forbidden(w, "Некорректный или просроченный конверт")

	case errors.Is(err, envelope.ErrUnavailable), errors.Is(err, provider.ErrUnavailable):
		h.logger.Error("Зависимость недоступна", slog.String("error", err.Error()))
		apierrors.Unavailable(w, "Сервис временно недоступен")

	case errors.Is(err, gateway.ErrMalformed),
		errors.Is(err, action.ErrUnknownAction),
		errors.Is(err, filetree.ErrVersionNotFound),
		errors.Is(err, filetree.ErrInvalidPath),
		errors.Is(err, filetree.ErrInvalidOperation):
		apierrors.ValidationError(w, err.Error())

	case errors.Is(err, provider.ErrMisconfigured):
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeValidationError,
			"Поставщик хранилища не настроен",
			"Подключённое хранилище не настроено полностью. Проверьте параметры подключения ресурса.")

	case errors.Is(err, permission.ErrUnauthenticated):
		apierrors.Unauthorized(w, "Требуется аутентификация")

	case errors.Is(err, permission.ErrForbidden), errors.Is(err, permission.ErrInsufficientScope):
		apierrors.Forbidden(w, err.Error())

	case errors.Is(err, filetree.ErrPrimaryFileProtected):
		apierrors.WriteError(w, http.StatusForbidden, apierrors.CodeForbidden,
			"Основной файл препринта защищён",
			"Основной файл препринта нельзя переместить или удалить.")

	case errors.Is(err, gateway.ErrResourceNotFound),
		errors.Is(err, provider.ErrProviderNotFound),
		errors.Is(err, gateway.ErrFileNotFound),
		errors.Is(err, filetree.ErrNotFound):
		apierrors.NotFound(w, err.Error())

	case errors.Is(err, filetree.ErrCheckedOut):
		apierrors.CheckedOut(w, http.StatusMethodNotAllowed, "")

	case errors.Is(err, filetree.ErrNameConflict):
		apierrors.Conflict(w, err.Error())

	case errors.Is(err, gateway.ErrResourceGone):
		apierrors.Gone(w, "Ресурс удалён")

	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
