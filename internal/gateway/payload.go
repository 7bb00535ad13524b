package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/goartstore/storage-gateway/internal/action"
	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/envelope"
)

// validate — общий валидатор входящих конвертов.
var validate = validator.New()

// credentialsRequest — содержимое конверта запроса учётных данных.
type credentialsRequest struct {
	ResourceID string     `json:"nid" validate:"required"`
	Action     string     `json:"action" validate:"required"`
	Provider   string     `json:"provider" validate:"required"`
	Path       string     `json:"path"`
	Version    flexString `json:"version"`
}

// operationPayload — отчёт исполнительного слоя о завершённой операции.
type operationPayload struct {
	Action      string    `json:"action" validate:"required,oneof=create update delete create_folder move copy download_file download_zip"`
	Provider    string    `json:"provider"`
	Auth        authInfo  `json:"auth"`
	Metadata    *endpoint `json:"metadata"`
	Source      *endpoint `json:"source"`
	Destination *endpoint `json:"destination"`
	Errors      []string  `json:"errors"`
	Email       bool      `json:"email"`
}

// providerName — поставщик операции: явный или из описания узла.
func (p *operationPayload) providerName() string {
	switch {
	case p.Provider != "":
		return p.Provider
	case p.Metadata != nil:
		return p.Metadata.Provider
	case p.Destination != nil:
		return p.Destination.Provider
	}
	return ""
}

type authInfo struct {
	ID string `json:"id"`
}

// endpoint — файл или папка в отчёте об операции.
type endpoint struct {
	ResourceID   string            `json:"nid"`
	Provider     string            `json:"provider" validate:"required"`
	Materialized string            `json:"materialized" validate:"required"`
	Name         string            `json:"name"`
	Kind         string            `json:"kind" validate:"omitempty,oneof=file folder"`
	Size         int64             `json:"size" validate:"gte=0"`
	ContentType  string            `json:"contentType"`
	Modified     flexTime          `json:"modified"`
	Hashes       map[string]string `json:"hashes"`
	Location     map[string]string `json:"location"`
}

// location — источник или назначение для классификатора.
func (e *endpoint) location(defaultResource string) *action.Location {
	if e == nil {
		return nil
	}
	return &action.Location{
		Provider:   e.Provider,
		ResourceID: e.resourceID(defaultResource),
		Path:       e.Materialized,
		Kind:       e.kind(),
	}
}

func (e *endpoint) resourceID(defaultResource string) string {
	if e.ResourceID != "" {
		return e.ResourceID
	}
	return defaultResource
}

func (e *endpoint) kind() model.NodeKind {
	if e.Kind == string(model.KindFolder) || strings.HasSuffix(e.Materialized, "/") {
		return model.KindFolder
	}
	return model.KindFile
}

// name возвращает имя узла: явное или последний сегмент пути.
func (e *endpoint) name() string {
	if e.Name != "" {
		return e.Name
	}
	trimmed := strings.TrimSuffix(e.Materialized, "/")
	return trimmed[strings.LastIndex(trimmed, "/")+1:]
}

// path возвращает материализованный путь с суффиксом, соответствующим типу.
func (e *endpoint) path() string {
	if e.kind() == model.KindFolder && !strings.HasSuffix(e.Materialized, "/") {
		return e.Materialized + "/"
	}
	return e.Materialized
}

func (e *endpoint) versionInput() model.VersionInput {
	return model.VersionInput{
		Size:        e.Size,
		ContentType: e.ContentType,
		ModifiedAt:  e.Modified.ptr(),
		Checksums:   e.Hashes,
		Location:    e.Location,
	}
}

func (e *endpoint) versionPatch() model.VersionPatch {
	return model.VersionPatch{
		ContentType: e.ContentType,
		ModifiedAt:  e.Modified.ptr(),
		Checksums:   e.Hashes,
	}
}

// decodeClaims переносит claims конверта в структуру и проверяет теги.
func decodeClaims(claims envelope.Claims, dst any) error {
	raw, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(dst); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// validateOperation — правила, не выразимые тегами.
func validateOperation(p *operationPayload) error {
	switch {
	case action.IsDownload(p.Action):
		return nil
	case p.Action == action.OpMove || p.Action == action.OpCopy:
		if p.Source == nil || p.Destination == nil {
			return fmt.Errorf("%w: %s требует source и destination", ErrMalformed, p.Action)
		}
		if p.Source.ResourceID == "" || p.Source.Name == "" {
			return fmt.Errorf("%w: source требует nid и name", ErrMalformed)
		}
		if p.Destination.ResourceID == "" || p.Destination.Name == "" {
			return fmt.Errorf("%w: destination требует nid и name", ErrMalformed)
		}
	default:
		if p.Metadata == nil {
			return fmt.Errorf("%w: %s требует metadata", ErrMalformed, p.Action)
		}
	}
	return nil
}

// formatValidationError сообщает первое нарушенное правило.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%w: поле %s не прошло проверку '%s'", ErrMalformed, e.Namespace(), e.Tag())
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// flexString принимает строку или число ("version": 3 и "version": "3").
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("ожидалась строка или число: %s", b)
	}
	if i, err := num.Int64(); err == nil {
		*s = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*s = flexString(num.String())
	return nil
}

// flexTime — необязательное время изменения; нераспознанный формат
// игнорируется.
type flexTime struct {
	t *time.Time
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", time.RFC1123Z, time.RFC1123}

func (ft *flexTime) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil || str == "" {
		ft.t = nil
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			utc := t.UTC()
			ft.t = &utc
			return nil
		}
	}
	ft.t = nil
	return nil
}

func (ft flexTime) ptr() *time.Time { return ft.t }
