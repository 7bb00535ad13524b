package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// OSFStorageName — тег встроенного хранилища.
const OSFStorageName = "osfstorage"

// OSFStorage — встроенное хранилище. Учётные данные общие для процесса,
// настройки содержат сервис, регион и расположение версии.
type OSFStorage struct {
	service     string
	region      string
	credentials map[string]any
}

// NewOSFStorage создаёт поставщика. rawCredentials — JSON-объект
// (SG_OSFSTORAGE_CREDENTIALS).
func NewOSFStorage(service, region, rawCredentials string) (*OSFStorage, error) {
	var creds map[string]any
	if rawCredentials != "" {
		if err := json.Unmarshal([]byte(rawCredentials), &creds); err != nil {
			return nil, fmt.Errorf("разбор учётных данных osfstorage: %w", err)
		}
	}
	return &OSFStorage{service: service, region: region, credentials: creds}, nil
}

// Name возвращает "osfstorage".
func (o *OSFStorage) Name() string { return OSFStorageName }

// SerializeCredentials возвращает копию общих учётных данных.
func (o *OSFStorage) SerializeCredentials(_ context.Context, _ *model.ProviderSettings) (map[string]any, error) {
	if o.credentials == nil {
		return nil, fmt.Errorf("%w: учётные данные osfstorage не заданы", ErrUnavailable)
	}
	return maps.Clone(o.credentials), nil
}

// SerializeSettings возвращает настройки хранилища ресурса.
func (o *OSFStorage) SerializeSettings(_ context.Context, settings *model.ProviderSettings, version *model.FileVersion) (map[string]any, error) {
	out := map[string]any{
		"storage": map[string]any{
			"service": o.service,
			"region":  o.region,
		},
		"nid": settings.ResourceID,
	}
	for k, v := range settings.Settings {
		if _, reserved := out[k]; !reserved {
			out[k] = v
		}
	}

	if version != nil {
		out["version"] = strconv.Itoa(version.Identifier)
		location := make(map[string]any, len(version.Location))
		for k, v := range version.Location {
			location[k] = v
		}
		out["location"] = location
	}
	return out, nil
}
