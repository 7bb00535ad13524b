package provider

import (
	"context"
	"fmt"
	"maps"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// Stored — поставщик по умолчанию: передаёт учётные данные и настройки,
// сохранённые внешней системой для ресурса, без изменений.
type Stored struct{}

// Name возвращает пустой тег: Stored обслуживает любой поставщик.
func (Stored) Name() string { return "" }

// SerializeCredentials возвращает сохранённые учётные данные.
func (Stored) SerializeCredentials(_ context.Context, settings *model.ProviderSettings) (map[string]any, error) {
	if len(settings.Credentials) == 0 {
		return nil, fmt.Errorf("%w: у %s нет учётных данных", ErrMisconfigured, settings.Provider)
	}
	return maps.Clone(settings.Credentials), nil
}

// SerializeSettings возвращает сохранённые настройки.
func (Stored) SerializeSettings(_ context.Context, settings *model.ProviderSettings, _ *model.FileVersion) (map[string]any, error) {
	out := maps.Clone(settings.Settings)
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
