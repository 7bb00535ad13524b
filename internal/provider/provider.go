// Пакет provider — таблица поставщиков хранения. Каждый поставщик
// сериализует учётные данные и настройки для исполнительного слоя.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// Ошибки поставщиков.
var (
	// ErrProviderNotFound — поставщик не подключён к ресурсу.
	ErrProviderNotFound = errors.New("поставщик не подключён к ресурсу")
	// ErrMisconfigured — настройки поставщика неполны.
	ErrMisconfigured = errors.New("поставщик настроен некорректно")
	// ErrUnavailable — поставщик временно не может выдать учётные данные.
	ErrUnavailable = errors.New("поставщик недоступен")
)

// StorageProvider — поставщик хранения.
type StorageProvider interface {
	// Name возвращает тег поставщика ("osfstorage", "s3", ...).
	Name() string
	// SerializeCredentials возвращает учётные данные для исполнительного слоя.
	SerializeCredentials(ctx context.Context, settings *model.ProviderSettings) (map[string]any, error)
	// SerializeSettings возвращает настройки; version задаётся для чтения
	// конкретной версии файла.
	SerializeSettings(ctx context.Context, settings *model.ProviderSettings, version *model.FileVersion) (map[string]any, error)
}

// Registry — поставщики по тегу. Незарегистрированные теги
// обслуживает fallback.
type Registry struct {
	providers map[string]StorageProvider
	fallback  StorageProvider
}

// NewRegistry создаёт реестр.
func NewRegistry(fallback StorageProvider, providers ...StorageProvider) *Registry {
	r := &Registry{
		providers: make(map[string]StorageProvider, len(providers)),
		fallback:  fallback,
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get возвращает поставщика по тегу.
func (r *Registry) Get(name string) StorageProvider {
	if p, ok := r.providers[name]; ok {
		return p
	}
	return r.fallback
}

// Serialize возвращает учётные данные и настройки поставщика ресурса.
func (r *Registry) Serialize(ctx context.Context, settings *model.ProviderSettings, version *model.FileVersion) (map[string]any, map[string]any, error) {
	p := r.Get(settings.Provider)
	if p == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrProviderNotFound, settings.Provider)
	}

	creds, err := p.SerializeCredentials(ctx, settings)
	if err != nil {
		return nil, nil, fmt.Errorf("учётные данные %s: %w", settings.Provider, err)
	}
	sett, err := p.SerializeSettings(ctx, settings, version)
	if err != nil {
		return nil, nil, fmt.Errorf("настройки %s: %w", settings.Provider, err)
	}
	return creds, sett, nil
}
