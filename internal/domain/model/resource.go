package model

import "time"

// ResourceType — тип ресурса (проект, компонент, препринт, регистрация).
type ResourceType string

const (
	ResourceProject           ResourceType = "project"
	ResourceComponent         ResourceType = "component"
	ResourcePreprint          ResourceType = "preprint"
	ResourceRegistration      ResourceType = "registration"
	ResourceDraftRegistration ResourceType = "draft_registration"
)

// Resource — контейнер файлов (проект, препринт, регистрация).
// Хранится в таблице resources, принадлежит внешней системе:
// шлюз только читает ресурсы.
type Resource struct {
	// ID — короткий идентификатор ресурса (nid)
	ID string
	// ParentID — родительский ресурс (nil для корневых)
	ParentID *string
	// Type — тип ресурса
	Type ResourceType
	// Title — название
	Title string
	// IsPublic — ресурс доступен на чтение всем
	IsPublic bool
	// IsDeleted — ресурс удалён
	IsDeleted bool
	// IsRetracted — регистрация отозвана
	IsRetracted bool
	// PrimaryFileID — основной файл препринта (FileNode.ID)
	PrimaryFileID *string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// IsGone сообщает, что ресурс больше не обслуживается (удалён или отозван).
func (r *Resource) IsGone() bool {
	return r.IsDeleted || r.IsRetracted
}

// ProviderSettings — настройки провайдера хранения для ресурса.
// Хранится в таблице provider_settings.
type ProviderSettings struct {
	// ResourceID — ресурс
	ResourceID string
	// Provider — тег провайдера (osfstorage, s3, ...)
	Provider string
	// Credentials — учётные данные для исполнительного слоя
	Credentials map[string]any
	// Settings — настройки провайдера (бакет, папка, ...)
	Settings map[string]any
}

// ResourceUsage — денормализованные счётчики использования хранилища.
type ResourceUsage struct {
	ResourceID   string
	BytesUsed    int64
	VersionCount int64
	LogCount     int64
	UpdatedAt    time.Time
}

// UsageDelta — приращение счётчиков использования.
type UsageDelta struct {
	Bytes    int64
	Versions int64
	Logs     int64
}

// IsZero сообщает, что приращение пустое.
func (d UsageDelta) IsZero() bool {
	return d.Bytes == 0 && d.Versions == 0 && d.Logs == 0
}
