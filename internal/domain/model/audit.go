package model

import "time"

// AuditLogEntry — запись журнала действий над файлами ресурса.
// Хранится в таблице audit_log, только добавление.
type AuditLogEntry struct {
	// ID — UUID записи
	ID string
	// ResourceID — ресурс, в журнал которого добавлена запись
	ResourceID string
	// ActorID — инициатор (nil для анонимных операций)
	ActorID *string
	// Action — классифицированное действие (added, renamed, ...)
	Action string
	// Params — параметры действия (провайдер, пути, источник, назначение)
	Params map[string]any
	// CreatedAt — время записи
	CreatedAt time.Time
}
