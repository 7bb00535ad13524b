package model

// Permission — уровень доступа участника к ресурсу.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

// rank возвращает порядковый номер уровня доступа (0 — неизвестный).
func (p Permission) rank() int {
	switch p {
	case PermissionRead:
		return 1
	case PermissionWrite:
		return 2
	case PermissionAdmin:
		return 3
	default:
		return 0
	}
}

// Covers проверяет, что уровень p не ниже required.
func (p Permission) Covers(required Permission) bool {
	return p.rank() > 0 && p.rank() >= required.rank()
}

// IsValid проверяет, что уровень доступа известен.
func (p Permission) IsValid() bool {
	return p.rank() > 0
}
