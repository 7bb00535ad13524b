package model

// User — учётная запись пользователя (принадлежит внешней системе,
// шлюз только читает).
type User struct {
	// ID — короткий идентификатор пользователя
	ID string
	// Fullname — отображаемое имя
	Fullname string
	// Username — логин
	Username string
	// IsActive — учётная запись активна
	IsActive bool
}
