// Пакет permission — проверка прав вызывающего на действие над ресурсом:
// scope токена, прямые права участника и подъём по цепочке предков.
package permission

import "slices"

// Method — способ аутентификации вызывающего.
type Method string

const (
	MethodAnonymous Method = "anonymous"
	MethodSession   Method = "session"
	MethodBearer    Method = "bearer"
)

// Scopes bearer-токенов.
const (
	ScopeFilesRead  = "files:read"
	ScopeFilesWrite = "files:write"
)

// Caller — идентичность вызывающего.
type Caller struct {
	// UserID — идентификатор пользователя (пустой для анонимных)
	UserID string
	// Method — способ аутентификации
	Method Method
	// Scopes — scopes bearer-токена
	Scopes []string
}

// Anonymous возвращает анонимного вызывающего.
func Anonymous() Caller {
	return Caller{Method: MethodAnonymous}
}

// IsAnonymous сообщает, что вызывающий не аутентифицирован.
func (c Caller) IsAnonymous() bool {
	return c.UserID == "" || c.Method == MethodAnonymous
}

// HasScope проверяет наличие scope.
func (c Caller) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}
