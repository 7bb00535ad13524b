// Пакет action — действия исполнительного слоя: требуемый уровень
// доступа и классификация завершённых операций для журнала.
package action

import (
	"errors"
	"fmt"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// ErrUnknownAction — действие не входит в таблицу допустимых.
var ErrUnknownAction = errors.New("неизвестное действие")

// Действия запросов учётных данных.
const (
	Metadata     = "metadata"
	Revisions    = "revisions"
	Download     = "download"
	Render       = "render"
	Export       = "export"
	CopyFrom     = "copyfrom"
	CreateFolder = "create_folder"
	Upload       = "upload"
	Delete       = "delete"
	Copy         = "copy"
	Move         = "move"
	CopyTo       = "copyto"
	MoveTo       = "moveto"
	MoveFrom     = "movefrom"
)

var requiredPermission = map[string]model.Permission{
	Metadata:     model.PermissionRead,
	Revisions:    model.PermissionRead,
	Download:     model.PermissionRead,
	Render:       model.PermissionRead,
	Export:       model.PermissionRead,
	CopyFrom:     model.PermissionRead,
	CreateFolder: model.PermissionWrite,
	Upload:       model.PermissionWrite,
	Delete:       model.PermissionWrite,
	Copy:         model.PermissionWrite,
	Move:         model.PermissionWrite,
	CopyTo:       model.PermissionWrite,
	MoveTo:       model.PermissionWrite,
	MoveFrom:     model.PermissionWrite,
}

// RequiredPermission возвращает уровень доступа, необходимый для действия.
func RequiredPermission(act string) (model.Permission, error) {
	p, ok := requiredPermission[act]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, act)
	}
	return p, nil
}

// IsContentRead сообщает, что действие читает содержимое конкретного файла.
func IsContentRead(act string) bool {
	return act == Download || act == Render || act == Export
}
