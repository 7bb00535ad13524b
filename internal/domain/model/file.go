package model

import "time"

// NodeKind — тип узла дерева файлов.
type NodeKind string

const (
	KindFile   NodeKind = "file"
	KindFolder NodeKind = "folder"
)

// NodeOrigin — способ появления узла в дереве.
type NodeOrigin string

const (
	// OriginCreated — узел создан явной операцией (загрузка, создание папки).
	OriginCreated NodeOrigin = "created"
	// OriginResolved — узел материализован при первом обращении по пути.
	OriginResolved NodeOrigin = "resolved"
)

// FileNode — узел дерева файлов (файл или папка).
// Хранится в таблице file_nodes. Удаление мягкое: узел становится
// надгробием (IsDeleted), физически удаляются только пустые
// контейнеры с OriginResolved.
type FileNode struct {
	// ID — стабильный идентификатор узла (UUID)
	ID string
	// ResourceID — ресурс-владелец
	ResourceID string
	// Provider — тег провайдера хранения
	Provider string
	// Kind — file или folder
	Kind NodeKind
	// Name — имя узла (пустое для корня)
	Name string
	// ParentID — родительская папка (nil для корня)
	ParentID *string
	// Origin — способ появления узла
	Origin NodeOrigin
	// IsDeleted — узел удалён (надгробие)
	IsDeleted bool
	// DeletedBy — кто удалил
	DeletedBy *string
	// DeletedAt — когда удалён
	DeletedAt *time.Time
	// CheckoutUserID — держатель блокировки (только для файлов)
	CheckoutUserID *string
	// Tags — теги
	Tags []string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// IsRoot сообщает, что узел — корень дерева провайдера.
func (n *FileNode) IsRoot() bool {
	return n.ParentID == nil
}

// IsFolder сообщает, что узел — папка.
func (n *FileNode) IsFolder() bool {
	return n.Kind == KindFolder
}

// CheckedOutByOther проверяет, заблокирован ли файл кем-то кроме actor.
func (n *FileNode) CheckedOutByOther(actor string) bool {
	return n.CheckoutUserID != nil && *n.CheckoutUserID != actor
}

// Clone возвращает глубокую копию узла.
func (n *FileNode) Clone() *FileNode {
	c := *n
	c.ParentID = cloneString(n.ParentID)
	c.DeletedBy = cloneString(n.DeletedBy)
	c.CheckoutUserID = cloneString(n.CheckoutUserID)
	if n.DeletedAt != nil {
		t := *n.DeletedAt
		c.DeletedAt = &t
	}
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	return &c
}

// FileVersion — неизменяемая версия содержимого файла.
// Хранится в таблице file_versions, первичный ключ (file_id, identifier).
type FileVersion struct {
	// FileID — файл-владелец
	FileID string
	// Identifier — порядковый номер версии, начиная с 1
	Identifier int
	// Size — размер содержимого в байтах
	Size int64
	// ContentType — MIME-тип
	ContentType string
	// CreatedAt — время создания версии
	CreatedAt time.Time
	// ModifiedAt — время изменения по данным провайдера
	ModifiedAt *time.Time
	// Checksums — контрольные суммы (md5, sha256)
	Checksums map[string]string
	// Location — непрозрачное расположение содержимого (service, region, object)
	Location map[string]string
	// CreatorID — автор версии
	CreatorID *string
}

// Clone возвращает глубокую копию версии.
func (v *FileVersion) Clone() *FileVersion {
	c := *v
	c.CreatorID = cloneString(v.CreatorID)
	if v.ModifiedAt != nil {
		t := *v.ModifiedAt
		c.ModifiedAt = &t
	}
	c.Checksums = cloneMap(v.Checksums)
	c.Location = cloneMap(v.Location)
	return &c
}

// VersionInput — метаданные новой версии.
type VersionInput struct {
	Size        int64
	ContentType string
	ModifiedAt  *time.Time
	Checksums   map[string]string
	Location    map[string]string
}

// VersionPatch — допустимое изменение описательных полей версии.
// Размер, существующие контрольные суммы и номер версии не меняются.
type VersionPatch struct {
	ContentType string
	ModifiedAt  *time.Time
	Checksums   map[string]string
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
