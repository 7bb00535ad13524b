// Пакет filetree — иерархия файлов и папок ресурса с неизменяемыми
// версиями, мягким удалением и блокировками.
package filetree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
)

// Ошибки дерева файлов.
var (
	ErrNotFound             = errors.New("узел не найден")
	ErrNameConflict         = errors.New("узел с таким именем уже существует")
	ErrCheckedOut           = errors.New("файл заблокирован другим пользователем")
	ErrPrimaryFileProtected = errors.New("основной файл ресурса защищён")
	ErrVersionNotFound      = errors.New("версия не найдена")
	ErrInvalidPath          = errors.New("некорректный путь")
	ErrInvalidOperation     = errors.New("недопустимая операция над узлом")
)

// Deps — хранилища, с которыми работает дерево.
type Deps struct {
	Tx        repository.Transactor
	Nodes     repository.NodeRepository
	Versions  repository.VersionRepository
	Resources repository.ResourceRepository
}

// Option — функциональная опция Tree.
type Option func(*Tree)

// WithClock задаёт источник времени.
func WithClock(now func() time.Time) Option {
	return func(t *Tree) { t.now = now }
}

// Tree — операции над деревом файлов. Каждая мутация выполняется
// в транзакции; при вызове внутри внешней транзакции — в точке
// сохранения.
type Tree struct {
	tx        repository.Transactor
	nodes     repository.NodeRepository
	versions  repository.VersionRepository
	resources repository.ResourceRepository
	logger    *slog.Logger
	now       func() time.Time
}

// New создаёт Tree.
func New(deps Deps, logger *slog.Logger, opts ...Option) *Tree {
	t := &Tree{
		tx:        deps.Tx,
		nodes:     deps.Nodes,
		versions:  deps.Versions,
		resources: deps.Resources,
		logger:    logger.With(slog.String("component", "filetree")),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Resolve находит или создаёт узел по материализованному пути.
// Промежуточные папки и сам узел создаются с OriginResolved.
// Гонка вставок разрешается повторным чтением.
func (t *Tree) Resolve(ctx context.Context, resourceID, provider, p string) (*model.FileNode, error) {
	segments, kind, err := ParsePath(p)
	if err != nil {
		return nil, err
	}

	var node *model.FileNode
	err = t.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := t.root(ctx, resourceID, provider)
		if err != nil {
			return err
		}
		for i, seg := range segments {
			k := model.KindFolder
			if i == len(segments)-1 {
				k = kind
			}
			if n, err = t.findOrCreate(ctx, n, seg, k); err != nil {
				return err
			}
		}
		node = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// Lookup находит живой узел по пути без создания.
func (t *Tree) Lookup(ctx context.Context, resourceID, provider, p string) (*model.FileNode, error) {
	segments, kind, err := ParsePath(p)
	if err != nil {
		return nil, err
	}

	n, err := t.nodes.GetRoot(ctx, resourceID, provider)
	if err != nil {
		return nil, notFound(err, p)
	}
	for i, seg := range segments {
		k := model.KindFolder
		if i == len(segments)-1 {
			k = kind
		}
		if n, err = t.nodes.FindChild(ctx, n.ID, seg, k); err != nil {
			return nil, notFound(err, p)
		}
	}
	return n, nil
}

// MaterializedPath восстанавливает путь узла по цепочке родителей.
func (t *Tree) MaterializedPath(ctx context.Context, n *model.FileNode) (string, error) {
	var parts []string
	for cur := n; !cur.IsRoot(); {
		parts = append(parts, cur.Name)
		parent, err := t.nodes.Get(ctx, *cur.ParentID)
		if err != nil {
			return "", notFound(err, *cur.ParentID)
		}
		cur = parent
	}
	if len(parts) == 0 {
		return "/", nil
	}

	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString("/")
		b.WriteString(parts[i])
	}
	if n.IsFolder() {
		b.WriteString("/")
	}
	return b.String(), nil
}

// CreateChild явно создаёт узел в папке parent. Живой тёзка — ErrNameConflict,
// кроме папки, созданной при разрешении пути: она становится явной.
// Надгробие с тем же именем и типом восстанавливается (тот же ID).
func (t *Tree) CreateChild(ctx context.Context, parent *model.FileNode, name string, kind model.NodeKind, actor string) (*model.FileNode, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: имя %q", ErrInvalidPath, name)
	}
	if !parent.IsFolder() || parent.IsDeleted {
		return nil, fmt.Errorf("%w: родитель %s не является живой папкой", ErrInvalidOperation, parent.ID)
	}

	var created *model.FileNode
	err := t.tx.RunInTx(ctx, func(ctx context.Context) error {
		live, err := t.nodes.FindChild(ctx, parent.ID, name, kind)
		switch {
		case err == nil && live.IsFolder() && live.Origin == model.OriginResolved:
			if err := t.nodes.Lock(ctx, live.ID); err != nil {
				return notFound(err, live.ID)
			}
			current, err := t.nodes.Get(ctx, live.ID)
			if err != nil {
				return notFound(err, live.ID)
			}
			// Параллельный create_folder успел первым
			if current.IsDeleted || current.Origin != model.OriginResolved {
				return fmt.Errorf("%w: %q", ErrNameConflict, name)
			}
			current.Origin = model.OriginCreated
			if err := t.nodes.Update(ctx, current); err != nil {
				return err
			}
			created = current
			return nil
		case err == nil:
			return fmt.Errorf("%w: %q", ErrNameConflict, name)
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		tomb, err := t.nodes.FindDeletedChild(ctx, parent.ID, name, kind)
		switch {
		case err == nil:
			tomb.IsDeleted = false
			tomb.DeletedBy = nil
			tomb.DeletedAt = nil
			tomb.Origin = model.OriginCreated
			if err := t.nodes.Update(ctx, tomb); err != nil {
				return conflictAsName(err, name)
			}
			created = tomb
			t.logger.Debug("Узел восстановлен из надгробия",
				slog.String("node_id", tomb.ID),
				slog.String("name", name),
			)
			return nil
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		n := t.newNode(parent, name, kind, model.OriginCreated)
		if err := t.nodes.Create(ctx, n); err != nil {
			return conflictAsName(err, name)
		}
		created = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Checkout блокирует файл за holder. Снимает блокировку внешняя система.
func (t *Tree) Checkout(ctx context.Context, file *model.FileNode, holder string) (*model.FileNode, error) {
	if holder == "" {
		return nil, fmt.Errorf("%w: блокировка требует пользователя", ErrInvalidOperation)
	}
	return t.updateLocked(ctx, file, func(n *model.FileNode) error {
		if n.CheckedOutByOther(holder) {
			return ErrCheckedOut
		}
		n.CheckoutUserID = &holder
		return nil
	})
}

func (t *Tree) updateLocked(ctx context.Context, file *model.FileNode, mutate func(*model.FileNode) error) (*model.FileNode, error) {
	if file.IsFolder() {
		return nil, fmt.Errorf("%w: блокировка папки", ErrInvalidOperation)
	}

	var updated *model.FileNode
	err := t.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := t.nodes.Lock(ctx, file.ID); err != nil {
			return notFound(err, file.ID)
		}
		current, err := t.nodes.Get(ctx, file.ID)
		if err != nil {
			return notFound(err, file.ID)
		}
		if err := mutate(current); err != nil {
			return err
		}
		if err := t.nodes.Update(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// root возвращает корень дерева провайдера, создавая его при отсутствии.
func (t *Tree) root(ctx context.Context, resourceID, provider string) (*model.FileNode, error) {
	n, err := t.nodes.GetRoot(ctx, resourceID, provider)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	root := &model.FileNode{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		Provider:   provider,
		Kind:       model.KindFolder,
		Origin:     model.OriginResolved,
	}
	err = t.tx.RunInTx(ctx, func(ctx context.Context) error {
		return t.nodes.Create(ctx, root)
	})
	if errors.Is(err, repository.ErrConflict) {
		return t.nodes.GetRoot(ctx, resourceID, provider)
	}
	if err != nil {
		return nil, err
	}
	return root, nil
}

func (t *Tree) findOrCreate(ctx context.Context, parent *model.FileNode, name string, kind model.NodeKind) (*model.FileNode, error) {
	n, err := t.nodes.FindChild(ctx, parent.ID, name, kind)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	n = t.newNode(parent, name, kind, model.OriginResolved)
	err = t.tx.RunInTx(ctx, func(ctx context.Context) error {
		return t.nodes.Create(ctx, n)
	})
	if errors.Is(err, repository.ErrConflict) {
		return t.nodes.FindChild(ctx, parent.ID, name, kind)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (t *Tree) newNode(parent *model.FileNode, name string, kind model.NodeKind, origin model.NodeOrigin) *model.FileNode {
	parentID := parent.ID
	return &model.FileNode{
		ID:         uuid.NewString(),
		ResourceID: parent.ResourceID,
		Provider:   parent.Provider,
		Kind:       kind,
		Name:       name,
		ParentID:   &parentID,
		Origin:     origin,
	}
}

// parseIdentifier разбирает номер версии (с 1).
func parseIdentifier(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func conflictAsName(err error, name string) error {
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: %q", ErrNameConflict, name)
	}
	return err
}
