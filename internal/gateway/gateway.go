// Пакет gateway — шлюз авторизации исполнительного слоя хранения.
// Выдаёт учётные данные поставщика на операцию (IssueCredentials) и
// записывает в журнал ресурса завершённые операции (RecordOperation).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/envelope"
	"github.com/bigkaa/goartstore/storage-gateway/internal/events"
	"github.com/bigkaa/goartstore/storage-gateway/internal/filetree"
	"github.com/bigkaa/goartstore/storage-gateway/internal/permission"
	"github.com/bigkaa/goartstore/storage-gateway/internal/provider"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
)

// Ошибки шлюза.
var (
	// ErrMalformed — в конверте нет обязательных полей.
	ErrMalformed = errors.New("некорректный запрос")
	// ErrResourceNotFound — ресурс не существует.
	ErrResourceNotFound = errors.New("ресурс не найден")
	// ErrResourceGone — ресурс удалён или отозван.
	ErrResourceGone = errors.New("ресурс удалён или отозван")
	// ErrFileNotFound — у файла нет ни одной версии.
	ErrFileNotFound = errors.New("файл не найден")
)

// CheckoutError — файл заблокирован другим пользователем.
// Action определяет внешний статус: удаление отличается от прочих записей.
type CheckoutError struct {
	Action string
	Err    error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

// UserSource — чтение сводок пользователей (обычно через кэш).
type UserSource interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Deps — зависимости шлюза.
type Deps struct {
	Codec     *envelope.Codec
	Resolver  *permission.Resolver
	Tree      *filetree.Tree
	Providers *provider.Registry
	Bus       *events.Bus
	Tx        repository.Transactor
	Resources repository.ResourceRepository
	Users     UserSource
	Audit     repository.AuditRepository
	Usage     repository.UsageRepository
}

// Config — параметры ответов шлюза.
type Config struct {
	// EnvelopeTTL — время жизни ответного конверта.
	EnvelopeTTL time.Duration
	// ContactDomain — домен синтетического адреса пользователя.
	ContactDomain string
	// CallbackURL — адрес отчёта об операции для ресурса.
	CallbackURL func(resourceID string) string
}

// Gateway — шлюз авторизации.
type Gateway struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт шлюз.
func New(deps Deps, cfg Config, logger *slog.Logger) *Gateway {
	return &Gateway{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "gateway")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// resource возвращает обслуживаемый ресурс.
func (g *Gateway) resource(ctx context.Context, id string) (*model.Resource, error) {
	res, err := g.deps.Resources.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if res.IsGone() {
		return nil, fmt.Errorf("%w: %s", ErrResourceGone, id)
	}
	return res, nil
}

// identify возвращает пользователя вызывающего; nil — анонимный.
// Неизвестный или неактивный пользователь считается неаутентифицированным.
func (g *Gateway) identify(ctx context.Context, caller permission.Caller) (*model.User, error) {
	if caller.IsAnonymous() {
		return nil, nil
	}
	u, err := g.deps.Users.GetByID(ctx, caller.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: пользователь %s не найден", permission.ErrUnauthenticated, caller.UserID)
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: пользователь %s неактивен", permission.ErrUnauthenticated, caller.UserID)
	}
	return u, nil
}

// checkoutError оборачивает блокировку файла с учётом действия.
func checkoutError(act string, err error) error {
	if errors.Is(err, filetree.ErrCheckedOut) {
		return &CheckoutError{Action: act, Err: err}
	}
	return err
}
