package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/storage-gateway/internal/action"
	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// Ошибки авторизации.
var (
	// ErrUnauthenticated — анонимному вызывающему отказано.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrForbidden — аутентифицированному вызывающему отказано.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrInsufficientScope — scope bearer-токена не покрывает действие.
	ErrInsufficientScope = errors.New("недостаточный scope токена")
)

// Graph — граф ресурсов и прав участников.
type Graph interface {
	GetByID(ctx context.Context, id string) (*model.Resource, error)
	ContributorPermission(ctx context.Context, resourceID, userID string) (model.Permission, bool, error)
}

// Request — контекст одной проверки.
type Request struct {
	Caller   Caller
	Resource *model.Resource
	Action   string
	Required model.Permission
}

// Outcome — результат шага конвейера.
type Outcome int

const (
	// Continue — решение не принято, переходим к следующему шагу.
	Continue Outcome = iota
	// Grant — доступ разрешён, конвейер останавливается.
	Grant
)

// Check — именованный шаг конвейера. Ошибка останавливает конвейер с отказом.
type Check struct {
	Name string
	Run  func(ctx context.Context, req *Request) (Outcome, error)
}

// Resolver проверяет права упорядоченным конвейером шагов:
// scope → direct → ancestor_fallback. Первый отказ или первое
// разрешение завершает проверку; если ни один шаг не разрешил,
// доступ запрещается.
type Resolver struct {
	graph    Graph
	pipeline []Check
	logger   *slog.Logger
}

// NewResolver создаёт Resolver со стандартным конвейером.
func NewResolver(graph Graph, logger *slog.Logger) *Resolver {
	r := &Resolver{
		graph:  graph,
		logger: logger.With(slog.String("component", "permission")),
	}
	r.pipeline = []Check{
		{Name: "scope", Run: checkScope},
		{Name: "direct", Run: r.checkDirect},
		{Name: "ancestor_fallback", Run: r.checkAncestors},
	}
	return r
}

// Pipeline возвращает имена шагов в порядке выполнения.
func (r *Resolver) Pipeline() []string {
	names := make([]string, len(r.pipeline))
	for i, c := range r.pipeline {
		names[i] = c.Name
	}
	return names
}

// Authorize проверяет, может ли caller выполнить act над resource.
func (r *Resolver) Authorize(ctx context.Context, caller Caller, resource *model.Resource, act string) error {
	required, err := action.RequiredPermission(act)
	if err != nil {
		return err
	}

	req := &Request{Caller: caller, Resource: resource, Action: act, Required: required}
	for _, check := range r.pipeline {
		outcome, err := check.Run(ctx, req)
		if err != nil {
			r.logger.Debug("Доступ запрещён",
				slog.String("check", check.Name),
				slog.String("resource_id", resource.ID),
				slog.String("action", act),
				slog.String("error", err.Error()),
			)
			return err
		}
		if outcome == Grant {
			return nil
		}
	}

	if caller.IsAnonymous() {
		return ErrUnauthenticated
	}
	return fmt.Errorf("%w: %s на %s", ErrForbidden, act, resource.ID)
}

// checkScope: bearer-токен должен нести scope, покрывающий требуемый
// уровень. Чтение публичного ресурса scope не требует.
func checkScope(_ context.Context, req *Request) (Outcome, error) {
	if req.Caller.Method != MethodBearer {
		return Continue, nil
	}
	if req.Required == model.PermissionRead && req.Resource.IsPublic {
		return Continue, nil
	}

	switch req.Required {
	case model.PermissionRead:
		if req.Caller.HasScope(ScopeFilesRead) || req.Caller.HasScope(ScopeFilesWrite) {
			return Continue, nil
		}
	case model.PermissionWrite:
		if req.Caller.HasScope(ScopeFilesWrite) {
			return Continue, nil
		}
	}
	return Continue, fmt.Errorf("%w: требуется %s", ErrInsufficientScope, req.Required)
}

// checkDirect: чтение — публичный ресурс или участник с read,
// запись — участник с write.
func (r *Resolver) checkDirect(ctx context.Context, req *Request) (Outcome, error) {
	if req.Required == model.PermissionRead && req.Resource.IsPublic {
		return Grant, nil
	}
	if req.Caller.IsAnonymous() {
		return Continue, nil
	}

	ok, err := r.hasPermission(ctx, req.Resource.ID, req.Caller.UserID, req.Required)
	if err != nil {
		return Continue, err
	}
	if ok {
		return Grant, nil
	}
	return Continue, nil
}

// checkAncestors поднимается по цепочке родительских ресурсов и ищет
// право записи. Применяется только к copyfrom и к загрузке/перемещению
// в регистрации.
func (r *Resolver) checkAncestors(ctx context.Context, req *Request) (Outcome, error) {
	if req.Caller.IsAnonymous() || !fallbackApplies(req.Resource, req.Action) {
		return Continue, nil
	}

	visited := map[string]bool{req.Resource.ID: true}
	parentID := req.Resource.ParentID
	for parentID != nil && !visited[*parentID] {
		visited[*parentID] = true

		ancestor, err := r.graph.GetByID(ctx, *parentID)
		if err != nil {
			// Разрыв цепочки — отказ, а не ошибка.
			r.logger.Debug("Предок ресурса недоступен",
				slog.String("resource_id", *parentID),
				slog.String("error", err.Error()),
			)
			return Continue, nil
		}

		ok, err := r.hasPermission(ctx, ancestor.ID, req.Caller.UserID, model.PermissionWrite)
		if err != nil {
			return Continue, err
		}
		if ok {
			return Grant, nil
		}
		parentID = ancestor.ParentID
	}
	return Continue, nil
}

func (r *Resolver) hasPermission(ctx context.Context, resourceID, userID string, required model.Permission) (bool, error) {
	perm, found, err := r.graph.ContributorPermission(ctx, resourceID, userID)
	if err != nil {
		return false, fmt.Errorf("проверка прав участника: %w", err)
	}
	return found && perm.Covers(required), nil
}

var registrationFallbackActions = map[string]bool{
	action.Upload:   true,
	action.Move:     true,
	action.MoveTo:   true,
	action.MoveFrom: true,
}

func fallbackApplies(resource *model.Resource, act string) bool {
	if act == action.CopyFrom {
		return true
	}
	return resource.Type == model.ResourceRegistration && registrationFallbackActions[act]
}
