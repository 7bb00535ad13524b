// Пакет memory — хранилище метаданных в памяти (SG_STORE=memory и тесты).
// Реализует интерфейсы пакета repository с теми же ограничениями
// уникальности, что и схема PostgreSQL. Транзакции сериализуются,
// откат восстанавливает снимок состояния.
package memory

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
)

type txKey struct{}

// Store — хранилище в памяти.
type Store struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	resources    map[string]*model.Resource
	contributors map[string]map[string]model.Permission
	settings     map[settingsKey]*model.ProviderSettings
	users        map[string]*model.User
	nodes        map[string]*model.FileNode
	versions     map[string][]*model.FileVersion
	audit        []*model.AuditLogEntry
	usage        map[string]*model.ResourceUsage
}

type settingsKey struct {
	resourceID string
	provider   string
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{state: &state{
		resources:    map[string]*model.Resource{},
		contributors: map[string]map[string]model.Permission{},
		settings:     map[settingsKey]*model.ProviderSettings{},
		users:        map[string]*model.User{},
		nodes:        map[string]*model.FileNode{},
		versions:     map[string][]*model.FileVersion{},
		usage:        map[string]*model.ResourceUsage{},
	}}
}

// lock захватывает мьютекс, если вызов не внутри транзакции этого Store.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTx выполняет fn атомарно. Вложенный вызов откатывает только свои
// изменения.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	unlock := s.lock(ctx)
	defer unlock()

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (st *state) clone() *state {
	c := &state{
		resources:    make(map[string]*model.Resource, len(st.resources)),
		contributors: make(map[string]map[string]model.Permission, len(st.contributors)),
		settings:     make(map[settingsKey]*model.ProviderSettings, len(st.settings)),
		users:        make(map[string]*model.User, len(st.users)),
		nodes:        make(map[string]*model.FileNode, len(st.nodes)),
		versions:     make(map[string][]*model.FileVersion, len(st.versions)),
		audit:        append([]*model.AuditLogEntry(nil), st.audit...),
		usage:        make(map[string]*model.ResourceUsage, len(st.usage)),
	}
	for k, v := range st.resources {
		r := *v
		c.resources[k] = &r
	}
	for k, v := range st.contributors {
		c.contributors[k] = lo.Assign(v)
	}
	for k, v := range st.settings {
		c.settings[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.nodes {
		c.nodes[k] = v.Clone()
	}
	for k, v := range st.versions {
		c.versions[k] = lo.Map(v, func(fv *model.FileVersion, _ int) *model.FileVersion { return fv.Clone() })
	}
	for k, v := range st.usage {
		u := *v
		c.usage[k] = &u
	}
	return c
}

// Resources возвращает репозиторий ресурсов.
func (s *Store) Resources() repository.ResourceRepository { return &resources{s: s} }

// Users возвращает репозиторий пользователей.
func (s *Store) Users() repository.UserRepository { return &users{s: s} }

// Nodes возвращает репозиторий узлов дерева.
func (s *Store) Nodes() repository.NodeRepository { return &nodes{s: s} }

// Versions возвращает репозиторий версий.
func (s *Store) Versions() repository.VersionRepository { return &versions{s: s} }

// Audit возвращает репозиторий журнала.
func (s *Store) Audit() repository.AuditRepository { return &audit{s: s} }

// Usage возвращает репозиторий счётчиков.
func (s *Store) Usage() repository.UsageRepository { return &usage{s: s} }

// --- Наполнение данными внешней системы ---

// PutResource сохраняет ресурс.
func (s *Store) PutResource(r *model.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *r
	s.state.resources[r.ID] = &c
}

// Grant выдаёт пользователю уровень доступа к ресурсу.
func (s *Store) Grant(resourceID, userID string, p model.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.contributors[resourceID] == nil {
		s.state.contributors[resourceID] = map[string]model.Permission{}
	}
	s.state.contributors[resourceID][userID] = p
}

// PutProviderSettings сохраняет настройки провайдера.
func (s *Store) PutProviderSettings(ps *model.ProviderSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *ps
	s.state.settings[settingsKey{ps.ResourceID, ps.Provider}] = &c
}

// PutUser сохраняет пользователя.
func (s *Store) PutUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.state.users[u.ID] = &c
}

// --- resources ---

type resources struct{ s *Store }

func (r *resources) GetByID(ctx context.Context, id string) (*model.Resource, error) {
	defer r.s.lock(ctx)()
	res, ok := r.s.state.resources[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *res
	return &c, nil
}

func (r *resources) ContributorPermission(ctx context.Context, resourceID, userID string) (model.Permission, bool, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.state.contributors[resourceID][userID]
	return p, ok, nil
}

func (r *resources) GetProviderSettings(ctx context.Context, resourceID, provider string) (*model.ProviderSettings, error) {
	defer r.s.lock(ctx)()
	ps, ok := r.s.state.settings[settingsKey{resourceID, provider}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *ps
	return &c, nil
}

// --- users ---

type users struct{ s *Store }

func (u *users) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer u.s.lock(ctx)()
	usr, ok := u.s.state.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *usr
	return &c, nil
}
