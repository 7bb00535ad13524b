package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/storage-gateway/internal/config"
	"github.com/bigkaa/goartstore/storage-gateway/internal/database"
	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("gateway_test"),
		postgres.WithUsername("gateway"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("SG_DB_HOST", host)
	t.Setenv("SG_DB_PORT", port.Port())
	t.Setenv("SG_DB_NAME", "gateway_test")
	t.Setenv("SG_DB_USER", "gateway")
	t.Setenv("SG_DB_PASSWORD", "test-password")
	t.Setenv("SG_SESSION_SECRET", "test")
	t.Setenv("SG_ENVELOPE_SIGNING_SECRET", "test")
	t.Setenv("SG_ENVELOPE_PASSPHRASE", "test")
	t.Setenv("SG_ENVELOPE_SALT", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	seed(t, pool)
	return pool
}

// seed заполняет таблицы внешней системы.
func seed(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`INSERT INTO resources (id, type, title, is_public) VALUES ('root1', 'project', 'Root', false)`,
		`INSERT INTO resources (id, parent_id, type, title, is_public) VALUES ('reg01', 'root1', 'registration', 'Reg', true)`,
		`INSERT INTO users (id, fullname, username) VALUES ('u1', 'Ада Лавлейс', 'ada')`,
		`INSERT INTO resource_contributors (resource_id, user_id, permission) VALUES ('root1', 'u1', 'write')`,
		`INSERT INTO provider_settings (resource_id, provider, credentials, settings)
			VALUES ('root1', 's3', '{"token": "t"}', '{"bucket": "b"}')`,
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func newNode(resourceID string, parent *string, kind model.NodeKind, name string) *model.FileNode {
	return &model.FileNode{
		ID:         uuid.New().String(),
		ResourceID: resourceID,
		Provider:   "osfstorage",
		Kind:       kind,
		Name:       name,
		ParentID:   parent,
		Origin:     model.OriginCreated,
	}
}

func TestResourceRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewResourceRepository(pool)

	reg, err := repo.GetByID(ctx, "reg01")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reg.Type != model.ResourceRegistration || reg.ParentID == nil || *reg.ParentID != "root1" || !reg.IsPublic {
		t.Errorf("неожиданный ресурс: %+v", reg)
	}
	if _, err := repo.GetByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}

	perm, found, err := repo.ContributorPermission(ctx, "root1", "u1")
	if err != nil || !found || perm != model.PermissionWrite {
		t.Errorf("ContributorPermission = %q, %v, %v", perm, found, err)
	}
	if _, found, _ := repo.ContributorPermission(ctx, "reg01", "u1"); found {
		t.Error("u1 не участник reg01")
	}

	ps, err := repo.GetProviderSettings(ctx, "root1", "s3")
	if err != nil {
		t.Fatalf("GetProviderSettings: %v", err)
	}
	if ps.Credentials["token"] != "t" || ps.Settings["bucket"] != "b" {
		t.Errorf("настройки = %+v", ps)
	}

	u, err := NewUserRepository(pool).GetByID(ctx, "u1")
	if err != nil || u.Fullname != "Ада Лавлейс" || !u.IsActive {
		t.Errorf("GetByID(u1) = %+v, %v", u, err)
	}
}

func TestNodeRepository_Uniqueness(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewNodeRepository(pool)

	root := newNode("root1", nil, model.KindFolder, "")
	if err := repo.Create(ctx, root); err != nil {
		t.Fatalf("Create root: %v", err)
	}
	if err := repo.Create(ctx, newNode("root1", nil, model.KindFolder, "")); !errors.Is(err, ErrConflict) {
		t.Errorf("второй корень: ожидалась ErrConflict, получено %v", err)
	}

	file := newNode("root1", &root.ID, model.KindFile, "x.txt")
	if err := repo.Create(ctx, file); err != nil {
		t.Fatalf("Create file: %v", err)
	}
	if err := repo.Create(ctx, newNode("root1", &root.ID, model.KindFile, "x.txt")); !errors.Is(err, ErrConflict) {
		t.Errorf("тёзка: ожидалась ErrConflict, получено %v", err)
	}

	// Надгробие освобождает имя
	now := time.Now()
	file.IsDeleted, file.DeletedAt = true, &now
	if err := repo.Update(ctx, file); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := repo.Create(ctx, newNode("root1", &root.ID, model.KindFile, "x.txt")); err != nil {
		t.Errorf("имя надгробия должно быть свободно: %v", err)
	}

	tomb, err := repo.FindDeletedChild(ctx, root.ID, "x.txt", model.KindFile)
	if err != nil || tomb.ID != file.ID {
		t.Errorf("FindDeletedChild = %+v, %v", tomb, err)
	}
	if n, _ := repo.CountChildren(ctx, root.ID); n != 2 {
		t.Errorf("CountChildren = %d, хотели 2", n)
	}
	live, _ := repo.ListChildren(ctx, root.ID, false)
	if len(live) != 1 {
		t.Errorf("живых потомков = %d, хотели 1", len(live))
	}
}

func TestNodeRepository_LockBeforeHardDelete(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	tx := NewTxRunner(pool)
	repo := NewNodeRepository(pool)

	root := newNode("root1", nil, model.KindFolder, "")
	if err := repo.Create(ctx, root); err != nil {
		t.Fatalf("Create root: %v", err)
	}
	folder := newNode("root1", &root.ID, model.KindFolder, "tmp")
	if err := repo.Create(ctx, folder); err != nil {
		t.Fatalf("Create folder: %v", err)
	}

	locked := make(chan struct{})
	inserted := make(chan error, 1)
	err := tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := repo.Lock(ctx, folder.ID); err != nil {
			return err
		}
		go func() {
			<-locked
			inserted <- repo.Create(context.Background(), newNode("root1", &folder.ID, model.KindFile, "late.txt"))
		}()
		close(locked)

		if n, err := repo.CountChildren(ctx, folder.ID); err != nil || n != 0 {
			t.Errorf("CountChildren = %d, %v", n, err)
		}
		return repo.HardDelete(ctx, folder.ID)
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	// Вставка потомка ждёт фиксации и получает исчезнувшего родителя
	if err := <-inserted; !errors.Is(err, ErrNotFound) {
		t.Errorf("вставка под удалённым родителем: ожидалась ErrNotFound, получено %v", err)
	}
	if err := repo.Lock(ctx, folder.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lock удалённого узла: ожидалась ErrNotFound, получено %v", err)
	}
}

func TestTxRunner_Savepoint(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	tx := NewTxRunner(pool)
	repo := NewNodeRepository(pool)

	root := newNode("root1", nil, model.KindFolder, "")
	var provisional *model.FileNode

	err := tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := repo.Create(ctx, root); err != nil {
			return err
		}
		inner := tx.RunInTx(ctx, func(ctx context.Context) error {
			provisional = newNode("root1", &root.ID, model.KindFile, "tmp")
			if err := repo.Create(ctx, provisional); err != nil {
				return err
			}
			return errors.New("нет версии")
		})
		if inner == nil {
			t.Error("ожидалась ошибка вложенной транзакции")
		}
		// Конфликт уникальности внутри точки сохранения не ломает внешнюю транзакцию
		conflict := tx.RunInTx(ctx, func(ctx context.Context) error {
			return repo.Create(ctx, newNode("root1", nil, model.KindFolder, ""))
		})
		if !errors.Is(conflict, ErrConflict) {
			t.Errorf("ожидалась ErrConflict, получено %v", conflict)
		}
		_, err := repo.Get(ctx, root.ID)
		return err
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	if _, err := repo.Get(ctx, root.ID); err != nil {
		t.Errorf("корень должен сохраниться: %v", err)
	}
	if _, err := repo.Get(ctx, provisional.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("временный узел должен откатиться, получено %v", err)
	}
}

func TestVersionAndUsageRepositories(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	nodes := NewNodeRepository(pool)
	versions := NewVersionRepository(pool)

	root := newNode("root1", nil, model.KindFolder, "")
	file := newNode("root1", &root.ID, model.KindFile, "data.csv")
	if err := nodes.Create(ctx, root); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := nodes.Create(ctx, file); err != nil {
		t.Fatalf("Create: %v", err)
	}

	v := &model.FileVersion{
		FileID: file.ID, Identifier: 1, Size: 42, CreatedAt: time.Now().UTC(),
		Checksums: map[string]string{"sha256": "abc"},
		Location:  map[string]string{"object": "abc"},
	}
	if err := versions.Create(ctx, v); err != nil {
		t.Fatalf("Create version: %v", err)
	}
	if err := versions.Create(ctx, v); !errors.Is(err, ErrConflict) {
		t.Errorf("повторная версия: ожидалась ErrConflict, получено %v", err)
	}

	v.ContentType = "text/csv"
	v.Checksums["md5"] = "def"
	if err := versions.UpdateMetadata(ctx, v); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	latest, err := versions.Latest(ctx, file.ID)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ContentType != "text/csv" || latest.Checksums["md5"] != "def" || latest.Size != 42 {
		t.Errorf("Latest = %+v", latest)
	}

	usage := NewUsageRepository(pool)
	if err := usage.Apply(ctx, "root1", model.UsageDelta{Bytes: 42, Versions: 1, Logs: 1}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := usage.Apply(ctx, "root1", model.UsageDelta{Bytes: 8, Logs: 1}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := usage.Get(ctx, "root1")
	if err != nil || got.BytesUsed != 50 || got.VersionCount != 1 || got.LogCount != 2 {
		t.Errorf("usage = %+v, %v", got, err)
	}

	audit := NewAuditRepository(pool)
	entry := &model.AuditLogEntry{
		ID: uuid.New().String(), ResourceID: "root1", Action: "added",
		Params: map[string]any{"path": "/data.csv"}, CreatedAt: time.Now().UTC(),
	}
	if err := audit.Append(ctx, entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
	entries, err := audit.ListByResource(ctx, "root1", 10)
	if err != nil || len(entries) != 1 || entries[0].Params["path"] != "/data.csv" {
		t.Errorf("ListByResource = %+v, %v", entries, err)
	}
}
