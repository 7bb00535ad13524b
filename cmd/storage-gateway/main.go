// Точка входа Storage Gateway — шлюза авторизации исполнительного слоя
// хранения. Загружает конфигурацию, открывает хранилище метаданных
// (PostgreSQL с миграциями или память), выводит ключи конвертов,
// собирает дерево файлов, шину событий и шлюз, запускает мониторинг
// зависимостей и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bigkaa/goartstore/storage-gateway/api"
	"github.com/bigkaa/goartstore/storage-gateway/internal/api/handlers"
	"github.com/bigkaa/goartstore/storage-gateway/internal/api/middleware"
	"github.com/bigkaa/goartstore/storage-gateway/internal/config"
	"github.com/bigkaa/goartstore/storage-gateway/internal/database"
	"github.com/bigkaa/goartstore/storage-gateway/internal/envelope"
	"github.com/bigkaa/goartstore/storage-gateway/internal/events"
	"github.com/bigkaa/goartstore/storage-gateway/internal/filetree"
	"github.com/bigkaa/goartstore/storage-gateway/internal/gateway"
	"github.com/bigkaa/goartstore/storage-gateway/internal/permission"
	"github.com/bigkaa/goartstore/storage-gateway/internal/provider"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository/memory"
	"github.com/bigkaa/goartstore/storage-gateway/internal/server"
	"github.com/bigkaa/goartstore/storage-gateway/internal/service"
	"github.com/bigkaa/goartstore/storage-gateway/internal/session"
	"github.com/bigkaa/goartstore/storage-gateway/internal/webhook"
)

// stores — репозитории выбранного бэкенда.
type stores struct {
	tx        repository.Transactor
	resources repository.ResourceRepository
	users     repository.UserRepository
	nodes     repository.NodeRepository
	versions  repository.VersionRepository
	audit     repository.AuditRepository
	usage     repository.UsageRepository

	// Только для PostgreSQL
	pool *pgxpool.Pool
	pgDB *sql.DB

	// Только для хранилища в памяти: блокировки из seed
	checkouts []memory.Checkout
}

func (s *stores) Close() {
	if s.pgDB != nil {
		_ = s.pgDB.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func main() {
	// 1. Конфигурация и логирование
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := config.SetupLogger(cfg)
	logger.Info("Storage Gateway запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.Store),
	)

	ctx := context.Background()

	// 2. Хранилище метаданных
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка открытия хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	// 3. Ключи конвертов (PBKDF2 выполняется один раз)
	keys, err := envelope.DeriveKeys(cfg.EnvelopeSigningSecret, cfg.EnvelopePassphrase, cfg.EnvelopeSalt)
	if err != nil {
		logger.Error("Ошибка вывода ключей конвертов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	codec, err := envelope.NewCodec(keys)
	if err != nil {
		logger.Error("Ошибка создания кодека конвертов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Дерево файлов и поставщики
	tree := filetree.New(filetree.Deps{
		Tx:        st.tx,
		Nodes:     st.nodes,
		Versions:  st.versions,
		Resources: st.resources,
	}, logger)
	if err := applySeedCheckouts(ctx, tree, st.checkouts); err != nil {
		logger.Error("Ошибка применения блокировок seed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	osfStorage, err := provider.NewOSFStorage(cfg.OSFStorageService, cfg.OSFStorageRegion, cfg.OSFStorageCredentials)
	if err != nil {
		logger.Error("Ошибка настройки osfstorage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	providers := provider.NewRegistry(provider.Stored{}, osfStorage)

	// 5. Шина событий: аналитика, уведомления, очистка пустых папок
	bus := events.NewBus(logger, cfg.EventTimeout,
		events.NewAnalyticsHandler(prometheus.DefaultRegisterer,
			webhook.New(cfg.AnalyticsWebhookURL, cfg.EventTimeout, logger)),
		events.NewNotificationHandler(
			webhook.New(cfg.NotifyWebhookURL, cfg.EventTimeout, logger), logger),
		events.NewTrashHandler(tree, logger),
	)

	// 6. Шлюз
	gw := gateway.New(gateway.Deps{
		Codec:     codec,
		Resolver:  permission.NewResolver(st.resources, logger),
		Tree:      tree,
		Providers: providers,
		Bus:       bus,
		Tx:        st.tx,
		Resources: st.resources,
		Users:     service.NewUserCache(st.users, cfg.UserCacheSize, cfg.UserCacheTTL),
		Audit:     st.audit,
		Usage:     st.usage,
	}, gateway.Config{
		EnvelopeTTL:   cfg.EnvelopeTTL,
		ContactDomain: cfg.ContactDomain,
		CallbackURL:   cfg.CallbackURL,
	}, logger)

	// 7. Аутентификация вызывающих
	sessions, err := session.NewManager(cfg.SessionSecret)
	if err != nil {
		logger.Error("Ошибка создания менеджера сессий", slog.String("error", err.Error()))
		os.Exit(1)
	}
	auth, err := middleware.NewAuthenticator(middleware.AuthOptions{
		JWKSURL:         cfg.JWTJWKSURL,
		Issuer:          cfg.JWTIssuer,
		Leeway:          cfg.JWTLeeway,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
	}, sessions, logger)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Readiness и topologymetrics
	checkers := map[string]handlers.ReadinessChecker{}
	if st.pool != nil {
		checkers["postgresql"] = database.NewReadinessChecker(st.pool)
	}
	if cfg.JWTJWKSURL != "" {
		checkers["idp"] = middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSClientTimeout)
	}

	dephealthSvc, err := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "storage-gateway",
		Group:         cfg.DephealthGroup,
		DB:            st.pgDB,
		PGConnURL:     cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	switch {
	case errors.Is(err, service.ErrNoDependencies):
		logger.Info("topologymetrics: нет зависимостей для мониторинга")
	case err != nil:
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	default:
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			defer dephealthSvc.Stop()
		}
	}

	// 9. HTTP-сервер; контракт проверяется до старта
	spec, err := api.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI", slog.String("error", err.Error()))
		os.Exit(1)
	}
	router := server.NewRouter(cfg, logger,
		handlers.NewWaterButlerHandler(gw, spec, logger),
		handlers.NewHealthHandler(checkers),
		auth,
	)
	if err := server.New(cfg, logger, router, bus).Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Storage Gateway остановлен")
}

// applySeedCheckouts ставит блокировки файлов из seed. Узлы по путям
// создаются так же, как при первом обращении исполнительного слоя.
func applySeedCheckouts(ctx context.Context, tree *filetree.Tree, checkouts []memory.Checkout) error {
	for _, c := range checkouts {
		file, err := tree.Resolve(ctx, c.ResourceID, c.Provider, c.Path)
		if err != nil {
			return fmt.Errorf("блокировка %s%s: %w", c.ResourceID, c.Path, err)
		}
		if _, err := tree.Checkout(ctx, file, c.UserID); err != nil {
			return fmt.Errorf("блокировка %s%s: %w", c.ResourceID, c.Path, err)
		}
	}
	return nil
}

// openStores открывает бэкенд хранилища согласно SG_STORE.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		mem := memory.New()
		var checkouts []memory.Checkout
		if cfg.MemorySeedFile != "" {
			f, err := os.Open(cfg.MemorySeedFile)
			if err != nil {
				return nil, fmt.Errorf("открытие seed: %w", err)
			}
			defer f.Close()
			if checkouts, err = mem.LoadSeed(f); err != nil {
				return nil, err
			}
			logger.Info("Хранилище в памяти наполнено", slog.String("seed", cfg.MemorySeedFile))
		}
		logger.Warn("Используется хранилище в памяти, данные не сохраняются между рестартами")
		return &stores{
			tx:        mem,
			resources: mem.Resources(),
			users:     mem.Users(),
			nodes:     mem.Nodes(),
			versions:  mem.Versions(),
			audit:     mem.Audit(),
			usage:     mem.Usage(),
			checkouts: checkouts,
		}, nil
	}

	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return nil, err
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &stores{
		tx:        repository.NewTxRunner(pool),
		resources: repository.NewResourceRepository(pool),
		users:     repository.NewUserRepository(pool),
		nodes:     repository.NewNodeRepository(pool),
		versions:  repository.NewVersionRepository(pool),
		audit:     repository.NewAuditRepository(pool),
		usage:     repository.NewUsageRepository(pool),
		pool:      pool,
		// Проверка здоровья PostgreSQL идёт через существующий пул
		pgDB: stdlib.OpenDBFromPool(pool),
	}, nil
}
