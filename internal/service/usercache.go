package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
)

// Prometheus-метрики кэша пользователей.
var (
	userCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sg_user_cache_hits_total",
		Help: "Общее количество попаданий в кэш пользователей.",
	})
	userCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sg_user_cache_misses_total",
		Help: "Общее количество промахов кэша пользователей.",
	})
)

// UserCache — LRU-кэш сводок пользователей с TTL поверх UserRepository.
// Решения о доступе не кэшируются, только личность пользователя.
type UserCache struct {
	users repository.UserRepository
	cache *expirable.LRU[string, *model.User]
}

// NewUserCache создаёт кэш на maxSize записей.
func NewUserCache(users repository.UserRepository, maxSize int, ttl time.Duration) *UserCache {
	return &UserCache{
		users: users,
		cache: expirable.NewLRU[string, *model.User](maxSize, nil, ttl),
	}
}

// GetByID возвращает пользователя из кэша или хранилища.
// Отсутствующие пользователи не кэшируются.
func (c *UserCache) GetByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := c.cache.Get(id); ok {
		userCacheHitsTotal.Inc()
		return u, nil
	}
	userCacheMissesTotal.Inc()

	u, err := c.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, u)
	return u, nil
}

// Invalidate удаляет запись пользователя.
func (c *UserCache) Invalidate(id string) {
	c.cache.Remove(id)
}
