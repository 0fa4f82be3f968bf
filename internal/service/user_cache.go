package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/repository"
)

// Prometheus-метрики кэша пользователей.
var (
	userCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pd_user_cache_hits_total",
		Help: "Общее количество попаданий в кэш пользователей.",
	})
	userCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pd_user_cache_misses_total",
		Help: "Общее количество промахов кэша пользователей.",
	})
)

// CachedUserRepository: LRU-кэш с TTL поверх UserRepository.
// Сессия восстанавливается на каждом запросе, поэтому поиск по внутреннему id
// обслуживается из кэша. Запись через Upsert обновляет кэш.
type CachedUserRepository struct {
	next  repository.UserRepository
	cache *expirable.LRU[string, model.User]
}

// NewCachedUserRepository создаёт кэш размера maxSize с временем жизни записи ttl.
func NewCachedUserRepository(next repository.UserRepository, maxSize int, ttl time.Duration) *CachedUserRepository {
	return &CachedUserRepository{
		next:  next,
		cache: expirable.NewLRU[string, model.User](maxSize, nil, ttl),
	}
}

// GetByID возвращает пользователя из кэша или из хранилища.
func (c *CachedUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := c.cache.Get(id); ok {
		userCacheHitsTotal.Inc()
		return &u, nil
	}
	userCacheMissesTotal.Inc()

	u, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(u.ID, *u)
	return u, nil
}

// GetByDiscordID всегда обращается к хранилищу и кэширует результат по id.
func (c *CachedUserRepository) GetByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	u, err := c.next.GetByDiscordID(ctx, discordID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(u.ID, *u)
	return u, nil
}

// Upsert сохраняет пользователя и обновляет запись в кэше.
func (c *CachedUserRepository) Upsert(ctx context.Context, u *model.User) (bool, error) {
	if u.ID != "" {
		c.cache.Remove(u.ID)
	}
	created, err := c.next.Upsert(ctx, u)
	if err != nil {
		return false, err
	}
	c.cache.Add(u.ID, *u)
	return created, nil
}

// Len возвращает количество записей в кэше.
func (c *CachedUserRepository) Len() int {
	return c.cache.Len()
}
