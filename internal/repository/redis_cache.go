package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

const (
	// Префикс ключей кэша планов
	planKeyPrefix = "plan:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository реализует кеширование планов с использованием Redis.
// Планы читаются каждым проходом биллинга и меняются редко.
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CachePlan кеширует план вместе с его фичами
func (r *RedisCacheRepository) CachePlan(ctx context.Context, plan domain.Plan) error {
	key := planKeyPrefix + plan.ID.String()

	data, err := json.Marshal(plan)
	if err != nil {
		r.log.Errorw("Failed to marshal plan for caching", "error", err, "planID", plan.ID)
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache plan in Redis", "error", err, "planID", plan.ID)
		return fmt.Errorf("failed to cache plan: %w", err)
	}

	r.log.Debugw("Plan cached successfully", "planID", plan.ID)
	return nil
}

// GetCachedPlan получает план из кеша. Возвращает nil без ошибки при промахе.
func (r *RedisCacheRepository) GetCachedPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	key := planKeyPrefix + planID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.Debugw("Plan not found in cache", "planID", planID)
			return nil, nil
		}
		r.log.Errorw("Error getting plan from Redis", "error", err, "planID", planID)
		return nil, fmt.Errorf("failed to get plan from cache: %w", err)
	}

	var plan domain.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		r.log.Errorw("Failed to unmarshal cached plan", "error", err, "planID", planID)
		return nil, fmt.Errorf("failed to unmarshal cached plan: %w", err)
	}

	r.log.Debugw("Plan retrieved from cache", "planID", planID)
	return &plan, nil
}

// DeleteCachedPlan удаляет план из кеша
func (r *RedisCacheRepository) DeleteCachedPlan(ctx context.Context, planID string) error {
	key := planKeyPrefix + planID

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to delete plan from cache", "error", err, "planID", planID)
		return fmt.Errorf("failed to delete plan from cache: %w", err)
	}

	r.log.Debugw("Plan deleted from cache", "planID", planID)
	return nil
}
