package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// CachedPlanRepository реализует PlanRepository с кешированием
type CachedPlanRepository struct {
	repo  PlanRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedPlanRepository создает новый репозиторий планов с кешированием
func NewCachedPlanRepository(
	repo PlanRepository,
	cache *RedisCacheRepository,
	log *logger.Logger,
) PlanRepository {
	return &CachedPlanRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetByID получает план по ID (сначала из кеша, потом из БД)
func (r *CachedPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error) {
	cachedPlan, err := r.cache.GetCachedPlan(ctx, id.String())
	if err != nil {
		r.log.Warnw("Error getting plan from cache", "error", err, "planID", id)
		// Продолжаем выполнение при ошибке кеша
	}
	if cachedPlan != nil {
		return *cachedPlan, nil
	}

	plan, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Plan{}, err
	}

	if err := r.cache.CachePlan(ctx, plan); err != nil {
		r.log.Warnw("Failed to cache plan after fetching", "error", err, "planID", id)
	}
	return plan, nil
}

// Create сохраняет план в БД и кеширует его
func (r *CachedPlanRepository) Create(ctx context.Context, plan domain.Plan) error {
	if err := r.repo.Create(ctx, plan); err != nil {
		return err
	}

	if err := r.cache.CachePlan(ctx, plan); err != nil {
		r.log.Warnw("Failed to cache plan after creation", "error", err, "planID", plan.ID)
	}
	return nil
}
