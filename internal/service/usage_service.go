package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// UsageService интерфейс агрегатора потребления. Суммирует логи потребления
// фичи за цикл и разрешает масштабирование через связанные фичи.
type UsageService interface {
	// Record создает неизменяемую запись потребления
	Record(ctx context.Context, subscriptionID, featureID uuid.UUID,
		start, end time.Time, consumed decimal.Decimal) (domain.MeteredFeatureUnitsLog, error)

	// ConsumedUnits возвращает суммарное потребление фичи подписки за цикл
	ConsumedUnits(ctx context.Context, subscriptionID, featureID uuid.UUID,
		start, end time.Time) (decimal.Decimal, error)

	// Charge рассчитывает стоимость потребления фичи за цикл
	Charge(ctx context.Context, sub domain.Subscription, plan domain.Plan,
		feature domain.MeteredFeature, cycleStart, cycleEnd time.Time,
		onTrial bool) (UsageCharge, error)
}

// UsageCharge результат расчета потребления фичи за цикл
type UsageCharge struct {
	ConsumedUnits decimal.Decimal
	// IncludedUnits эффективные включенные единицы после масштабирования
	// связанной фичей
	IncludedUnits decimal.Decimal
	BillableUnits decimal.Decimal
	Cost          decimal.Decimal
}

type usageService struct {
	usageRepo repository.UsageRepository
	log       *logger.Logger
}

// NewUsageService создает новый агрегатор потребления
func NewUsageService(usageRepo repository.UsageRepository, log *logger.Logger) UsageService {
	return &usageService{
		usageRepo: usageRepo,
		log:       log,
	}
}

func (s *usageService) Record(ctx context.Context, subscriptionID, featureID uuid.UUID,
	start, end time.Time, consumed decimal.Decimal) (domain.MeteredFeatureUnitsLog, error) {
	if end.Before(start) {
		return domain.MeteredFeatureUnitsLog{}, domain.ErrInvalidInput
	}

	unitsLog := domain.NewUnitsLog(subscriptionID, featureID, start, end, consumed)
	if err := s.usageRepo.Create(ctx, *unitsLog); err != nil {
		s.log.Errorw("Failed to record units log", "error", err,
			"subscriptionID", subscriptionID, "featureID", featureID)
		return domain.MeteredFeatureUnitsLog{}, err
	}
	return *unitsLog, nil
}

func (s *usageService) ConsumedUnits(ctx context.Context, subscriptionID, featureID uuid.UUID,
	start, end time.Time) (decimal.Decimal, error) {
	logs, err := s.usageRepo.ListIntersecting(ctx, subscriptionID, featureID, start, end)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for i := range logs {
		total = total.Add(logs[i].ConsumedUnits)
	}
	return total, nil
}

func (s *usageService) Charge(ctx context.Context, sub domain.Subscription, plan domain.Plan,
	feature domain.MeteredFeature, cycleStart, cycleEnd time.Time,
	onTrial bool) (UsageCharge, error) {
	consumed, err := s.ConsumedUnits(ctx, sub.ID, feature.ID, cycleStart, cycleEnd)
	if err != nil {
		return UsageCharge{}, err
	}

	included, err := s.effectiveIncludedUnits(ctx, sub, plan, feature, cycleStart, cycleEnd, onTrial)
	if err != nil {
		return UsageCharge{}, err
	}

	billable := consumed.Sub(included)
	if billable.IsNegative() {
		billable = decimal.Zero
	}

	return UsageCharge{
		ConsumedUnits: consumed,
		IncludedUnits: included,
		BillableUnits: billable,
		Cost:          billable.Mul(feature.PricePerUnit).Round(2),
	}, nil
}

// effectiveIncludedUnits возвращает включенные единицы фичи за цикл. Базовая
// величина масштабируется потреблением связанной фичи; нулевое потребление
// связанной фичи оставляет базовую величину как есть - фича не должна терять
// включенные единицы только потому, что партнер по связи не логировался.
func (s *usageService) effectiveIncludedUnits(ctx context.Context, sub domain.Subscription,
	plan domain.Plan, feature domain.MeteredFeature, cycleStart, cycleEnd time.Time,
	onTrial bool) (decimal.Decimal, error) {
	base := feature.IncludedUnits
	if onTrial {
		base = feature.IncludedUnitsDuringTrial
	}

	if feature.LinkedFeatureID == nil {
		return base, nil
	}

	// Логи связанной фичи читаются из связанной подписки, если она задана.
	// Окно агрегации - цикл зависимой подписки.
	sourceSubscriptionID := sub.ID
	if sub.LinkedSubscriptionID != nil {
		sourceSubscriptionID = *sub.LinkedSubscriptionID
	}

	linked := plan.FeatureByID(*feature.LinkedFeatureID)
	if linked == nil {
		return decimal.Zero, domain.NewConfigurationError("linked_feature",
			"linked feature is not part of the plan")
	}

	linkedConsumed, err := s.ConsumedUnits(ctx, sourceSubscriptionID, linked.ID, cycleStart, cycleEnd)
	if err != nil {
		return decimal.Zero, err
	}
	if linkedConsumed.IsZero() {
		return base, nil
	}

	switch feature.IncludedUnitsCalculation {
	case domain.CalculationMultiply:
		return base.Mul(linkedConsumed), nil
	case domain.CalculationAdd:
		return base.Add(linkedConsumed), nil
	case domain.CalculationSubtract:
		return base.Sub(linkedConsumed), nil
	default:
		return decimal.Zero, domain.NewConfigurationError("included_units_calculation",
			"unknown calculation "+string(feature.IncludedUnitsCalculation))
	}
}
