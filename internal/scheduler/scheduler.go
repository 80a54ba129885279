// Package scheduler запускает периодические проходы биллинга: генерацию
// документов, ретраи, проверку жизненного цикла и корректировку переплат.
// Проходы идемпотентны, поэтому перекрытие расписаний безопасно.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/service"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// Specs cron-выражения четырех проходов
type Specs struct {
	Billing     string
	Retry       string
	Lifecycle   string
	Overpayment string
}

// Scheduler планировщик периодических проходов
type Scheduler struct {
	cron        *cron.Cron
	billing     service.BillingService
	payments    service.PaymentService
	retries     service.RetryService
	lifecycle   service.LifecycleService
	overpayment service.OverpaymentService
	metrics     metrics.BillingMetrics
	log         *logger.Logger
}

// New создает планировщик
func New(
	billing service.BillingService,
	payments service.PaymentService,
	retries service.RetryService,
	lifecycle service.LifecycleService,
	overpayment service.OverpaymentService,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		billing:     billing,
		payments:    payments,
		retries:     retries,
		lifecycle:   lifecycle,
		overpayment: overpayment,
		metrics:     billingMetrics,
		log:         log,
	}
}

// Start регистрирует проходы по расписанию и запускает планировщик
func (s *Scheduler) Start(specs Specs) error {
	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context, date time.Time)
	}{
		{"billing", specs.Billing, s.runBilling},
		{"retry", specs.Retry, s.runRetries},
		{"lifecycle", specs.Lifecycle, s.runLifecycle},
		{"overpayment", specs.Overpayment, s.runOverpayment},
	}

	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() {
			started := time.Now()
			job.run(context.Background(), started.UTC())
			s.metrics.ObserveBillingRunDuration(time.Since(started).Seconds(), job.name)
		}); err != nil {
			return err
		}
		s.log.Infow("Scheduled pass registered", "pass", job.name, "spec", job.spec)
	}

	s.cron.Start()
	s.log.Infow("Scheduler started")
	return nil
}

// Stop останавливает планировщик, дожидаясь завершения текущих проходов
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Infow("Scheduler stopped")
}

func (s *Scheduler) runBilling(ctx context.Context, date time.Time) {
	result, err := s.billing.RunBilling(ctx, date, service.BillingRunOptions{})
	if err != nil {
		s.log.Errorw("Scheduled billing run failed", "error", err)
		return
	}
	if _, err := s.payments.ExecuteInitial(ctx); err != nil {
		s.log.Errorw("Scheduled transaction execution failed", "error", err)
	}
	s.log.Infow("Scheduled billing run finished",
		"cyclesBilled", result.CyclesBilled, "documentsIssued", result.DocumentsIssued)
}

func (s *Scheduler) runRetries(ctx context.Context, date time.Time) {
	if _, err := s.retries.Check(ctx, date, false); err != nil {
		s.log.Errorw("Scheduled retry check failed", "error", err)
		return
	}
	if _, err := s.payments.ExecuteInitial(ctx); err != nil {
		s.log.Errorw("Scheduled retry execution failed", "error", err)
	}
}

func (s *Scheduler) runLifecycle(ctx context.Context, date time.Time) {
	if _, err := s.lifecycle.Check(ctx, date); err != nil {
		s.log.Errorw("Scheduled lifecycle check failed", "error", err)
	}
}

func (s *Scheduler) runOverpayment(ctx context.Context, date time.Time) {
	if _, err := s.overpayment.Check(ctx, date, nil); err != nil {
		s.log.Errorw("Scheduled overpayment check failed", "error", err)
	}
}
