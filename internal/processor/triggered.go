package processor

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// TriggeredProcessorName имя триггерного процессора в реестре
const TriggeredProcessorName = "triggered"

// TriggeredBehavior поведение триггерного процессора при Charge
type TriggeredBehavior string

const (
	// TriggeredSettle расчитывать транзакции сразу
	TriggeredSettle TriggeredBehavior = "settle"
	// TriggeredFail отклонять транзакции с настроенным кодом отказа
	TriggeredFail TriggeredBehavior = "fail"
	// TriggeredHold оставлять транзакции в pending до явного триггера
	TriggeredHold TriggeredBehavior = "hold"
	// TriggeredGatewayDown имитировать сбой связи со шлюзом
	TriggeredGatewayDown TriggeredBehavior = "gateway_down"
)

// TriggeredConfig конфигурация триггерного процессора
type TriggeredConfig struct {
	Behavior TriggeredBehavior
	FailCode domain.FailCode
}

// TriggeredProcessor процессор с управляемым исходом. Используется в тестах
// и стендах: поведение задается конфигурацией и может меняться на ходу.
type TriggeredProcessor struct {
	mu       sync.Mutex
	cfg      TriggeredConfig
	charged  []uuid.UUID
	refunded []uuid.UUID
}

// NewTriggeredProcessor создает триггерный процессор с заданным поведением
func NewTriggeredProcessor(cfg TriggeredConfig) *TriggeredProcessor {
	if cfg.Behavior == "" {
		cfg.Behavior = TriggeredSettle
	}
	if cfg.FailCode == "" {
		cfg.FailCode = domain.FailCodeDefault
	}
	return &TriggeredProcessor{cfg: cfg}
}

func (p *TriggeredProcessor) Name() string { return TriggeredProcessorName }

// SetBehavior меняет поведение для последующих операций
func (p *TriggeredProcessor) SetBehavior(behavior TriggeredBehavior, failCode domain.FailCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Behavior = behavior
	if failCode != "" {
		p.cfg.FailCode = failCode
	}
}

// ChargedTransactions возвращает идентификаторы транзакций, по которым
// вызывался Charge
func (p *TriggeredProcessor) ChargedTransactions() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uuid.UUID, len(p.charged))
	copy(out, p.charged)
	return out
}

func (p *TriggeredProcessor) Charge(_ context.Context, txn domain.Transaction) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charged = append(p.charged, txn.ID)

	switch p.cfg.Behavior {
	case TriggeredFail:
		return Outcome{Status: OutcomeFailed, FailCode: p.cfg.FailCode}, nil
	case TriggeredHold:
		return Outcome{Status: OutcomePending}, nil
	case TriggeredGatewayDown:
		return Outcome{}, domain.NewGatewayError(TriggeredProcessorName, "gateway unreachable", nil)
	default:
		return Outcome{
			Status:            OutcomeSettled,
			ExternalReference: "triggered-" + txn.ID.String(),
		}, nil
	}
}

func (p *TriggeredProcessor) Void(_ context.Context, _ domain.Transaction) (Outcome, error) {
	return Outcome{Status: OutcomeFailed, FailCode: domain.FailCodeDefault}, nil
}

// RefundedTransactions возвращает идентификаторы транзакций, по которым
// вызывался Refund
func (p *TriggeredProcessor) RefundedTransactions() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uuid.UUID, len(p.refunded))
	copy(out, p.refunded)
	return out
}

func (p *TriggeredProcessor) Refund(_ context.Context, txn domain.Transaction) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunded = append(p.refunded, txn.ID)
	if p.cfg.Behavior == TriggeredGatewayDown {
		return Outcome{}, domain.NewGatewayError(TriggeredProcessorName, "gateway unreachable", nil)
	}
	return Outcome{Status: OutcomeSettled, ExternalReference: txn.ExternalReference}, nil
}

func (p *TriggeredProcessor) Status(_ context.Context, txn domain.Transaction) (Outcome, error) {
	switch txn.State {
	case domain.TransactionStateSettled:
		return Outcome{Status: OutcomeSettled, ExternalReference: txn.ExternalReference}, nil
	case domain.TransactionStateFailed:
		return Outcome{Status: OutcomeFailed, FailCode: txn.FailCode}, nil
	default:
		return Outcome{Status: OutcomePending}, nil
	}
}
