package processor

import (
	"context"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// ManualProcessorName имя ручного процессора в реестре
const ManualProcessorName = "manual"

// ManualProcessor процессор для платежей, рассчитываемых оператором вне
// системы: банковские переводы, наличные. Charge оставляет транзакцию в
// pending; расчет фиксируется отдельным вызовом, когда оплата подтверждена.
type ManualProcessor struct{}

// NewManualProcessor создает ручной процессор
func NewManualProcessor() *ManualProcessor {
	return &ManualProcessor{}
}

func (p *ManualProcessor) Name() string { return ManualProcessorName }

// Charge у ручного процессора не обращается к шлюзу: транзакция остается
// pending до подтверждения оператором
func (p *ManualProcessor) Charge(_ context.Context, _ domain.Transaction) (Outcome, error) {
	return Outcome{Status: OutcomePending}, nil
}

func (p *ManualProcessor) Void(_ context.Context, _ domain.Transaction) (Outcome, error) {
	return Outcome{Status: OutcomeFailed, FailCode: domain.FailCodeDefault}, nil
}

func (p *ManualProcessor) Refund(_ context.Context, _ domain.Transaction) (Outcome, error) {
	return Outcome{Status: OutcomeSettled}, nil
}

// Status отражает текущее состояние транзакции без обращения к шлюзу
func (p *ManualProcessor) Status(_ context.Context, txn domain.Transaction) (Outcome, error) {
	switch txn.State {
	case domain.TransactionStateSettled:
		return Outcome{Status: OutcomeSettled, ExternalReference: txn.ExternalReference}, nil
	case domain.TransactionStateFailed:
		return Outcome{Status: OutcomeFailed, FailCode: txn.FailCode}, nil
	default:
		return Outcome{Status: OutcomePending}, nil
	}
}
