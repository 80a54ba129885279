package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionState состояние транзакции
type TransactionState string

const (
	TransactionStateInitial  TransactionState = "initial"
	TransactionStatePending  TransactionState = "pending"
	TransactionStateSettled  TransactionState = "settled"
	TransactionStateFailed   TransactionState = "failed"
	TransactionStateCanceled TransactionState = "canceled"
	TransactionStateRefunded TransactionState = "refunded"
)

// FailCode фиксированная таксономия кодов отказа процессора
type FailCode string

const (
	FailCodeInsufficientFunds             FailCode = "insufficient_funds"
	FailCodeExpiredCard                   FailCode = "expired_card"
	FailCodeExpiredPaymentMethod          FailCode = "expired_payment_method"
	FailCodeInvalidCard                   FailCode = "invalid_card"
	FailCodeInvalidPaymentMethod          FailCode = "invalid_payment_method"
	FailCodeLimitExceeded                 FailCode = "limit_exceeded"
	FailCodeTransactionDeclinedByBank     FailCode = "transaction_declined_by_bank"
	FailCodeTransactionHardDeclined       FailCode = "transaction_hard_declined"
	FailCodeTransactionHardDeclinedByBank FailCode = "transaction_hard_declined_by_bank"
	FailCodeDefault                       FailCode = "default"
)

// transactionTransitions таблица допустимых переходов состояния транзакции.
// Проверяется централизованно в transition, не по методам.
var transactionTransitions = map[TransactionState][]TransactionState{
	TransactionStateInitial: {TransactionStatePending, TransactionStateCanceled},
	TransactionStatePending: {TransactionStateSettled, TransactionStateFailed,
		TransactionStateCanceled, TransactionStateRefunded},
	TransactionStateSettled:  {TransactionStateRefunded},
	TransactionStateFailed:   {},
	TransactionStateCanceled: {},
	TransactionStateRefunded: {},
}

// Transaction представляет одну попытку оплаты документа через процессор.
// Сумма после создания неизменяема.
type Transaction struct {
	ID              uuid.UUID        `json:"id"`
	DocumentID      uuid.UUID        `json:"document_id"`
	PaymentMethodID uuid.UUID        `json:"payment_method_id"`
	State           TransactionState `json:"state"`
	Amount          decimal.Decimal  `json:"amount"`
	Currency        string           `json:"currency"`
	// Overpayment транзакции с этим флагом могут превышать итог документа;
	// излишек становится балансом клиента
	Overpayment       bool       `json:"overpayment"`
	FailCode          FailCode   `json:"fail_code,omitempty"`
	ExternalReference string     `json:"external_reference,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewTransaction создает транзакцию в состоянии initial
func NewTransaction(documentID, paymentMethodID uuid.UUID, amount decimal.Decimal, currency string) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:              uuid.New(),
		DocumentID:      documentID,
		PaymentMethodID: paymentMethodID,
		State:           TransactionStateInitial,
		Amount:          amount,
		Currency:        currency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// canTransition проверяет переход по таблице
func (t *Transaction) canTransition(to TransactionState) bool {
	for _, allowed := range transactionTransitions[t.State] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition выполняет переход либо возвращает StateTransitionError
func (t *Transaction) transition(to TransactionState) error {
	if !t.canTransition(to) {
		return NewStateTransitionError("transaction", string(t.State), string(to))
	}
	t.State = to
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Process переводит транзакцию в pending перед обращением к процессору
func (t *Transaction) Process() error {
	return t.transition(TransactionStatePending)
}

// Settle фиксирует успешный ответ процессора
func (t *Transaction) Settle(externalReference string, at time.Time) error {
	if err := t.transition(TransactionStateSettled); err != nil {
		return err
	}
	t.ExternalReference = externalReference
	t.ProcessedAt = &at
	return nil
}

// Fail фиксирует явный отказ процессора. Ошибки связи сюда не попадают:
// при них транзакция остается в своем состоянии.
func (t *Transaction) Fail(code FailCode, at time.Time) error {
	if err := t.transition(TransactionStateFailed); err != nil {
		return err
	}
	if code == "" {
		code = FailCodeDefault
	}
	t.FailCode = code
	t.ProcessedAt = &at
	return nil
}

// Cancel отменяет транзакцию
func (t *Transaction) Cancel() error {
	return t.transition(TransactionStateCanceled)
}

// Refund возвращает рассчитанную транзакцию
func (t *Transaction) Refund() error {
	return t.transition(TransactionStateRefunded)
}

// CanRefund сообщает, допустим ли возврат из текущего состояния
func (t *Transaction) CanRefund() bool {
	return t.canTransition(TransactionStateRefunded)
}

// IsFinal сообщает, терминально ли состояние транзакции
func (t *Transaction) IsFinal() bool {
	return len(transactionTransitions[t.State]) == 0 || t.State == TransactionStateSettled
}

// SettledDelta возвращает вклад транзакции в покрытие документа: сумму для
// settled, ноль иначе. Возвращенная транзакция покрытие не дает.
func (t *Transaction) SettledDelta() decimal.Decimal {
	if t.State == TransactionStateSettled {
		return t.Amount
	}
	return decimal.Zero
}
