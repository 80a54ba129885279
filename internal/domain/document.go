package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentState состояние платежного документа
type DocumentState string

const (
	DocumentStateDraft    DocumentState = "draft"
	DocumentStateIssued   DocumentState = "issued"
	DocumentStatePaid     DocumentState = "paid"
	DocumentStateCanceled DocumentState = "canceled"
)

// documentTransitions таблица допустимых переходов состояния документа
var documentTransitions = map[DocumentState][]DocumentState{
	DocumentStateDraft:    {DocumentStateIssued},
	DocumentStateIssued:   {DocumentStatePaid, DocumentStateCanceled},
	DocumentStatePaid:     {},
	DocumentStateCanceled: {},
}

// DocumentEntry запись документа: количество, цена за единицу, код продукта
// и покрываемый диапазон дат
type DocumentEntry struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ProductCode string          `json:"product_code,omitempty"`
	StartDate   *time.Time      `json:"start_date,omitempty"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
}

// Total возвращает сумму записи
func (e *DocumentEntry) Total() decimal.Decimal {
	return e.Quantity.Mul(e.UnitPrice).Round(2)
}

// BillingDocument представляет собой платежный документ (инвойс). Документы с
// отрицательным итогом - корректировки баланса; машина состояний для них та
// же самая.
type BillingDocument struct {
	ID         uuid.UUID       `json:"id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	ProviderID uuid.UUID       `json:"provider_id"`
	State      DocumentState   `json:"state"`
	Entries    []DocumentEntry `json:"entries"`
	Currency   string          `json:"currency"`
	// TransactionCurrencyRate инжектируемый курс для пересчета итога в
	// валюту транзакций. Источник курса вне ядра.
	TransactionCurrencyRate decimal.Decimal `json:"transaction_currency_rate"`
	IssueDate               *time.Time      `json:"issue_date,omitempty"`
	DueDate                 *time.Time      `json:"due_date,omitempty"`
	PaidDate                *time.Time      `json:"paid_date,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// NewDocument создает черновик документа
func NewDocument(customerID, providerID uuid.UUID, currency string) *BillingDocument {
	now := time.Now().UTC()
	return &BillingDocument{
		ID:                      uuid.New(),
		CustomerID:              customerID,
		ProviderID:              providerID,
		State:                   DocumentStateDraft,
		Currency:                currency,
		TransactionCurrencyRate: decimal.NewFromInt(1),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

// canTransition проверяет переход по таблице
func (d *BillingDocument) canTransition(to DocumentState) bool {
	for _, allowed := range documentTransitions[d.State] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition выполняет переход либо возвращает StateTransitionError
func (d *BillingDocument) transition(to DocumentState) error {
	if !d.canTransition(to) {
		return NewStateTransitionError("document", string(d.State), string(to))
	}
	d.State = to
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// AddEntry добавляет запись. Записи выставленного документа неизменяемы.
func (d *BillingDocument) AddEntry(entry DocumentEntry) error {
	if d.State != DocumentStateDraft {
		return ErrImmutableEntries
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	d.Entries = append(d.Entries, entry)
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Total возвращает итог документа как сумму записей
func (d *BillingDocument) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range d.Entries {
		total = total.Add(d.Entries[i].Total())
	}
	return total
}

// TotalInTransactionCurrency возвращает итог в валюте транзакций
func (d *BillingDocument) TotalInTransactionCurrency() decimal.Decimal {
	return d.Total().Mul(d.TransactionCurrencyRate).Round(2)
}

// Issue выставляет документ. Допустимо только из draft; с этого момента
// записи неизменяемы и по документу могут создаваться транзакции.
func (d *BillingDocument) Issue(issueDate time.Time, dueDays int) error {
	if err := d.transition(DocumentStateIssued); err != nil {
		return err
	}
	due := issueDate.AddDate(0, 0, dueDays)
	d.IssueDate = &issueDate
	d.DueDate = &due
	return nil
}

// CoversTotal сообщает, покрывает ли сумма рассчитанных транзакций итог
// документа. Для отрицательных итогов условие симметрично.
func (d *BillingDocument) CoversTotal(settled decimal.Decimal) bool {
	total := d.TotalInTransactionCurrency()
	if total.IsNegative() {
		return settled.LessThanOrEqual(total)
	}
	return settled.GreaterThanOrEqual(total)
}

// Pay переводит документ в paid, если покрытие достаточно
func (d *BillingDocument) Pay(paidDate time.Time, settled decimal.Decimal) error {
	if !d.CoversTotal(settled) {
		return NewConsistencyError(d.ID.String(),
			"settled amount "+settled.String()+" does not cover total "+d.TotalInTransactionCurrency().String())
	}
	if err := d.transition(DocumentStatePaid); err != nil {
		return err
	}
	d.PaidDate = &paidDate
	return nil
}

// Cancel отменяет выставленный документ
func (d *BillingDocument) Cancel() error {
	return d.transition(DocumentStateCanceled)
}

// IsOpen сообщает, открыт ли документ (draft или issued)
func (d *BillingDocument) IsOpen() bool {
	return d.State == DocumentStateDraft || d.State == DocumentStateIssued
}
