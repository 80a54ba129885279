package domain

import (
	"time"

	"github.com/google/uuid"
)

// Customer представляет собой модель клиента
type Customer struct {
	ID                  uuid.UUID         `json:"id"`
	FirstName           string            `json:"first_name"`
	LastName            string            `json:"last_name"`
	Company             string            `json:"company,omitempty"`
	Email               string            `json:"email"`
	PaymentDueDays      int               `json:"payment_due_days"`
	ConsolidatedBilling bool              `json:"consolidated_billing"`
	SalesTaxPercent     *float64          `json:"sales_tax_percent,omitempty"`
	Currency            string            `json:"currency"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// DefaultPaymentDueDays срок оплаты по умолчанию для выставленных документов
const DefaultPaymentDueDays = 5

// NewCustomer создает нового клиента с заданными параметрами
func NewCustomer(firstName, lastName, email, currency string) *Customer {
	now := time.Now().UTC()
	return &Customer{
		ID:             uuid.New(),
		FirstName:      firstName,
		LastName:       lastName,
		Email:          email,
		Currency:       currency,
		PaymentDueDays: DefaultPaymentDueDays,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Name возвращает отображаемое имя клиента
func (c *Customer) Name() string {
	if c.Company != "" {
		return c.Company + " - " + c.LastName + " " + c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Provider представляет собой поставщика, от имени которого выставляются
// документы. Корректор переплат владеет выделенным внутренним поставщиком,
// помеченным в Metadata ключом overpayment_checker.
type Provider struct {
	ID             uuid.UUID         `json:"id"`
	Name           string            `json:"name"`
	InvoiceSeries  string            `json:"invoice_series"`
	StartingNumber int               `json:"starting_number"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// OverpaymentProviderMetaKey ключ в Provider.Metadata, помечающий внутреннего
// поставщика корректора переплат.
const OverpaymentProviderMetaKey = "overpayment_checker"
