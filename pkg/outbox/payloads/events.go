package payloads

import (
	"github.com/google/uuid"
)

// OrderPlacedEvent is emitted in the same transaction that inserts an order.
type OrderPlacedEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	UserID        uuid.UUID `json:"userId"`
	CustomerName  string    `json:"customerName"`
	Amount        string    `json:"amount"`
	ItemCount     int       `json:"itemCount"`
	PaymentMethod string    `json:"paymentMethod"`
}

// OrderStatusChangedEvent is emitted when an admin updates an order status.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID `json:"orderId"`
	CustomerID     uuid.UUID `json:"customerId"`
	ChangedBy      uuid.UUID `json:"changedBy"`
	Status         string    `json:"status"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
}

// EmailTemplate names a transactional email body.
type EmailTemplate string

const (
	EmailWelcome             EmailTemplate = "welcome"
	EmailOrderStatusCustomer EmailTemplate = "order_status_customer"
	EmailOrderStatusAdmin    EmailTemplate = "order_status_admin"
	EmailAccountStatus       EmailTemplate = "account_status"
)

// EmailRequestedEvent is one queued email to a single recipient.
type EmailRequestedEvent struct {
	To       string            `json:"to"`
	Name     string            `json:"name"`
	Template EmailTemplate     `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}
