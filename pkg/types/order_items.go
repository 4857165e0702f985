package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is the frozen catalog snapshot captured when an order is placed.
type OrderItem struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// LineTotal returns price × quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderItems []OrderItem

// Subtotal sums every line total.
func (items OrderItems) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (items OrderItems) Value() (driver.Value, error) {
	if items == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]OrderItem(items))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

func (items *OrderItems) Scan(value any) error {
	if value == nil {
		*items = OrderItems{}
		return nil
	}
	decoded := []OrderItem{}
	if err := scanJSON("order items", value, &decoded); err != nil {
		return err
	}
	*items = decoded
	return nil
}

// TrackingEvent records one status transition on an order.
type TrackingEvent struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

type TrackingEvents []TrackingEvent

func (events TrackingEvents) Value() (driver.Value, error) {
	if events == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]TrackingEvent(events))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

func (events *TrackingEvents) Scan(value any) error {
	if value == nil {
		*events = TrackingEvents{}
		return nil
	}
	decoded := []TrackingEvent{}
	if err := scanJSON("tracking events", value, &decoded); err != nil {
		return err
	}
	*events = decoded
	return nil
}
