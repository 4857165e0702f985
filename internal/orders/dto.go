package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

// LineInput is one requested line. Prices always come from the catalog.
type LineInput struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// PlaceOrderInput is the checkout payload for both payment methods.
type PlaceOrderInput struct {
	Items   []LineInput           `json:"items" validate:"required,min=1,dive"`
	Address types.ShippingAddress `json:"address"`
}

// UpdateStatusInput changes an order's status and optionally its tracking number.
type UpdateStatusInput struct {
	OrderID        uuid.UUID `json:"orderId" validate:"required"`
	Status         string    `json:"status" validate:"required"`
	TrackingNumber *string   `json:"trackingNumber,omitempty"`
}

// CheckoutSessionDTO is returned when a card checkout is started.
type CheckoutSessionDTO struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CompletedSession is the subset of a paid Stripe Checkout Session needed to
// create the order.
type CompletedSession struct {
	ID            string
	Metadata      map[string]string
	AmountTotal   int64
	CustomerEmail string
}

type OrderItemDTO struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	Image     string    `json:"image,omitempty"`
}

type TrackingEventDTO struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// OrderDTO is the API projection of an order.
type OrderDTO struct {
	ID             uuid.UUID             `json:"id"`
	UserID         *uuid.UUID            `json:"userId"`
	Items          []OrderItemDTO        `json:"items"`
	Amount         float64               `json:"amount"`
	Address        types.ShippingAddress `json:"address"`
	Status         string                `json:"status"`
	Payment        bool                  `json:"payment"`
	PaymentMethod  string                `json:"paymentMethod"`
	TrackingNumber *string               `json:"trackingNumber,omitempty"`
	Tracking       []TrackingEventDTO    `json:"tracking"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

func FromModel(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price.InexactFloat64(),
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	tracking := make([]TrackingEventDTO, 0, len(o.TrackingEvents))
	for _, event := range o.TrackingEvents {
		tracking = append(tracking, TrackingEventDTO{Status: event.Status, Time: event.Time})
	}
	return &OrderDTO{
		ID:             o.ID,
		UserID:         o.UserID,
		Items:          items,
		Amount:         o.Amount.InexactFloat64(),
		Address:        o.Address,
		Status:         o.Status,
		Payment:        o.Payment,
		PaymentMethod:  o.PaymentMethod.String(),
		TrackingNumber: o.TrackingNumber,
		Tracking:       tracking,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func FromModels(list []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(list))
	for i := range list {
		out = append(out, *FromModel(&list[i]))
	}
	return out
}
