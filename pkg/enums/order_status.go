package enums

import "strings"

// Order status is a free-text progression; these are the values the admin
// dashboard offers. Any non-empty string is accepted on update.
const (
	OrderStatusPlaced         = "Order Placed"
	OrderStatusPacking        = "Packing"
	OrderStatusShipped        = "Shipped"
	OrderStatusOutForDelivery = "Out for delivery"
	OrderStatusDelivered      = "Delivered"
)

// CompletedOrderStatuses are the statuses counted toward revenue.
var CompletedOrderStatuses = []string{"delivered", "completed"}

// IsCompletedOrderStatus reports whether status counts toward revenue.
func IsCompletedOrderStatus(status string) bool {
	normalized := strings.ToLower(strings.TrimSpace(status))
	for _, candidate := range CompletedOrderStatuses {
		if candidate == normalized {
			return true
		}
	}
	return false
}
