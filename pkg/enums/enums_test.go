package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" Admin ")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, role)

	_, err = ParseRole("owner")
	require.Error(t, err)
	require.False(t, Role("owner").IsValid())
}

func TestIsCompletedOrderStatus(t *testing.T) {
	require.True(t, IsCompletedOrderStatus(OrderStatusDelivered))
	require.True(t, IsCompletedOrderStatus("completed"))
	require.False(t, IsCompletedOrderStatus(OrderStatusShipped))
}

func TestParseOutboxEventType(t *testing.T) {
	evt, err := ParseOutboxEventType("order_status_changed")
	require.NoError(t, err)
	require.Equal(t, EventOrderStatusChanged, evt)

	_, err = ParseOutboxEventType("order_created")
	require.Error(t, err)
}

func TestPaymentMethodValues(t *testing.T) {
	require.True(t, PaymentMethodCOD.IsValid())
	require.True(t, PaymentMethodStripe.IsValid())
	require.False(t, PaymentMethod("cash").IsValid())
}
