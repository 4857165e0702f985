package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/bookstore-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		name, kind, in, want string
	}{
		{"short subscription", "subscriptions", "orders", "projects/p1/subscriptions/orders"},
		{"qualified subscription", "subscriptions", "projects/other/subscriptions/x", "projects/other/subscriptions/x"},
		{"short topic", "topics", " emails ", "projects/p1/topics/emails"},
		{"blank", "topics", "  ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, resourceName("p1", tc.kind, tc.in))
		})
	}

	assert.Empty(t, resourceName("", "topics", "emails"))
}

func TestSubscriptionNamesSkipsBlank(t *testing.T) {
	names := subscriptionNames(config.PubSubConfig{DomainSubscription: "domain", EmailSubscription: " "})
	assert.Equal(t, []string{"domain"}, names)
}

func TestClientOptions(t *testing.T) {
	assert.Len(t, clientOptions(config.GCPConfig{}), 0)
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: "{}"}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/key.json"}), 1)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Subscription("x"))
	assert.Nil(t, c.Publisher("x"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
