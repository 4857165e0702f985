package orders

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/internal/activity"
	product "github.com/angelmondragon/bookstore-backend/internal/products"
	"github.com/angelmondragon/bookstore-backend/internal/testutil"
	"github.com/angelmondragon/bookstore-backend/internal/users"
	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

type fakeCheckout struct {
	params []*stripe.CheckoutSessionParams
	err    error
}

func (f *fakeCheckout) Create(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.params = append(f.params, params)
	id := "cs_test_" + uuid.NewString()[:8]
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

type fixture struct {
	conn     *gorm.DB
	users    *users.Repository
	products *product.Repository
	checkout *fakeCheckout
	svc      Service
	now      time.Time
}

func newFixture(t *testing.T, fee decimal.Decimal) *fixture {
	t.Helper()
	client := testutil.OpenClient(t)
	conn := client.DB()
	recorder, err := activity.NewService(activity.NewRepository(conn), nil)
	require.NoError(t, err)

	f := &fixture{
		conn:     conn,
		users:    users.NewRepository(conn),
		products: product.NewRepository(conn),
		checkout: &fakeCheckout{},
		now:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Users:       f.users,
		Products:    f.products,
		Tx:          client,
		Activity:    recorder,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), nil),
		Checkout:    f.checkout,
		DeliveryFee: fee,
		ClientURL:   "https://books.example.com/",
		Clock:       func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) createUser(t *testing.T, email string, role enums.Role) *models.User {
	t.Helper()
	user, err := f.users.Create(context.Background(), users.CreateUserDTO{
		Name:  "Reader " + email,
		Email: email,
		Role:  role,
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) createProduct(t *testing.T, name, price string) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:     name,
		Category: "fiction",
		Price:    decimal.RequireFromString(price),
		Images:   types.StringList{"https://img.example.com/" + name + ".jpg"},
	}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p
}

func (f *fixture) fillCart(t *testing.T, userID uuid.UUID, items ...types.CartItem) {
	t.Helper()
	require.NoError(t, f.users.SaveCart(context.Background(), userID, types.NewCart(items...)))
}

func (f *fixture) outboxEvents(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", eventType).Find(&rows).Error)
	return rows
}

func (f *fixture) activities(t *testing.T) []models.Activity {
	t.Helper()
	var rows []models.Activity
	require.NoError(t, f.conn.Order("created_at ASC").Find(&rows).Error)
	return rows
}

func testAddress() types.ShippingAddress {
	return types.ShippingAddress{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Street:    "12 Analytical Way",
		City:      "London",
		ZipCode:   "N1 9GU",
		Country:   "UK",
		Phone:     "+44 20 7946 0000",
	}
}

func TestPlaceOrderSnapshotsAndClearsCart(t *testing.T) {
	f := newFixture(t, decimal.Zero)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com", enums.RoleUser)
	book := f.createProduct(t, "dune", "10")
	f.fillCart(t, user.ID, types.CartItem{ProductID: book.ID, Quantity: 2})

	order, err := f.svc.PlaceOrder(ctx, user.ID, PlaceOrderInput{
		Items:   []LineInput{{ProductID: book.ID, Quantity: 2}},
		Address: testAddress(),
	})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, order.Amount, 0.001)
	assert.Equal(t, enums.OrderStatusPlaced, order.Status)
	assert.False(t, order.Payment)
	assert.Equal(t, "COD", order.PaymentMethod)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "dune", order.Items[0].Name)
	assert.Equal(t, "https://img.example.com/dune.jpg", order.Items[0].Image)

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Cart.Count())

	events := f.outboxEvents(t, enums.EventOrderPlaced)
	require.Len(t, events, 1)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload payloads.OrderPlacedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, order.ID, payload.OrderID)
	assert.Equal(t, "20.00", payload.Amount)
	assert.Equal(t, 2, payload.ItemCount)

	acts := f.activities(t)
	require.Len(t, acts, 1)
	assert.Equal(t, "placed", acts[0].Action)
	assert.Equal(t, enums.ActivityStatusSuccess, acts[0].Status)
}

func TestPlaceOrderKeepsSnapshotWhenPriceChanges(t *testing.T) {
	f := newFixture(t, decimal.RequireFromString("4.50"))
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com", enums.RoleUser)
	book := f.createProduct(t, "dune", "10")

	order, err := f.svc.PlaceOrder(ctx, user.ID, PlaceOrderInput{
		Items: []LineInput{
			{ProductID: book.ID, Quantity: 1},
			{ProductID: book.ID, Quantity: 2},
		},
		Address: testAddress(),
	})
	require.NoError(t, err)
	assert.InDelta(t, 34.5, order.Amount, 0.001)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)

	book.Price = decimal.NewFromInt(99)
	require.NoError(t, f.products.Save(ctx, book))

	list, err := f.svc.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.InDelta(t, 10.0, list[0].Items[0].Price, 0.001)
	assert.InDelta(t, 34.5, list[0].Amount, 0.001)
}

func TestPlaceOrderFailureRecordsActivity(t *testing.T) {
	f := newFixture(t, decimal.Zero)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com", enums.RoleUser)
	book := f.createProduct(t, "dune", "10")
	f.fillCart(t, user.ID, types.CartItem{ProductID: book.ID, Quantity: 1})

	_, err := f.svc.PlaceOrder(ctx, user.ID, PlaceOrderInput{
		Items:   []LineInput{{ProductID: uuid.New(), Quantity: 1}},
		Address: testAddress(),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.PlaceOrder(ctx, user.ID, PlaceOrderInput{Address: testAddress()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	noCity := testAddress()
	noCity.City = ""
	_, err = f.svc.PlaceOrder(ctx, user.ID, PlaceOrderInput{
		Items:   []LineInput{{ProductID: book.ID, Quantity: 1}},
		Address: noCity,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Cart.Count())

	acts := f.activities(t)
	require.Len(t, acts, 3)
	for _, act := range acts {
		assert.Equal(t, "failed to place", act.Action)
		assert.Equal(t, enums.ActivityStatusFailed, act.Status)
	}
	assert.Empty(t, f.outboxEvents(t, enums.EventOrderPlaced))
}

func TestStripeCheckoutRoundTrip(t *testing.T) {
	f := newFixture(t, decimal.RequireFromString("2"))
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com", enums.RoleUser)
	book := f.createProduct(t, "dune", "12.345")
	other := f.createProduct(t, "cosmos", "7")
	f.fillCart(t, user.ID, types.CartItem{ProductID: book.ID, Quantity: 1})

	started, err := f.svc.StartStripeCheckout(ctx, user.ID, PlaceOrderInput{
		Items: []LineInput{
			{ProductID: book.ID, Quantity: 2},
			{ProductID: other.ID, Quantity: 1},
		},
		Address: testAddress(),
	})
	require.NoError(t, err)
	assert.Contains(t, started.URL, started.SessionID)

	require.Len(t, f.checkout.params, 1)
	params := f.checkout.params[0]
	assert.Equal(t, "https://books.example.com/success", *params.SuccessURL)
	assert.Equal(t, "https://books.example.com/cancel", *params.CancelURL)
	assert.Equal(t, "ada@example.com", *params.CustomerEmail)
	require.Len(t, params.LineItems, 3)
	assert.Equal(t, int64(1235), *params.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "usd", *params.LineItems[0].PriceData.Currency)
	assert.Equal(t, int64(2), *params.LineItems[0].Quantity)
	assert.Equal(t, "Delivery fee", *params.LineItems[2].PriceData.ProductData.Name)
	assert.Equal(t, int64(200), *params.LineItems[2].PriceData.UnitAmount)
	for _, value := range params.Metadata {
		assert.LessOrEqual(t, len(value), 500)
	}

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count, "no order before payment")

	session := CompletedSession{
		ID:          started.SessionID,
		Metadata:    params.Metadata,
		AmountTotal: 3370,
	}
	order, created, err := f.svc.CompleteStripeCheckout(ctx, session)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, order.Payment)
	assert.Equal(t, "Stripe", order.PaymentMethod)
	assert.InDelta(t, 33.70, order.Amount, 0.001)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "dune", order.Items[0].Name)
	assert.InDelta(t, 12.35, order.Items[0].Price, 0.001)
	assert.Equal(t, testAddress(), order.Address)

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Cart.Count())

	replay, created, err := f.svc.CompleteStripeCheckout(ctx, session)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, order.ID, replay.ID)

	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, f.outboxEvents(t, enums.EventOrderPlaced), 1)
}

func TestCompleteStripeCheckoutRejectsBadMetadata(t *testing.T) {
	f := newFixture(t, decimal.Zero)

	_, _, err := f.svc.CompleteStripeCheckout(context.Background(), CompletedSession{
		ID:       "cs_test_bad",
		Metadata: map[string]string{"userId": "nope"},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, _, err = f.svc.CompleteStripeCheckout(context.Background(), CompletedSession{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStartStripeCheckoutDependencyErrors(t *testing.T) {
	f := newFixture(t, decimal.Zero)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com", enums.RoleUser)
	book := f.createProduct(t, "dune", "10")
	f.checkout.err = errors.New("stripe down")

	_, err := f.svc.StartStripeCheckout(ctx, user.ID, PlaceOrderInput{
		Items:   []LineInput{{ProductID: book.ID, Quantity: 1}},
		Address: testAddress(),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = f.svc.StartStripeCheckout(ctx, user.ID, PlaceOrderInput{Address: testAddress()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateStatusTracksAndEmits(t *testing.T) {
	f := newFixture(t, decimal.Zero)
	ctx := context.Background()
	admin := f.createUser(t, "admin@example.com", enums.RoleAdmin)
	user := f.createUser(t, "ada@example.com", enums.RoleUser)
	book := f.createProduct(t, "dune", "10")

	placed, err := f.svc.PlaceOrder(ctx, user.ID, PlaceOrderInput{
		Items:   []LineInput{{ProductID: book.ID, Quantity: 1}},
		Address: testAddress(),
	})
	require.NoError(t, err)

	tracking := " 1Z999AA10123456784 "
	updated, err := f.svc.UpdateStatus(ctx, admin.ID, UpdateStatusInput{
		OrderID:        placed.ID,
		Status:         enums.OrderStatusShipped,
		TrackingNumber: &tracking,
	})
	require.NoError(t, err)
	assert.Equal(t, "Shipped", updated.Status)
	require.NotNil(t, updated.TrackingNumber)
	assert.Equal(t, "1Z999AA10123456784", *updated.TrackingNumber)
	require.Len(t, updated.Tracking, 1)
	assert.Equal(t, "Shipped", updated.Tracking[0].Status)
	assert.True(t, updated.Tracking[0].Time.Equal(f.now))

	f.now = f.now.Add(time.Hour)
	updated, err = f.svc.UpdateStatus(ctx, admin.ID, UpdateStatusInput{OrderID: placed.ID, Status: "Delivered"})
	require.NoError(t, err)
	assert.Len(t, updated.Tracking, 2)
	require.NotNil(t, updated.TrackingNumber)

	events := f.outboxEvents(t, enums.EventOrderStatusChanged)
	require.Len(t, events, 2)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload payloads.OrderStatusChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, placed.ID, payload.OrderID)
	assert.Equal(t, user.ID, payload.CustomerID)
	assert.Equal(t, admin.ID, payload.ChangedBy)

	acts := f.activities(t)
	require.Len(t, acts, 3)
	assert.Equal(t, "admin@example.com", acts[1].Actor)
	assert.Contains(t, acts[1].Action, `"Shipped"`)

	_, err = f.svc.UpdateStatus(ctx, admin.ID, UpdateStatusInput{OrderID: uuid.New(), Status: "Packing"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.UpdateStatus(ctx, admin.ID, UpdateStatusInput{OrderID: placed.ID, Status: "  "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListOrdersNewestFirst(t *testing.T) {
	f := newFixture(t, decimal.Zero)
	ctx := context.Background()
	ada := f.createUser(t, "ada@example.com", enums.RoleUser)
	bob := f.createUser(t, "bob@example.com", enums.RoleUser)
	book := f.createProduct(t, "dune", "10")

	base := time.Now().Add(-time.Hour)
	for i, userID := range []uuid.UUID{ada.ID, bob.ID, ada.ID} {
		placed, err := f.svc.PlaceOrder(ctx, userID, PlaceOrderInput{
			Items:   []LineInput{{ProductID: book.ID, Quantity: i + 1}},
			Address: testAddress(),
		})
		require.NoError(t, err)
		require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", placed.ID).
			UpdateColumn("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 3, all[0].Items[0].Quantity)

	mine, err := f.svc.ListForUser(ctx, ada.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, 3, mine[0].Items[0].Quantity)
	assert.Equal(t, 1, mine[1].Items[0].Quantity)
}

func TestCompletedRevenue(t *testing.T) {
	f := newFixture(t, decimal.Zero)
	ctx := context.Background()
	repo := NewRepository(f.conn)

	total, err := repo.CompletedRevenue(ctx)
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	for _, tc := range []struct {
		status string
		amount string
	}{
		{"Delivered", "20.50"},
		{"completed", "9.50"},
		{"Shipped", "100"},
	} {
		require.NoError(t, repo.Create(ctx, &models.Order{
			Items:         types.OrderItems{},
			Amount:        decimal.RequireFromString(tc.amount),
			Address:       testAddress(),
			Status:        tc.status,
			PaymentMethod: enums.PaymentMethodCOD,
		}))
	}

	total, err = repo.CompletedRevenue(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(30)), total.String())

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
