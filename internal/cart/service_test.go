package cart

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	product "github.com/angelmondragon/bookstore-backend/internal/products"
	"github.com/angelmondragon/bookstore-backend/internal/testutil"
	"github.com/angelmondragon/bookstore-backend/internal/users"
	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

type fixture struct {
	conn  *gorm.DB
	users *users.Repository
	svc   Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := testutil.OpenDB(t)
	userRepo := users.NewRepository(conn)
	svc, err := NewService(userRepo, product.NewRepository(conn))
	require.NoError(t, err)
	return fixture{conn: conn, users: userRepo, svc: svc}
}

func (f fixture) createUser(t *testing.T) uuid.UUID {
	t.Helper()
	user, err := f.users.Create(context.Background(), users.CreateUserDTO{
		Name:  "Reader",
		Email: fmt.Sprintf("reader-%s@example.com", uuid.NewString()[:8]),
	})
	require.NoError(t, err)
	return user.ID
}

func (f fixture) createProduct(t *testing.T, name string, price int64) uuid.UUID {
	t.Helper()
	p := &models.Product{
		Name:     name,
		Category: "fiction",
		Price:    decimal.NewFromInt(price),
		Images:   types.StringList{"https://img.example.com/" + name + ".jpg"},
	}
	require.NoError(t, product.NewRepository(f.conn).Create(context.Background(), p))
	return p.ID
}

func (f fixture) storedCart(t *testing.T, userID uuid.UUID) types.CartDocument {
	t.Helper()
	user, err := f.users.FindByID(context.Background(), userID)
	require.NoError(t, err)
	return user.Cart
}

func TestAddItemIncrementsQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t)
	bookID := f.createProduct(t, "dune", 10)

	_, err := f.svc.AddItem(ctx, userID, bookID)
	require.NoError(t, err)
	cart, err := f.svc.AddItem(ctx, userID, bookID)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, 2, cart.Count)
	assert.Equal(t, 2, f.storedCart(t, userID).Count())
}

func TestAddItemUnknownProductLeftOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t)
	bookID := f.createProduct(t, "dune", 10)

	_, err := f.svc.AddItem(ctx, userID, bookID)
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, userID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	stored := f.storedCart(t, userID)
	assert.Equal(t, []uuid.UUID{bookID}, stored.ProductIDs())
}

func TestAddItemValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, uuid.Nil, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.AddItem(ctx, uuid.New(), f.createProduct(t, "dune", 10))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAddItemMigratesLegacyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t)
	legacyID := f.createProduct(t, "legacy", 5)
	bookID := f.createProduct(t, "dune", 10)

	legacy := fmt.Sprintf(`{"%s": 3, "not-an-id": 1}`, legacyID)
	require.NoError(t, f.conn.Exec("UPDATE users SET cart = ? WHERE id = ?", legacy, userID).Error)
	require.True(t, f.storedCart(t, userID).IsLegacy())

	cart, err := f.svc.AddItem(ctx, userID, bookID)
	require.NoError(t, err)
	assert.Equal(t, []types.CartItem{
		{ProductID: legacyID, Quantity: 3},
		{ProductID: bookID, Quantity: 1},
	}, cart.Items)

	stored := f.storedCart(t, userID)
	assert.False(t, stored.IsLegacy())
	assert.Equal(t, 4, stored.Count())
}

func TestAddItemDropsDeletedProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t)
	goneID := f.createProduct(t, "gone", 5)
	bookID := f.createProduct(t, "dune", 10)

	_, err := f.svc.AddItem(ctx, userID, goneID)
	require.NoError(t, err)
	require.NoError(t, product.NewRepository(f.conn).Delete(ctx, goneID))

	cart, err := f.svc.AddItem(ctx, userID, bookID)
	require.NoError(t, err)
	assert.Equal(t, []types.CartItem{{ProductID: bookID, Quantity: 1}}, cart.Items)
}

func TestUpdateItemIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t)
	bookID := f.createProduct(t, "dune", 10)
	_, err := f.svc.AddItem(ctx, userID, bookID)
	require.NoError(t, err)

	first, err := f.svc.UpdateItem(ctx, userID, bookID, 4)
	require.NoError(t, err)
	second, err := f.svc.UpdateItem(ctx, userID, bookID, 4)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 4, f.storedCart(t, userID).Count())
}

func TestUpdateItemQuantityBoundaries(t *testing.T) {
	cases := []struct {
		quantity int
		kept     bool
	}{
		{quantity: 0, kept: false},
		{quantity: -1, kept: false},
		{quantity: 1, kept: true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("qty_%d", tc.quantity), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			userID := f.createUser(t)
			bookID := f.createProduct(t, "dune", 10)
			_, err := f.svc.AddItem(ctx, userID, bookID)
			require.NoError(t, err)
			_, err = f.svc.AddItem(ctx, userID, bookID)
			require.NoError(t, err)

			cart, err := f.svc.UpdateItem(ctx, userID, bookID, tc.quantity)
			require.NoError(t, err)
			if tc.kept {
				assert.Equal(t, []types.CartItem{{ProductID: bookID, Quantity: 1}}, cart.Items)
			} else {
				assert.Empty(t, cart.Items)
			}
		})
	}
}

func TestUpdateItemMissingLine(t *testing.T) {
	f := newFixture(t)
	userID := f.createUser(t)
	bookID := f.createProduct(t, "dune", 10)

	_, err := f.svc.UpdateItem(context.Background(), userID, bookID, 2)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetCartExpandsProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t)
	bookID := f.createProduct(t, "dune", 10)
	goneID := f.createProduct(t, "gone", 5)
	for _, id := range []uuid.UUID{bookID, bookID, goneID} {
		_, err := f.svc.AddItem(ctx, userID, id)
		require.NoError(t, err)
	}
	require.NoError(t, product.NewRepository(f.conn).Delete(ctx, goneID))

	lines, err := f.svc.GetCart(ctx, userID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	require.NotNil(t, lines[0].Product)
	assert.Equal(t, "dune", lines[0].Product.Name)
	assert.InDelta(t, 10.0, lines[0].Product.Price, 0.001)

	empty, err := f.svc.GetCart(ctx, f.createUser(t))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSyncCartSumsAndSkipsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t)
	bookID := f.createProduct(t, "dune", 10)
	otherID := f.createProduct(t, "cosmos", 20)
	_, err := f.svc.AddItem(ctx, userID, bookID)
	require.NoError(t, err)

	cart, err := f.svc.SyncCart(ctx, userID, []SyncItem{
		{ProductID: bookID.String(), Quantity: 2},
		{ProductID: otherID.String(), Quantity: 1},
		{ProductID: "garbage", Quantity: 5},
		{ProductID: uuid.NewString(), Quantity: 1},
		{ProductID: otherID.String(), Quantity: 0},
		{ProductID: otherID.String(), Quantity: -3},
	})
	require.NoError(t, err)
	assert.Equal(t, []types.CartItem{
		{ProductID: bookID, Quantity: 3},
		{ProductID: otherID, Quantity: 1},
	}, cart.Items)
	assert.Equal(t, 4, f.storedCart(t, userID).Count())

	_, err = f.svc.SyncCart(ctx, userID, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRemoveItemIsUnconditional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t)
	bookID := f.createProduct(t, "dune", 10)
	_, err := f.svc.AddItem(ctx, userID, bookID)
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveItem(ctx, userID, bookID))
	require.NoError(t, f.svc.RemoveItem(ctx, userID, bookID))
	assert.Zero(t, f.storedCart(t, userID).Count())

	err = f.svc.RemoveItem(ctx, uuid.New(), bookID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

// staleUsers serves a user that has since been deleted from the table.
type staleUsers struct {
	*users.Repository
}

func (s staleUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return &models.User{ID: id, Cart: types.NewCart()}, nil
}

func TestAddItemForUserDeletedMidRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookID := f.createProduct(t, "dune", 10)

	svc, err := NewService(staleUsers{f.users}, product.NewRepository(f.conn))
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, uuid.New(), bookID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = f.users.SaveCart(ctx, uuid.New(), types.NewCart())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
