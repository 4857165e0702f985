package storefront

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bookstore-backend/internal/testutil"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

type fakeAPI struct {
	loginErr   error
	syncErr    error
	serverCart types.CartDocument
	synced     [][]types.CartItem
	logouts    []string
	tokens     []string
	expiresAt  time.Time
}

func (f *fakeAPI) Login(_ context.Context, email, _ string) (*LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	expiresAt := f.expiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &LoginResult{
		Token:     "token-" + email,
		ExpiresAt: expiresAt,
		User:      User{ID: uuid.New(), Email: email, Role: enums.RoleUser},
	}, nil
}

func (f *fakeAPI) Logout(_ context.Context, token string) error {
	f.logouts = append(f.logouts, token)
	return nil
}

func (f *fakeAPI) SyncCart(_ context.Context, token string, items []types.CartItem) ([]types.CartItem, error) {
	f.tokens = append(f.tokens, token)
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	f.synced = append(f.synced, items)
	for _, item := range items {
		f.serverCart.Add(item.ProductID, item.Quantity)
	}
	return append([]types.CartItem{}, f.serverCart.Items...), nil
}

func (f *fakeAPI) AddItem(_ context.Context, token string, productID uuid.UUID) ([]types.CartItem, error) {
	f.tokens = append(f.tokens, token)
	f.serverCart.Add(productID, 1)
	return append([]types.CartItem{}, f.serverCart.Items...), nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, token string, productID uuid.UUID, quantity int) ([]types.CartItem, error) {
	f.tokens = append(f.tokens, token)
	f.serverCart.Set(productID, quantity)
	return append([]types.CartItem{}, f.serverCart.Items...), nil
}

func (f *fakeAPI) RemoveItem(_ context.Context, token string, productID uuid.UUID) error {
	f.tokens = append(f.tokens, token)
	f.serverCart.Remove(productID)
	return nil
}

func newTestSession(t *testing.T, api API, store StateStore, now time.Time) *Session {
	t.Helper()
	session, err := NewSession(SessionParams{
		API:    api,
		Store:  store,
		Logger: logger.New(logger.Options{ServiceName: "storefront-test", Output: io.Discard}),
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)
	return session
}

func fileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "state", "session.json"))
	require.NoError(t, err)
	return store
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestGuestCartStaysLocal(t *testing.T) {
	api := &fakeAPI{}
	session := newTestSession(t, api, fileStore(t), testNow)
	book := uuid.New()

	require.NoError(t, session.AddItem(context.Background(), book))
	require.NoError(t, session.AddItem(context.Background(), book))
	require.NoError(t, session.UpdateItem(context.Background(), uuid.New(), 3))

	state := session.State()
	require.Equal(t, []types.CartItem{{ProductID: book, Quantity: 2}}, state.Cart.Items)
	require.Empty(t, api.tokens)
}

func TestGuestUpdateToZeroRemovesLine(t *testing.T) {
	session := newTestSession(t, &fakeAPI{}, fileStore(t), testNow)
	book := uuid.New()

	require.NoError(t, session.AddItem(context.Background(), book))
	require.NoError(t, session.UpdateItem(context.Background(), book, 0))

	require.Empty(t, session.State().Cart.Items)
}

func TestLoginMergesGuestCartIntoServerCart(t *testing.T) {
	stored := uuid.New()
	guest := uuid.New()
	api := &fakeAPI{serverCart: types.NewCart(types.CartItem{ProductID: stored, Quantity: 1})}
	store := fileStore(t)
	session := newTestSession(t, api, store, testNow)

	require.NoError(t, session.AddItem(context.Background(), guest))
	user, err := session.Login(context.Background(), "reader@example.com", "secret123")
	require.NoError(t, err)
	require.Equal(t, "reader@example.com", user.Email)

	state := session.State()
	require.True(t, session.Authenticated())
	require.False(t, state.PendingSync)
	require.Len(t, api.synced, 1)
	require.Equal(t, []types.CartItem{{ProductID: guest, Quantity: 1}}, api.synced[0])
	require.ElementsMatch(t, []types.CartItem{
		{ProductID: stored, Quantity: 1},
		{ProductID: guest, Quantity: 1},
	}, state.Cart.Items)

	reloaded := newTestSession(t, api, store, testNow)
	require.NoError(t, reloaded.Load(context.Background()))
	require.Equal(t, "token-reader@example.com", reloaded.State().Token)
	require.Len(t, reloaded.State().Cart.Items, 2)
}

func TestLoginKeepsGuestCartWhenSyncFails(t *testing.T) {
	guest := uuid.New()
	api := &fakeAPI{syncErr: errors.New("timeout")}
	session := newTestSession(t, api, fileStore(t), testNow)
	require.NoError(t, session.AddItem(context.Background(), guest))

	_, err := session.Login(context.Background(), "reader@example.com", "secret123")
	require.NoError(t, err)

	state := session.State()
	require.True(t, state.PendingSync)
	require.Equal(t, []types.CartItem{{ProductID: guest, Quantity: 1}}, state.Cart.Items)

	api.syncErr = nil
	require.NoError(t, session.Reconcile(context.Background()))
	require.False(t, session.State().PendingSync)
	require.Len(t, api.synced, 1)
}

func TestLoginFailureLeavesStateUntouched(t *testing.T) {
	api := &fakeAPI{loginErr: pkgerrors.New(pkgerrors.CodeUnauthorized, "Invalid credentials")}
	session := newTestSession(t, api, fileStore(t), testNow)

	_, err := session.Login(context.Background(), "reader@example.com", "wrong")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	require.False(t, session.Authenticated())
}

func TestSignedInCartChangesGoToServer(t *testing.T) {
	api := &fakeAPI{}
	session := newTestSession(t, api, fileStore(t), testNow)
	_, err := session.Login(context.Background(), "reader@example.com", "secret123")
	require.NoError(t, err)
	book := uuid.New()

	require.NoError(t, session.AddItem(context.Background(), book))
	require.NoError(t, session.UpdateItem(context.Background(), book, 4))
	require.Equal(t, []types.CartItem{{ProductID: book, Quantity: 4}}, session.State().Cart.Items)

	require.NoError(t, session.RemoveItem(context.Background(), book))
	require.Empty(t, session.State().Cart.Items)
	require.Empty(t, api.serverCart.Items)
	for _, token := range api.tokens {
		require.Equal(t, "token-reader@example.com", token)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	api := &fakeAPI{}
	store := fileStore(t)
	session := newTestSession(t, api, store, testNow)
	_, err := session.Login(context.Background(), "reader@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, session.AddItem(context.Background(), uuid.New()))

	require.NoError(t, session.Logout(context.Background()))

	require.False(t, session.Authenticated())
	require.Empty(t, session.State().Cart.Items)
	require.Equal(t, []string{"token-reader@example.com"}, api.logouts)
	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrNoState)
}

func TestLoadDropsExpiredToken(t *testing.T) {
	store := fileStore(t)
	book := uuid.New()
	require.NoError(t, store.Save(context.Background(), State{
		Token:     "stale",
		ExpiresAt: testNow.Add(-time.Minute),
		User:      &User{Email: "reader@example.com"},
		Cart:      types.NewCart(types.CartItem{ProductID: book, Quantity: 2}),
	}))

	session := newTestSession(t, &fakeAPI{}, store, testNow)
	require.NoError(t, session.Load(context.Background()))

	state := session.State()
	require.Empty(t, state.Token)
	require.Nil(t, state.User)
	require.Empty(t, state.Cart.Items)
}

func TestLoadKeepsUnsyncedGuestCartOnExpiry(t *testing.T) {
	store := fileStore(t)
	book := uuid.New()
	require.NoError(t, store.Save(context.Background(), State{
		Token:       "stale",
		ExpiresAt:   testNow.Add(-time.Minute),
		User:        &User{Email: "reader@example.com"},
		Cart:        types.NewCart(types.CartItem{ProductID: book, Quantity: 2}),
		PendingSync: true,
	}))

	session := newTestSession(t, &fakeAPI{}, store, testNow)
	require.NoError(t, session.Load(context.Background()))

	state := session.State()
	require.Empty(t, state.Token)
	require.False(t, state.PendingSync)
	require.Equal(t, []types.CartItem{{ProductID: book, Quantity: 2}}, state.Cart.Items)
}

func TestReloginAfterExpiryDoesNotDoubleCart(t *testing.T) {
	book := uuid.New()
	api := &fakeAPI{expiresAt: testNow.Add(7 * 24 * time.Hour)}
	store := fileStore(t)

	first := newTestSession(t, api, store, testNow)
	_, err := first.Login(context.Background(), "reader@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, first.AddItem(context.Background(), book))
	require.NoError(t, first.AddItem(context.Background(), book))

	later := testNow.Add(8 * 24 * time.Hour)
	api.expiresAt = later.Add(7 * 24 * time.Hour)
	second := newTestSession(t, api, store, later)
	require.NoError(t, second.Load(context.Background()))
	require.False(t, second.Authenticated())

	_, err = second.Login(context.Background(), "reader@example.com", "secret123")
	require.NoError(t, err)

	want := []types.CartItem{{ProductID: book, Quantity: 2}}
	require.Equal(t, want, api.serverCart.Items)
	require.Equal(t, want, second.State().Cart.Items)
	require.False(t, second.State().PendingSync)
}

func TestLoginWhileSignedInKeepsServerCart(t *testing.T) {
	book := uuid.New()
	api := &fakeAPI{}
	session := newTestSession(t, api, fileStore(t), testNow)
	_, err := session.Login(context.Background(), "reader@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, session.AddItem(context.Background(), book))

	_, err = session.Login(context.Background(), "reader@example.com", "secret123")
	require.NoError(t, err)

	want := []types.CartItem{{ProductID: book, Quantity: 1}}
	require.Equal(t, want, api.serverCart.Items)
	require.Equal(t, want, session.State().Cart.Items)
}

func TestGuestEditsAfterLapseMergeOnlyNewLines(t *testing.T) {
	book := uuid.New()
	extra := uuid.New()
	api := &fakeAPI{expiresAt: testNow.Add(time.Hour)}
	now := testNow
	session, err := NewSession(SessionParams{
		API:    api,
		Store:  fileStore(t),
		Logger: logger.New(logger.Options{ServiceName: "storefront-test", Output: io.Discard}),
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)

	_, err = session.Login(context.Background(), "reader@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, session.AddItem(context.Background(), book))

	now = testNow.Add(2 * time.Hour)
	require.NoError(t, session.AddItem(context.Background(), extra))
	require.Equal(t, []types.CartItem{{ProductID: extra, Quantity: 1}}, session.State().Cart.Items)

	api.expiresAt = now.Add(time.Hour)
	_, err = session.Login(context.Background(), "reader@example.com", "secret123")
	require.NoError(t, err)

	require.ElementsMatch(t, []types.CartItem{
		{ProductID: book, Quantity: 1},
		{ProductID: extra, Quantity: 1},
	}, api.serverCart.Items)
}

func TestLoadWithoutSavedStateStartsEmpty(t *testing.T) {
	session := newTestSession(t, &fakeAPI{}, fileStore(t), testNow)
	require.NoError(t, session.Load(context.Background()))
	require.False(t, session.Authenticated())
	require.Empty(t, session.State().Cart.Items)
}

func TestRedisStoreRoundTripAndLegacyCart(t *testing.T) {
	kv := testutil.NewMemoryStore()
	store, err := NewRedisStore(kv, "browser-1", time.Hour)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrNoState)

	book := uuid.New()
	legacy := `{"token":"abc","cart":{"` + book.String() + `":3,"not-a-uuid":1}}`
	require.NoError(t, kv.Set(context.Background(), "storefront:session:browser-1", legacy, 0))

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc", state.Token)
	require.False(t, state.Cart.IsLegacy())
	require.Equal(t, []types.CartItem{{ProductID: book, Quantity: 3}}, state.Cart.Items)

	require.NoError(t, store.Save(context.Background(), state))
	again, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, state.Cart.Items, again.Cart.Items)

	require.NoError(t, store.Clear(context.Background()))
	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrNoState)
}
