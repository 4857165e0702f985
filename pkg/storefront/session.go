package storefront

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

type SessionParams struct {
	API    API
	Store  StateStore
	Logger *logger.Logger
	Clock  func() time.Time
}

// Session is the storefront's single owner of token, user and cart. Views
// read it through State and change it through its methods; nothing is
// persisted until Save, which every mutating method calls on success.
type Session struct {
	api   API
	store StateStore
	logg  *logger.Logger
	now   func() time.Time

	mu    sync.Mutex
	state State
}

func NewSession(params SessionParams) (*Session, error) {
	if params.API == nil {
		return nil, errors.New("storefront api is required")
	}
	if params.Store == nil {
		return nil, errors.New("state store is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Session{
		api:   params.API,
		store: params.Store,
		logg:  params.Logger,
		now:   clock,
		state: State{Cart: types.NewCart()},
	}, nil
}

// Load replaces the in-memory state with the saved one. An expired token is
// dropped along with the server mirror it owned.
func (s *Session) Load(ctx context.Context) error {
	state, err := s.store.Load(ctx)
	if errors.Is(err, ErrNoState) {
		s.mu.Lock()
		s.state = State{Cart: types.NewCart()}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}
	if state.Token != "" && !state.Authenticated(s.now()) {
		state.expire()
	}
	state.Cart.Clean(nil)

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return nil
}

func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()
	return s.store.Save(ctx, snapshot)
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Authenticated(s.now())
}

// Login signs in and folds any guest cart into the server cart. A cart that
// only mirrored an earlier sign-in is never pushed again; it is replaced by
// the server's. When the sync call fails the sign-in still stands; guest
// lines are kept and flagged so Reconcile can retry.
func (s *Session) Login(ctx context.Context, email, password string) (*User, error) {
	result, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if result == nil || result.Token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "login response missing token")
	}

	s.mu.Lock()
	if s.state.Token != "" && !s.state.Authenticated(s.now()) {
		s.state.expire()
	}
	guest := s.state.guestItems()
	s.state.Token = result.Token
	s.state.ExpiresAt = result.ExpiresAt
	user := result.User
	s.state.User = &user
	s.state.Cart = types.NewCart(guest...)
	s.state.PendingSync = len(guest) > 0
	pending := s.state.PendingSync
	s.mu.Unlock()

	if pending {
		if err := s.Reconcile(ctx); err != nil {
			s.warn(ctx, "cart sync after login failed", err)
		}
	} else if err := s.refresh(ctx); err != nil {
		s.warn(ctx, "cart refresh after login failed", err)
	}
	if err := s.Save(ctx); err != nil {
		return nil, err
	}
	return &user, nil
}

// Reconcile pushes a pending guest cart to the server and adopts the merged
// result. It is a no-op when nothing is pending.
func (s *Session) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.PendingSync || !s.state.Authenticated(s.now()) {
		s.mu.Unlock()
		return nil
	}
	token := s.state.Token
	local := append([]types.CartItem{}, s.state.Cart.Items...)
	s.mu.Unlock()

	merged, err := s.api.SyncCart(ctx, token, local)
	if err != nil {
		return fmt.Errorf("sync cart: %w", err)
	}

	s.mu.Lock()
	if s.state.Token == token {
		s.state.Cart = types.NewCart(merged...)
		s.state.PendingSync = false
	}
	s.mu.Unlock()
	return nil
}

// refresh adopts the server cart without sending any lines.
func (s *Session) refresh(ctx context.Context) error {
	s.mu.Lock()
	token := s.state.Token
	s.mu.Unlock()

	merged, err := s.api.SyncCart(ctx, token, []types.CartItem{})
	if err != nil {
		return fmt.Errorf("refresh cart: %w", err)
	}

	s.mu.Lock()
	if s.state.Token == token && !s.state.PendingSync {
		s.state.Cart = types.NewCart(merged...)
	}
	s.mu.Unlock()
	return nil
}

// Logout clears the server cookie when possible and always wipes local state,
// cart included.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	token := s.state.Token
	s.state = State{Cart: types.NewCart()}
	s.mu.Unlock()

	if token != "" {
		if err := s.api.Logout(ctx, token); err != nil {
			s.warn(ctx, "server logout failed", err)
		}
	}
	return s.store.Clear(ctx)
}

func (s *Session) AddItem(ctx context.Context, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "Product ID is required")
	}
	return s.mutateCart(ctx,
		func(token string) ([]types.CartItem, error) { return s.api.AddItem(ctx, token, productID) },
		func(cart *types.CartDocument) { cart.Add(productID, 1) },
	)
}

// UpdateItem sets a line's quantity; zero or less removes it.
func (s *Session) UpdateItem(ctx context.Context, productID uuid.UUID, quantity int) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "Product ID is required")
	}
	return s.mutateCart(ctx,
		func(token string) ([]types.CartItem, error) {
			return s.api.UpdateItem(ctx, token, productID, quantity)
		},
		func(cart *types.CartDocument) { cart.Set(productID, quantity) },
	)
}

func (s *Session) RemoveItem(ctx context.Context, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "Product ID is required")
	}
	return s.mutateCart(ctx,
		func(token string) ([]types.CartItem, error) {
			if err := s.api.RemoveItem(ctx, token, productID); err != nil {
				return nil, err
			}
			return nil, errKeepLocal
		},
		func(cart *types.CartDocument) { cart.Remove(productID) },
	)
}

// ClearCart empties the local shadow, e.g. after the server cleared the cart
// on checkout.
func (s *Session) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	s.state.Cart = types.NewCart()
	s.state.PendingSync = false
	s.mu.Unlock()
	return s.Save(ctx)
}

var errKeepLocal = errors.New("apply local change")

// mutateCart sends signed-in changes to the server and adopts its cart;
// guests change the local cart only.
func (s *Session) mutateCart(ctx context.Context, remote func(token string) ([]types.CartItem, error), local func(*types.CartDocument)) error {
	s.mu.Lock()
	authenticated := s.state.Authenticated(s.now())
	if !authenticated && s.state.Token != "" {
		s.state.expire()
	}
	token := s.state.Token
	s.mu.Unlock()

	if authenticated {
		items, err := remote(token)
		switch {
		case errors.Is(err, errKeepLocal):
			s.applyLocal(local)
		case err != nil:
			return err
		default:
			s.mu.Lock()
			s.state.Cart = types.NewCart(items...)
			s.mu.Unlock()
		}
		return s.Save(ctx)
	}

	s.applyLocal(local)
	return s.Save(ctx)
}

func (s *Session) applyLocal(local func(*types.CartDocument)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.state.Cart.MigrateLegacy()
	local(&cart)
	cart.Clean(nil)
	s.state.Cart = cart
}

func (s *Session) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}
