package storefront

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

// User is the signed-in account as the storefront remembers it.
type User struct {
	ID     uuid.UUID  `json:"id"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Avatar string     `json:"avatar,omitempty"`
	Role   enums.Role `json:"role"`
}

// State is everything a storefront keeps between page loads. A guest has an
// empty Token and a local Cart; a signed-in shopper's Cart mirrors the server
// unless PendingSync marks it as guest lines not yet pushed.
type State struct {
	Token       string             `json:"token,omitempty"`
	ExpiresAt   time.Time          `json:"expiresAt,omitempty"`
	User        *User              `json:"user,omitempty"`
	Cart        types.CartDocument `json:"cart"`
	PendingSync bool               `json:"pendingSync,omitempty"`
}

// Authenticated reports whether the state holds a token that has not expired.
func (s State) Authenticated(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

func (s State) clone() State {
	out := s
	out.Cart = types.NewCart(s.Cart.MigrateLegacy().Items...)
	if s.User != nil {
		user := *s.User
		out.User = &user
	}
	return out
}

// guestItems returns the cart lines that belong to the shopper rather than
// to a server mirror.
func (s State) guestItems() []types.CartItem {
	if s.Token != "" && !s.PendingSync {
		return nil
	}
	return append([]types.CartItem{}, s.Cart.MigrateLegacy().Items...)
}

// expire ends a lapsed sign-in. The server mirror is dropped; unsynced guest
// lines survive for the next login.
func (s *State) expire() {
	if !s.PendingSync {
		s.Cart = types.NewCart()
	}
	s.signOut()
}

func (s *State) signOut() {
	s.Token = ""
	s.ExpiresAt = time.Time{}
	s.User = nil
	s.PendingSync = false
}
