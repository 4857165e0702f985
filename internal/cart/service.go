package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	product "github.com/angelmondragon/bookstore-backend/internal/products"
	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

type userStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SaveCart(ctx context.Context, id uuid.UUID, cart types.CartDocument) error
}

type productCatalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// Service manages the server-side cart stored on each user. Every write
// cleans the cart and overwrites the column; concurrent writers race and the
// last one wins.
type Service interface {
	AddItem(ctx context.Context, userID, productID uuid.UUID) (*CartDTO, error)
	UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartDTO, error)
	GetCart(ctx context.Context, userID uuid.UUID) ([]LineDTO, error)
	SyncCart(ctx context.Context, userID uuid.UUID, items []SyncItem) (*CartDTO, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) error
}

type service struct {
	users    userStore
	products productCatalog
}

// NewService builds a cart service backed by the provided stack.
func NewService(users userStore, products productCatalog) (Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user store required")
	}
	if products == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	return &service{users: users, products: products}, nil
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID) (*CartDTO, error) {
	if userID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "User ID and Product ID are required")
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	known, err := s.lookup(ctx, append(cart.ProductIDs(), productID))
	if err != nil {
		return nil, err
	}
	if _, ok := known[productID]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Product not found")
	}

	cart.Add(productID, 1)
	return s.save(ctx, userID, cart, known)
}

func (s *service) UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartDTO, error) {
	if userID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "User ID and Product ID are required")
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cart.Set(productID, quantity) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Item not found in cart")
	}

	known, err := s.lookup(ctx, cart.ProductIDs())
	if err != nil {
		return nil, err
	}
	return s.save(ctx, userID, cart, known)
}

// GetCart expands each line to its product. Lines whose product has been
// deleted are omitted but left in storage until the next write.
func (s *service) GetCart(ctx context.Context, userID uuid.UUID) ([]LineDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Valid User ID is required")
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	known, err := s.lookup(ctx, cart.ProductIDs())
	if err != nil {
		return nil, err
	}

	lines := make([]LineDTO, 0, len(cart.Items))
	for _, item := range cart.Items {
		p, ok := known[item.ProductID]
		if !ok || item.Quantity <= 0 {
			continue
		}
		lines = append(lines, LineDTO{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Product:   product.FromModel(&p),
		})
	}
	return lines, nil
}

// SyncCart adds the quantities of a client cart onto the stored one. Lines
// with a malformed id, a non-positive quantity or an unknown product are
// skipped.
func (s *service) SyncCart(ctx context.Context, userID uuid.UUID, items []SyncItem) (*CartDTO, error) {
	if userID == uuid.Nil || items == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid sync data")
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	incoming := make([]types.CartItem, 0, len(items))
	for _, item := range items {
		id, err := uuid.Parse(item.ProductID)
		if err != nil || id == uuid.Nil || item.Quantity <= 0 {
			continue
		}
		incoming = append(incoming, types.CartItem{ProductID: id, Quantity: item.Quantity})
	}

	ids := cart.ProductIDs()
	for _, item := range incoming {
		ids = append(ids, item.ProductID)
	}
	known, err := s.lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, item := range incoming {
		if _, ok := known[item.ProductID]; !ok {
			continue
		}
		cart.Add(item.ProductID, item.Quantity)
	}
	return s.save(ctx, userID, cart, known)
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	if userID == uuid.Nil || productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "User ID and Product ID are required")
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	cart.Remove(productID)
	cart.Clean(nil)
	return s.persist(ctx, userID, cart)
}

// load returns the user's cart in items form.
func (s *service) load(ctx context.Context, userID uuid.UUID) (types.CartDocument, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.CartDocument{}, pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
		}
		return types.CartDocument{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user.Cart.MigrateLegacy(), nil
}

func (s *service) lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	known, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart products")
	}
	return known, nil
}

func (s *service) save(ctx context.Context, userID uuid.UUID, cart types.CartDocument, known map[uuid.UUID]models.Product) (*CartDTO, error) {
	cart.Clean(func(id uuid.UUID) bool {
		_, ok := known[id]
		return ok
	})
	if err := s.persist(ctx, userID, cart); err != nil {
		return nil, err
	}
	return toCartDTO(cart), nil
}

func (s *service) persist(ctx context.Context, userID uuid.UUID, cart types.CartDocument) error {
	if err := s.users.SaveCart(ctx, userID, cart); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart")
	}
	return nil
}
