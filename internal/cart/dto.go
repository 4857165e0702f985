package cart

import (
	"github.com/google/uuid"

	product "github.com/angelmondragon/bookstore-backend/internal/products"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

// SyncItem is one line of a client-side cart. ProductID stays a string so a
// malformed id skips that line instead of failing the whole request.
type SyncItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// LineDTO is a cart line expanded to its catalog record.
type LineDTO struct {
	ProductID uuid.UUID           `json:"productId"`
	Quantity  int                 `json:"quantity"`
	Product   *product.ProductDTO `json:"product"`
}

// CartDTO is the cart as stored on the user.
type CartDTO struct {
	Items []types.CartItem `json:"items"`
	Count int              `json:"count"`
}

func toCartDTO(cart types.CartDocument) *CartDTO {
	items := cart.Items
	if items == nil {
		items = []types.CartItem{}
	}
	return &CartDTO{Items: items, Count: cart.Count()}
}
