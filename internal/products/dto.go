package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
)

// ProductDTO is the catalog projection returned by the API.
type ProductDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Images      []string  `json:"images"`
	Popular     bool      `json:"popular"`
	Location    *string   `json:"location,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func FromModel(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	images := []string(p.Images)
	if images == nil {
		images = []string{}
	}
	return &ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price.InexactFloat64(),
		Images:      images,
		Popular:     p.Popular,
		Location:    p.Location,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func FromModels(list []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(list))
	for i := range list {
		out = append(out, *FromModel(&list[i]))
	}
	return out
}

// Upload is an image file received in a multipart form.
type Upload struct {
	Filename string
	Data     []byte
}

// CreateProductInput holds the payload to create a product. Images lists
// already-hosted URLs; Uploads are pushed to the image store first.
type CreateProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	Popular     bool            `json:"popular"`
	Location    *string         `json:"location,omitempty"`
	Uploads     []Upload        `json:"-"`
}

// UpdateProductInput holds optional mutation values. New images are appended.
type UpdateProductInput struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Popular     *bool            `json:"popular,omitempty"`
	Location    *string          `json:"location,omitempty"`
	Images      []string         `json:"images,omitempty"`
	Uploads     []Upload         `json:"-"`
}

// ListProductsInput captures the browse filters. Limit is optional.
type ListProductsInput struct {
	Search   string
	Category string
	Location string
	Limit    int
}
