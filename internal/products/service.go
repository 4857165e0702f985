package product

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

// Service exposes catalog reads for the storefront and writes for admins.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, productID uuid.UUID) error
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, input ListProductsInput) ([]ProductDTO, error)
}

// ImageStore hosts product images and hands back their public URLs.
type ImageStore interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, publicURL string) error
}

type service struct {
	repo   *Repository
	images ImageStore
	logg   *logger.Logger
}

// NewService wires the catalog. images may be nil, in which case uploads are
// rejected and deletes skip the image host.
func NewService(repo *Repository, images ImageStore, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "product repository required")
	}
	return &service{repo: repo, images: images, logg: logg}, nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	category := strings.TrimSpace(input.Category)
	if name == "" || category == "" || !input.Price.IsPositive() ||
		(len(cleanURLs(input.Images)) == 0 && len(input.Uploads) == 0) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Missing required fields")
	}

	uploaded, err := s.uploadAll(ctx, input.Uploads)
	if err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Category:    category,
		Price:       input.Price.Round(2),
		Images:      types.StringList(cleanURLs(input.Images)).Append(uploaded...),
		Popular:     input.Popular,
		Location:    trimmedPtr(input.Location),
	}
	if err := s.repo.Create(ctx, product); err != nil {
		s.deleteImages(ctx, uploaded)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}
	return FromModel(product), nil
}

func (s *service) UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	if input.Price != nil && input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}

	uploaded, err := s.uploadAll(ctx, input.Uploads)
	if err != nil {
		return nil, err
	}

	if v := trimmedPtr(input.Name); v != nil {
		product.Name = *v
	}
	if v := trimmedPtr(input.Description); v != nil {
		product.Description = *v
	}
	if v := trimmedPtr(input.Category); v != nil {
		product.Category = *v
	}
	if input.Price != nil {
		product.Price = input.Price.Round(2)
	}
	if input.Popular != nil {
		product.Popular = *input.Popular
	}
	if input.Location != nil {
		product.Location = trimmedPtr(input.Location)
	}
	product.Images = product.Images.Append(cleanURLs(input.Images)...).Append(uploaded...)

	if err := s.repo.Save(ctx, product); err != nil {
		s.deleteImages(ctx, uploaded)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update product")
	}
	return FromModel(product), nil
}

// DeleteProduct removes hosted images best-effort before deleting the row.
func (s *service) DeleteProduct(ctx context.Context, productID uuid.UUID) error {
	product, err := s.load(ctx, productID)
	if err != nil {
		return err
	}
	s.deleteImages(ctx, product.Images)
	if err := s.repo.Delete(ctx, product.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "Product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete product")
	}
	return nil
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	return FromModel(product), nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) ([]ProductDTO, error) {
	if input.Limit < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit must be positive")
	}
	list, err := s.repo.List(ctx, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	return FromModels(list), nil
}

func (s *service) load(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return product, nil
}

// uploadAll validates every file before pushing any, and rolls back the
// files already pushed when a later upload fails.
func (s *service) uploadAll(ctx context.Context, uploads []Upload) ([]string, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if s.images == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "image uploads are not configured")
	}
	contentTypes := make([]string, len(uploads))
	for i, upload := range uploads {
		contentType, err := sniffImage(upload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid image")
		}
		contentTypes[i] = contentType
	}

	urls := make([]string, 0, len(uploads))
	for i, upload := range uploads {
		url, err := s.images.Upload(ctx, upload.Filename, contentTypes[i], bytes.NewReader(upload.Data))
		if err != nil {
			s.deleteImages(ctx, urls)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("upload image %q", upload.Filename))
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func (s *service) deleteImages(ctx context.Context, urls []string) {
	if s.images == nil {
		return
	}
	for _, url := range urls {
		if err := s.images.Delete(ctx, url); err != nil && s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "image_url", url), "delete product image", err)
		}
	}
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
