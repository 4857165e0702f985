package controllers

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bookstore-backend/api/responses"
	"github.com/angelmondragon/bookstore-backend/api/validators"
	product "github.com/angelmondragon/bookstore-backend/internal/products"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
)

const (
	maxProductForm  = 32 << 20
	maxImageUploads = 4
)

// ListProducts browses the catalog with optional search, category and location filters.
func ListProducts(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := r.URL.Query()
		list, err := svc.ListProducts(r.Context(), product.ListProductsInput{
			Search:   validators.SanitizeString(query.Get("search"), 100),
			Category: validators.SanitizeString(query.Get("category"), 100),
			Location: validators.SanitizeString(query.Get("location"), 100),
			Limit:    limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// CreateProduct accepts JSON with hosted image URLs or a multipart form with image files.
func CreateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input product.CreateProductInput
		if isMultipart(r) {
			form, err := readProductForm(w, r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input = product.CreateProductInput{
				Name:        form.value("name"),
				Description: form.value("description"),
				Category:    form.value("category"),
				Images:      form.values("images"),
				Location:    form.optional("location"),
				Uploads:     form.uploads,
			}
			if input.Price, err = form.decimal("price"); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			popular, err := form.boolean("popular")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Popular = popular != nil && *popular
		} else if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.CreateProduct(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, "Product added successfully", dto)
	}
}

func UpdateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input product.UpdateProductInput
		if isMultipart(r) {
			form, err := readProductForm(w, r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input = product.UpdateProductInput{
				Name:        form.optional("name"),
				Description: form.optional("description"),
				Category:    form.optional("category"),
				Location:    form.optional("location"),
				Images:      form.values("images"),
				Uploads:     form.uploads,
			}
			if form.has("price") {
				price, err := form.decimal("price")
				if err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				input.Price = &price
			}
			if input.Popular, err = form.boolean("popular"); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		} else if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.UpdateProduct(r.Context(), productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusOK, "Product updated successfully", dto)
	}
}

func DeleteProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteProduct(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, "Product deleted successfully")
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

type productForm struct {
	fields  map[string][]string
	uploads []product.Upload
}

// readProductForm collects text fields plus up to four image files sent as
// "images" or image1..image4.
func readProductForm(w http.ResponseWriter, r *http.Request) (*productForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxProductForm)
	if err := r.ParseMultipartForm(maxProductForm); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "Invalid form data")
	}
	form := &productForm{fields: r.MultipartForm.Value}

	var headers []*multipart.FileHeader
	headers = append(headers, r.MultipartForm.File["images"]...)
	for i := 1; i <= maxImageUploads; i++ {
		headers = append(headers, r.MultipartForm.File["image"+strconv.Itoa(i)]...)
	}
	if len(headers) > maxImageUploads {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "At most %d images can be uploaded", maxImageUploads)
	}
	for _, header := range headers {
		data, err := readUpload(header)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "Invalid image upload")
		}
		form.uploads = append(form.uploads, product.Upload{Filename: header.Filename, Data: data})
	}
	return form, nil
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (f *productForm) has(key string) bool {
	_, ok := f.fields[key]
	return ok
}

func (f *productForm) value(key string) string {
	if values := f.fields[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func (f *productForm) values(key string) []string {
	var out []string
	for _, v := range f.fields[key] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (f *productForm) optional(key string) *string {
	if !f.has(key) {
		return nil
	}
	v := f.value(key)
	return &v
}

func (f *productForm) decimal(key string) (decimal.Decimal, error) {
	raw := f.value(key)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, key+" must be a number")
	}
	return d, nil
}

func (f *productForm) boolean(key string) (*bool, error) {
	raw := f.value(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, key+" must be true or false")
	}
	return &v, nil
}
