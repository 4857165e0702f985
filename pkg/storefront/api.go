package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBytes   = 1 << 20
)

// LoginResult is what the API hands back for a successful sign-in.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// API is the slice of the backend a storefront session talks to.
type API interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	SyncCart(ctx context.Context, token string, items []types.CartItem) ([]types.CartItem, error)
	AddItem(ctx context.Context, token string, productID uuid.UUID) ([]types.CartItem, error)
	UpdateItem(ctx context.Context, token string, productID uuid.UUID, quantity int) ([]types.CartItem, error)
	RemoveItem(ctx context.Context, token string, productID uuid.UUID) error
}

// HTTPClient calls the bookstore REST API, sending the session token as a
// bearer credential.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient targets baseURL (e.g. https://api.example.com). A nil client
// uses one with a 15s timeout.
func NewHTTPClient(baseURL string, client *http.Client) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPClient{baseURL: baseURL, http: client}, nil
}

type cartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartPayload struct {
	Items []types.CartItem `json:"items"`
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/user/login", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/user/logout", token, nil, nil)
}

func (c *HTTPClient) SyncCart(ctx context.Context, token string, items []types.CartItem) ([]types.CartItem, error) {
	lines := make([]cartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, cartLine{ProductID: item.ProductID.String(), Quantity: item.Quantity})
	}
	var out cartPayload
	if err := c.do(ctx, http.MethodPost, "/api/cart/sync", token, map[string]any{"items": lines}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *HTTPClient) AddItem(ctx context.Context, token string, productID uuid.UUID) ([]types.CartItem, error) {
	var out cartPayload
	if err := c.do(ctx, http.MethodPost, "/api/cart/add", token, cartLine{ProductID: productID.String()}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *HTTPClient) UpdateItem(ctx context.Context, token string, productID uuid.UUID, quantity int) ([]types.CartItem, error) {
	var out cartPayload
	line := cartLine{ProductID: productID.String(), Quantity: quantity}
	if err := c.do(ctx, http.MethodPatch, "/api/cart/update", token, line, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *HTTPClient) RemoveItem(ctx context.Context, token string, productID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/api/cart/delete-item", token, cartLine{ProductID: productID.String()}, nil)
}

// do sends body as JSON and decodes the success envelope's data into out.
// Error envelopes come back as *pkgerrors.Error carrying the server's code.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bookstore api unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response")
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response data")
	}
	return nil
}

func decodeAPIError(status int, raw []byte) error {
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Code == "" {
		return pkgerrors.Newf(codeForStatus(status), "bookstore api returned %d", status)
	}
	message := envelope.Message
	if message == "" {
		message = envelope.Error.Message
	}
	return pkgerrors.New(pkgerrors.Code(envelope.Error.Code), message)
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusServiceUnavailable:
		return pkgerrors.CodeDependency
	default:
		return pkgerrors.CodeInternal
	}
}
