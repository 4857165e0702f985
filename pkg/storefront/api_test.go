package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestHTTPClientLoginDecodesEnvelope(t *testing.T) {
	userID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/user/login", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "reader@example.com", body["email"])
		writeJSON(t, w, http.StatusOK, types.SuccessEnvelope{
			Success: true,
			Message: "Login successful",
			Data: map[string]any{
				"token": "jwt",
				"user":  map[string]any{"id": userID, "email": "reader@example.com", "role": "user"},
			},
		})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL+"/", nil)
	require.NoError(t, err)

	result, err := client.Login(context.Background(), "reader@example.com", "secret123")
	require.NoError(t, err)
	require.Equal(t, "jwt", result.Token)
	require.Equal(t, userID, result.User.ID)
}

func TestHTTPClientSendsBearerAndDecodesCart(t *testing.T) {
	book := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/cart/sync", r.URL.Path)
		require.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
		var body struct {
			Items []map[string]any `json:"items"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Items, 1)
		require.Equal(t, book.String(), body.Items[0]["productId"])
		writeJSON(t, w, http.StatusOK, types.SuccessEnvelope{
			Success: true,
			Data: map[string]any{
				"items": []types.CartItem{{ProductID: book, Quantity: 5}},
				"count": 5,
			},
		})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, server.Client())
	require.NoError(t, err)

	items, err := client.SyncCart(context.Background(), "jwt", []types.CartItem{{ProductID: book, Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, []types.CartItem{{ProductID: book, Quantity: 5}}, items)
}

func TestHTTPClientMapsErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, types.ErrorEnvelope{
			Success: false,
			Message: "Account is deactivated",
			Error:   types.APIError{Code: string(pkgerrors.CodeForbidden), Message: "Account is deactivated"},
		})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, server.Client())
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "reader@example.com", "secret123")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	require.Equal(t, "Account is deactivated", pkgerrors.As(err).Message())
}

func TestHTTPClientFallsBackToStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, server.Client())
	require.NoError(t, err)

	err = client.Logout(context.Background(), "jwt")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient("  ", nil)
	require.Error(t, err)
}
