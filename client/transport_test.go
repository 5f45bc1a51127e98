package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTransportStatusMapping(t *testing.T) {
	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, map[string]string{"error": "nope"})
	}))
	defer server.Close()

	transport := newHTTPTransport(server.URL, nil, time.Second, zap.NewNop())
	defer transport.Close()

	status = http.StatusUnauthorized
	_, err := transport.Request(context.Background(), "GET", "/x", nil, nil, nil)
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)

	status = http.StatusForbidden
	_, err = transport.Request(context.Background(), "GET", "/x", nil, nil, nil)
	var authzErr *AuthorizationError
	require.ErrorAs(t, err, &authzErr)

	status = http.StatusInternalServerError
	_, err = transport.Request(context.Background(), "GET", "/x", nil, nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	require.Equal(t, "nope", apiErr.Message)
}

func TestTransportTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	transport := newHTTPTransport(server.URL, nil, 20*time.Millisecond, zap.NewNop())
	defer transport.Close()

	_, err := transport.Request(context.Background(), "GET", "/slow", nil, nil, nil)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestTransportContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	transport := newHTTPTransport(server.URL, nil, time.Minute, zap.NewNop())
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := transport.Request(ctx, "GET", "/slow", nil, nil, nil)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestTransportConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	transport := newHTTPTransport(server.URL, nil, time.Second, zap.NewNop())
	defer transport.Close()

	_, err := transport.Request(context.Background(), "GET", "/x", nil, nil, nil)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestTransportHeaders(t *testing.T) {
	var gotRequestID, gotContentType, gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get("X-Request-Id")
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
	}))
	defer server.Close()

	transport := newHTTPTransport(server.URL, nil, time.Second, zap.NewNop())
	defer transport.Close()

	_, err := transport.Request(context.Background(), "POST", "/x", nil,
		map[string]string{"a": "b"},
		map[string]string{"Authorization": "Bearer tok"})
	require.NoError(t, err)
	require.NotEmpty(t, gotRequestID)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, "Bearer tok", gotCustom)
}

func TestTransportEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	transport := newHTTPTransport(server.URL, nil, time.Second, zap.NewNop())
	defer transport.Close()

	data, err := transport.Request(context.Background(), "DELETE", "/x", nil, nil, nil)
	require.NoError(t, err)
	require.Nil(t, data)
}
