package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport executes a single HTTP request against the LoJack API and
// returns the decoded JSON body. Implementations translate transport
// and HTTP-level failures into the package error taxonomy.
type Transport interface {
	Request(ctx context.Context, method, path string, params url.Values, body any, headers map[string]string) (json.RawMessage, error)
	Close()
}

type httpTransport struct {
	baseURL string
	client  *http.Client
	owned   bool
	logger  *zap.Logger
}

// newHTTPTransport builds a transport for baseURL. When httpClient is
// nil a dedicated client with the given timeout is created and owned
// by the transport; a caller-supplied client is shared and never
// closed.
func newHTTPTransport(baseURL string, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) *httpTransport {
	owned := false
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
		owned = true
	}
	return &httpTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		owned:   owned,
		logger:  logger,
	}
}

func (t *httpTransport) Request(ctx context.Context, method, path string, params url.Values, body any, headers map[string]string) (json.RawMessage, error) {
	reqURL := t.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	t.logger.Debug("API request",
		zap.String("method", method),
		zap.String("path", path),
	)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	t.logger.Debug("API response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if err := statusError(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	if len(respBody) == 0 {
		return nil, nil
	}
	return json.RawMessage(respBody), nil
}

func (t *httpTransport) Close() {
	if t.owned {
		t.client.CloseIdleConnections()
	}
}

// classifyTransportError separates "the call never completed within
// its deadline" from "the connection itself failed".
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}
	return &ConnectionError{Err: err}
}

// statusError maps a non-2xx response into the error taxonomy.
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	message := apiMessage(body)
	switch status {
	case http.StatusUnauthorized:
		return &AuthenticationError{Message: message}
	case http.StatusForbidden:
		return &AuthorizationError{Message: message}
	default:
		return &APIError{StatusCode: status, Message: message, Body: string(body)}
	}
}

// apiMessage pulls a human-readable error message out of a response
// body, if there is one.
func apiMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
