package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds every request made through an owned HTTP
	// client. A caller-supplied client keeps its own timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultFreshnessWindow is how long a cached device location is
	// served without re-fetching, unless the caller forces a refresh.
	DefaultFreshnessWindow = 60 * time.Second
)

// Client is the high-level entry point for the LoJack API. Obtain one
// through Create (credential login) or FromAuth (session resumption);
// a single instance is safe for concurrent use.
type Client struct {
	baseURL         string
	transport       Transport
	auth            *AuthManager
	logger          *zap.Logger
	freshnessWindow time.Duration

	mu     sync.Mutex
	closed bool
}

type options struct {
	httpClient      *http.Client
	timeout         time.Duration
	tokenSkew       time.Duration
	freshnessWindow time.Duration
	logger          *zap.Logger
}

// Option configures a Client at construction time.
type Option func(*options)

// WithHTTPClient supplies a shared HTTP client. The Client will use it
// for all requests but never close it; the caller keeps ownership.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) { o.httpClient = httpClient }
}

// WithTimeout sets the per-request timeout of the owned HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

// WithTokenSkew sets the expiry safety margin that triggers proactive
// token refresh.
func WithTokenSkew(skew time.Duration) Option {
	return func(o *options) { o.tokenSkew = skew }
}

// WithFreshnessWindow sets how long cached device locations are served
// without re-fetching.
func WithFreshnessWindow(window time.Duration) Option {
	return func(o *options) { o.freshnessWindow = window }
}

// WithLogger attaches a structured logger. Logging defaults to a no-op.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newClient(baseURL, username, password string, opts ...Option) *Client {
	o := options{
		timeout:         DefaultTimeout,
		freshnessWindow: DefaultFreshnessWindow,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	baseURL = strings.TrimRight(baseURL, "/")
	transport := newHTTPTransport(baseURL, o.httpClient, o.timeout, o.logger)

	return &Client{
		baseURL:         baseURL,
		transport:       transport,
		auth:            newAuthManager(transport, baseURL, username, password, o.tokenSkew, o.logger),
		logger:          o.logger,
		freshnessWindow: o.freshnessWindow,
	}
}

// Create builds a client and performs the credential exchange.
func Create(ctx context.Context, baseURL, username, password string, opts ...Option) (*Client, error) {
	c := newClient(baseURL, username, password, opts...)
	if err := c.auth.Login(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// FromAuth builds a client from previously exported artifacts without
// any network call. The token is validated lazily, on the first
// operation that needs it.
func FromAuth(baseURL string, artifacts AuthArtifacts, opts ...Option) (*Client, error) {
	if artifacts.AccessToken == "" {
		return nil, &AuthenticationError{Message: "artifacts are missing an access token"}
	}
	if baseURL == "" {
		baseURL = artifacts.BaseURL
	}
	c := newClient(baseURL, "", "", opts...)
	c.auth.ImportArtifacts(artifacts)
	return c, nil
}

// IsAuthenticated reports whether the client holds a non-expired token.
func (c *Client) IsAuthenticated() bool {
	return c.auth.IsAuthenticated()
}

// UserID returns the authenticated user identifier, if known.
func (c *Client) UserID() string {
	return c.auth.UserID()
}

// ExportAuth snapshots the current session for later resumption via
// FromAuth. The second return value is false when not authenticated.
func (c *Client) ExportAuth() (AuthArtifacts, bool) {
	return c.auth.ExportArtifacts()
}

// Close releases the resources the client owns. It is idempotent and
// never closes a caller-supplied HTTP client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.auth.Clear()
	c.transport.Close()
	return nil
}

// authHeaders obtains a valid token, refreshing it if needed.
func (c *Client) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// Asset is the closed set of tracked asset kinds. The two concrete
// implementations are *Device and *Vehicle; type-switch on the value
// returned by ListDevices or GetDevice to tell them apart.
type Asset interface {
	ID() string
	Name() string
	asset()
}

// ListDevices lists all assets associated with the account. Records
// carrying a vehicle discriminator decode as *Vehicle, the rest as
// *Device.
func (c *Client) ListDevices(ctx context.Context) ([]Asset, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	data, err := c.transport.Request(ctx, "GET", "/assets", nil, nil, headers)
	if err != nil {
		return nil, err
	}

	assets := make([]Asset, 0)
	for _, record := range recordList(data, "content", "devices", "assets", "vehicles") {
		assets = append(assets, c.assetFromRecord(record))
	}
	return assets, nil
}

// GetDevice fetches a single asset by id.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (Asset, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	data, err := c.transport.Request(ctx, "GET", "/assets/"+url.PathEscape(deviceID), nil, nil, headers)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, &DeviceNotFoundError{DeviceID: deviceID}
		}
		return nil, err
	}

	record := singleRecord(data, "content", "asset", "device")
	if record == nil {
		return nil, &DeviceNotFoundError{DeviceID: deviceID}
	}
	return c.assetFromRecord(record), nil
}

func (c *Client) assetFromRecord(record map[string]any) Asset {
	if isVehicleRecord(record) {
		return newVehicle(c, vehicleInfoFromRecord(record))
	}
	return newDevice(c, deviceInfoFromRecord(record))
}

// getAssetLocation fetches the asset snapshot's embedded last-known
// location. The snapshot is updated irregularly upstream, so callers
// reconcile it against the event stream before trusting it.
func (c *Client) getAssetLocation(ctx context.Context, deviceID string) (*Location, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	data, err := c.transport.Request(ctx, "GET", "/assets/"+url.PathEscape(deviceID), nil, nil, headers)
	if err != nil {
		return nil, err
	}

	record := singleRecord(data, "content", "asset", "device")
	if record == nil {
		return nil, nil
	}

	rawLoc, ok := record["lastLocation"].(map[string]any)
	if !ok {
		return nil, nil
	}

	loc := locationFromRecord(rawLoc)
	// The snapshot's timestamp often lives on the asset, not on the
	// embedded location.
	if loc.Timestamp == nil {
		loc.Timestamp = timeField(record, "locationLastReported", "lastSeen")
	}
	if loc.Speed == nil {
		loc.Speed = floatField(record, "speed")
	}
	return loc, nil
}

// getEvents fetches one page of the device's event stream, newest
// first. The service defaults to ascending date order, which surfaces
// the stalest pings first, so descending sort is requested explicitly.
func (c *Client) getEvents(ctx context.Context, deviceID string, limit, offset int) ([]*Location, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("sort", "eventDate:desc")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}

	data, err := c.transport.Request(ctx, "GET", "/assets/"+url.PathEscape(deviceID)+"/events", params, nil, headers)
	if err != nil {
		return nil, err
	}

	var locations []*Location
	for _, record := range recordList(data, "content", "events", "locations", "history") {
		locations = append(locations, locationFromRecord(record))
	}
	return locations, nil
}

// SendCommand dispatches a raw command to a device. The service's
// rejection of a command (non-2xx or an explicit failure flag in an
// accepted response) surfaces as a CommandError; authentication and
// network failures keep their own types.
func (c *Client) SendCommand(ctx context.Context, deviceID, command string, params map[string]any) (bool, error) {
	if strings.TrimSpace(command) == "" {
		return false, &InvalidParameterError{Parameter: "command", Value: command, Reason: "must not be empty"}
	}

	headers, err := c.authHeaders(ctx)
	if err != nil {
		return false, err
	}

	payload := map[string]any{
		"command":          strings.ToUpper(command),
		"responseStrategy": "ASYNC",
	}
	for key, value := range params {
		payload[key] = value
	}

	data, err := c.transport.Request(ctx, "POST", "/assets/"+url.PathEscape(deviceID)+"/commands", nil, payload, headers)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return false, &CommandError{Command: command, DeviceID: deviceID, Reason: apiErr.Error()}
		}
		return false, err
	}

	if accepted, reason := commandAccepted(data); !accepted {
		return false, &CommandError{Command: command, DeviceID: deviceID, Reason: reason}
	}
	return true, nil
}

// commandAccepted inspects a 2xx command response for an explicit
// failure flag.
func commandAccepted(data json.RawMessage) (bool, string) {
	if len(data) == 0 {
		return true, ""
	}

	var resp map[string]any
	if err := json.Unmarshal(data, &resp); err != nil {
		return true, ""
	}

	if ok, present := resp["success"].(bool); present && !ok {
		return false, stringField(resp, "error", "message")
	}
	if ok, present := resp["accepted"].(bool); present && !ok {
		return false, stringField(resp, "error", "message")
	}
	switch stringField(resp, "status") {
	case "FAILED", "REJECTED", "error":
		return false, stringField(resp, "error", "message")
	}
	return true, ""
}

// AssetUpdate carries the mutable asset attributes for UpdateAsset.
// Nil fields are left unchanged.
type AssetUpdate struct {
	Name     *string  `json:"name,omitempty"`
	Color    *string  `json:"color,omitempty"`
	Make     *string  `json:"make,omitempty"`
	Model    *string  `json:"model,omitempty"`
	Year     *int     `json:"year,omitempty"`
	VIN      *string  `json:"vin,omitempty"`
	Odometer *float64 `json:"odometer,omitempty"`
}

func (u AssetUpdate) isEmpty() bool {
	return u.Name == nil && u.Color == nil && u.Make == nil &&
		u.Model == nil && u.Year == nil && u.VIN == nil && u.Odometer == nil
}

// UpdateAsset updates asset attributes. An update with no fields set
// is a no-op.
func (c *Client) UpdateAsset(ctx context.Context, deviceID string, update AssetUpdate) error {
	if update.isEmpty() {
		return nil
	}

	headers, err := c.authHeaders(ctx)
	if err != nil {
		return err
	}

	_, err = c.transport.Request(ctx, "PUT", "/assets/"+url.PathEscape(deviceID), nil, update, headers)
	return err
}

// recordList extracts a list of JSON objects from a response that may
// be a bare array or an object wrapping the list under one of keys.
func recordList(data json.RawMessage, keys ...string) []map[string]any {
	if len(data) == 0 {
		return nil
	}

	var direct []map[string]any
	if err := json.Unmarshal(data, &direct); err == nil {
		return direct
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil
	}
	for _, key := range keys {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		var items []map[string]any
		if err := json.Unmarshal(raw, &items); err == nil {
			return items
		}
	}
	return nil
}

// singleRecord extracts a JSON object that may be nested under one of
// keys or returned bare.
func singleRecord(data json.RawMessage, keys ...string) map[string]any {
	if len(data) == 0 {
		return nil
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil
	}
	for _, key := range keys {
		if nested, ok := record[key].(map[string]any); ok {
			return nested
		}
	}
	if len(record) == 0 {
		return nil
	}
	return record
}
