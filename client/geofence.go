package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// Geofence is a circular zone attached to a device.
type Geofence struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"device_id"`
	Name      string         `json:"name,omitempty"`
	Latitude  *float64       `json:"latitude,omitempty"`
	Longitude *float64       `json:"longitude,omitempty"`
	Radius    *float64       `json:"radius,omitempty"`
	Address   string         `json:"address,omitempty"`
	Active    bool           `json:"active"`
	Raw       map[string]any `json:"-"`
}

func geofenceFromRecord(record map[string]any, deviceID string) Geofence {
	g := Geofence{
		ID:       stringField(record, "id", "geofenceId"),
		DeviceID: deviceID,
		Name:     stringField(record, "name"),
		Raw:      record,
	}
	if active, ok := record["active"].(bool); ok {
		g.Active = active
	}

	if loc, ok := record["location"].(map[string]any); ok {
		g.Radius = floatField(loc, "radius")
		if coords, ok := loc["coordinates"].(map[string]any); ok {
			g.Latitude = floatField(coords, "lat", "latitude")
			g.Longitude = floatField(coords, "lng", "longitude")
		}
		if addr, ok := loc["address"].(map[string]any); ok {
			g.Address = stringField(addr, "line1", "formatted")
		}
	}
	return g
}

// ListGeofences lists the geofences configured for a device.
func (c *Client) ListGeofences(ctx context.Context, deviceID string) ([]Geofence, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	data, err := c.transport.Request(ctx, "GET", "/assets/"+url.PathEscape(deviceID)+"/geofences", nil, nil, headers)
	if err != nil {
		return nil, err
	}

	var geofences []Geofence
	for _, record := range recordList(data, "content", "geofences", "items") {
		geofences = append(geofences, geofenceFromRecord(record, deviceID))
	}
	return geofences, nil
}

// GetGeofence fetches a single geofence. It returns nil when the
// geofence does not exist.
func (c *Client) GetGeofence(ctx context.Context, deviceID, geofenceID string) (*Geofence, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	path := "/assets/" + url.PathEscape(deviceID) + "/geofences/" + url.PathEscape(geofenceID)
	data, err := c.transport.Request(ctx, "GET", path, nil, nil, headers)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	record := singleRecord(data, "content", "geofence")
	if record == nil {
		return nil, nil
	}
	g := geofenceFromRecord(record, deviceID)
	return &g, nil
}

// CreateGeofence creates a circular geofence around a point. The
// coordinates and radius are validated before any network call.
func (c *Client) CreateGeofence(ctx context.Context, deviceID, name string, latitude, longitude, radius float64) (*Geofence, error) {
	if latitude < -90 || latitude > 90 {
		return nil, &InvalidParameterError{Parameter: "latitude", Value: latitude, Reason: "must be between -90 and 90"}
	}
	if longitude < -180 || longitude > 180 {
		return nil, &InvalidParameterError{Parameter: "longitude", Value: longitude, Reason: "must be between -180 and 180"}
	}
	if radius <= 0 {
		return nil, &InvalidParameterError{Parameter: "radius", Value: radius, Reason: "must be positive"}
	}

	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"name": name,
		"location": map[string]any{
			"coordinates": map[string]any{
				"lat": latitude,
				"lng": longitude,
			},
			"radius": radius,
		},
		"active": true,
	}

	data, err := c.transport.Request(ctx, "POST", "/assets/"+url.PathEscape(deviceID)+"/geofences", nil, payload, headers)
	if err != nil {
		return nil, err
	}

	record := singleRecord(data, "content", "geofence")
	if record == nil {
		return nil, nil
	}
	g := geofenceFromRecord(record, deviceID)
	return &g, nil
}

// DeleteGeofence removes a geofence from a device.
func (c *Client) DeleteGeofence(ctx context.Context, deviceID, geofenceID string) error {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return err
	}

	path := "/assets/" + url.PathEscape(deviceID) + "/geofences/" + url.PathEscape(geofenceID)
	_, err = c.transport.Request(ctx, "DELETE", path, nil, nil, headers)
	return err
}
