package client

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateGeofenceValidation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	var paramErr *InvalidParameterError

	_, err := c.CreateGeofence(context.Background(), "dev-1", "home", 91, 0, 100)
	require.ErrorAs(t, err, &paramErr)
	require.Equal(t, "latitude", paramErr.Parameter)

	_, err = c.CreateGeofence(context.Background(), "dev-1", "home", 0, -181, 100)
	require.ErrorAs(t, err, &paramErr)
	require.Equal(t, "longitude", paramErr.Parameter)

	_, err = c.CreateGeofence(context.Background(), "dev-1", "home", 0, 0, 0)
	require.ErrorAs(t, err, &paramErr)
	require.Equal(t, "radius", paramErr.Parameter)
}

func TestCreateGeofence(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = decodeBody(r, &payload)
		writeJSON(w, http.StatusOK, map[string]any{
			"id":       "geo-1",
			"name":     payload["name"],
			"location": payload["location"],
			"active":   true,
		})
	})

	g, err := c.CreateGeofence(context.Background(), "dev-1", "home", 37.77, -122.42, 250)
	require.NoError(t, err)
	require.NotNil(t, g)
	require.Equal(t, "geo-1", g.ID)
	require.Equal(t, "dev-1", g.DeviceID)
	require.Equal(t, "home", g.Name)
	require.Equal(t, 37.77, *g.Latitude)
	require.Equal(t, -122.42, *g.Longitude)
	require.Equal(t, 250.0, *g.Radius)
	require.True(t, g.Active)
}

func TestGetGeofenceMissingIsNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})

	g, err := c.GetGeofence(context.Background(), "dev-1", "geo-missing")
	require.NoError(t, err)
	require.Nil(t, g)
}

func TestListGeofences(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"content": []map[string]any{
			{
				"id":   "geo-1",
				"name": "home",
				"location": map[string]any{
					"radius":      100.0,
					"coordinates": map[string]any{"lat": 1.0, "lng": 2.0},
					"address":     map[string]any{"line1": "1 Home Rd"},
				},
				"active": true,
			},
		}})
	})

	fences, err := c.ListGeofences(context.Background(), "dev-1")
	require.NoError(t, err)
	require.Len(t, fences, 1)
	require.Equal(t, "home", fences[0].Name)
	require.Equal(t, "1 Home Rd", fences[0].Address)
	require.Equal(t, 100.0, *fences[0].Radius)
}
