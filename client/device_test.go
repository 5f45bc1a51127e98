package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// newTestClient builds a resumed client against a test server with a
// long-lived token, so no test exercises the auth flow by accident.
func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := FromAuth(server.URL, AuthArtifacts{
		AccessToken: "test-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func assetSnapshot(lat, lng float64, ts string, extra map[string]any) map[string]any {
	loc := map[string]any{"lat": lat, "lng": lng}
	for k, v := range extra {
		loc[k] = v
	}
	return map[string]any{
		"id":                   "dev-1",
		"name":                 "Trailer",
		"lastLocation":         loc,
		"locationLastReported": ts,
	}
}

func TestRefreshPrefersNewerEvent(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/events"):
			writeJSON(w, http.StatusOK, map[string]any{"content": []map[string]any{{
				"latitude":  40.0,
				"longitude": -74.0,
				"eventDate": now.Format(time.RFC3339),
				"speed":     55.0,
			}}})
		default:
			writeJSON(w, http.StatusOK, assetSnapshot(39.0, -75.0,
				now.Add(-time.Hour).Format(time.RFC3339),
				map[string]any{"address": map[string]any{"line1": "Old Depot Rd"}}))
		}
	})

	dev := newDevice(c, DeviceInfo{ID: "dev-1", Name: "Trailer"})
	loc, err := dev.GetLocation(context.Background(), false)
	require.NoError(t, err)
	require.True(t, loc.HasFix())
	require.Equal(t, 40.0, *loc.Latitude)
	require.Equal(t, -74.0, *loc.Longitude)
	require.Equal(t, now, loc.Timestamp.UTC())

	// Telemetry missing from the winner is filled from the loser.
	require.Equal(t, "Old Depot Rd", loc.Address)
	require.Equal(t, 55.0, *loc.Speed)

	require.NotNil(t, dev.LastSeen())
	require.Equal(t, now, dev.LastSeen().UTC())
}

func TestRefreshDegradesWhenEventsFail(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/events") {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "events down"})
			return
		}
		writeJSON(w, http.StatusOK, assetSnapshot(39.0, -75.0, now.Format(time.RFC3339), nil))
	})

	dev := newDevice(c, DeviceInfo{ID: "dev-1"})
	loc, err := dev.GetLocation(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 39.0, *loc.Latitude)
}

func TestRefreshFailsWhenBothSourcesFail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "down"})
	})

	dev := newDevice(c, DeviceInfo{ID: "dev-1"})
	_, err := dev.GetLocation(context.Background(), false)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestFreshnessWindowSkipsNetwork(t *testing.T) {
	var requests atomic.Int32
	now := time.Now().UTC().Truncate(time.Second)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if strings.HasSuffix(r.URL.Path, "/events") {
			writeJSON(w, http.StatusOK, map[string]any{"content": []map[string]any{}})
			return
		}
		writeJSON(w, http.StatusOK, assetSnapshot(39.0, -75.0, now.Format(time.RFC3339), nil))
	}, WithFreshnessWindow(time.Hour))

	dev := newDevice(c, DeviceInfo{ID: "dev-1"})

	_, err := dev.GetLocation(context.Background(), false)
	require.NoError(t, err)
	after := requests.Load()

	// Inside the window, the cache answers without a request.
	_, err = dev.GetLocation(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, after, requests.Load())

	// force bypasses the window.
	_, err = dev.GetLocation(context.Background(), true)
	require.NoError(t, err)
	require.Greater(t, requests.Load(), after)
}

func TestNoFixNeverOverwritesCache(t *testing.T) {
	var withFix atomic.Bool
	withFix.Store(true)
	now := time.Now().UTC().Truncate(time.Second)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/events") {
			writeJSON(w, http.StatusOK, map[string]any{"content": []map[string]any{}})
			return
		}
		if withFix.Load() {
			writeJSON(w, http.StatusOK, assetSnapshot(39.0, -75.0, now.Format(time.RFC3339), nil))
			return
		}
		// Snapshot with no coordinates.
		writeJSON(w, http.StatusOK, map[string]any{
			"id":           "dev-1",
			"lastLocation": map[string]any{"address": "somewhere"},
		})
	})

	dev := newDevice(c, DeviceInfo{ID: "dev-1"})

	loc, err := dev.GetLocation(context.Background(), true)
	require.NoError(t, err)
	require.True(t, loc.HasFix())

	withFix.Store(false)
	loc, err = dev.GetLocation(context.Background(), true)
	require.NoError(t, err)
	require.True(t, loc.HasFix())
	require.Equal(t, 39.0, *loc.Latitude)
}

func TestDeadlineLeavesCacheUnmodified(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	var slow atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if slow.Load() {
			time.Sleep(200 * time.Millisecond)
		}
		if strings.HasSuffix(r.URL.Path, "/events") {
			writeJSON(w, http.StatusOK, map[string]any{"content": []map[string]any{}})
			return
		}
		writeJSON(w, http.StatusOK, assetSnapshot(39.0, -75.0, now.Format(time.RFC3339), nil))
	})

	dev := newDevice(c, DeviceInfo{ID: "dev-1"})
	_, err := dev.GetLocation(context.Background(), true)
	require.NoError(t, err)

	slow.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = dev.GetLocation(ctx, true)
	require.Error(t, err)

	cached := dev.CachedLocation()
	require.True(t, cached.HasFix())
	require.Equal(t, 39.0, *cached.Latitude)
}

func TestRingValidatesDuration(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	dev := newDevice(c, DeviceInfo{ID: "dev-1"})

	_, err := dev.Ring(context.Background(), -1)
	var paramErr *InvalidParameterError
	require.ErrorAs(t, err, &paramErr)
	require.Equal(t, "duration", paramErr.Parameter)

	_, err = dev.Ring(context.Background(), 301)
	require.ErrorAs(t, err, &paramErr)

	// Validation failures never reach the network.
	require.Equal(t, int32(0), requests.Load())

	ok, err := dev.Ring(context.Background(), 30)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockValidatesPasscodeAndSanitizesMessage(t *testing.T) {
	var gotPayload map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = decodeBody(r, &gotPayload)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	dev := newDevice(c, DeviceInfo{ID: "dev-1"})

	_, err := dev.Lock(context.Background(), "", "pass code!")
	var paramErr *InvalidParameterError
	require.ErrorAs(t, err, &paramErr)
	require.Equal(t, "passcode", paramErr.Parameter)

	ok, err := dev.Lock(context.Background(), "  return\nto 'owner';  ", "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "LOCK", gotPayload["command"])
	require.Equal(t, "return to owner", gotPayload["message"])
	require.Equal(t, "abc123", gotPayload["passcode"])
}

func TestCommandRejectedByService(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "REJECTED",
			"error":  "device offline",
		})
	})

	dev := newDevice(c, DeviceInfo{ID: "dev-1"})
	_, err := dev.SendCommand(context.Background(), "locate")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, "locate", cmdErr.Command)
	require.Equal(t, "dev-1", cmdErr.DeviceID)
	require.Contains(t, cmdErr.Reason, "device offline")
}

func TestCommandErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "unsupported"})
	})

	dev := newDevice(c, DeviceInfo{ID: "dev-1"})
	_, err := dev.SendCommand(context.Background(), "unknown_cmd")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, "unknown_cmd", cmdErr.Command)
}

func TestEmptyCommandRejectedLocally(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	dev := newDevice(c, DeviceInfo{ID: "dev-1"})
	_, err := dev.SendCommand(context.Background(), "  ")
	var paramErr *InvalidParameterError
	require.ErrorAs(t, err, &paramErr)
}

func TestSanitizeMessage(t *testing.T) {
	require.Equal(t, "hello world", sanitizeMessage("  hello   world  ", 120))
	require.Equal(t, "no quotes here", sanitizeMessage(`no "quotes" 'here'`, 120))
	require.Equal(t, "ab", sanitizeMessage("abcdef", 2))
	require.Equal(t, "", sanitizeMessage("\"'`;\\", 120))
}

func TestIsValidPasscode(t *testing.T) {
	require.True(t, isValidPasscode("abc123"))
	require.True(t, isValidPasscode("ABC"))
	require.False(t, isValidPasscode(""))
	require.False(t, isValidPasscode("abc 123"))
	require.False(t, isValidPasscode("pässcode"))
}
