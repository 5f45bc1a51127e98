package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Device wraps a tracked device and provides the per-device operations.
// The cached location is last-writer-wins across concurrent refreshes;
// callers needing strict ordering must serialize their own calls.
type Device struct {
	client *Client
	info   DeviceInfo

	mu             sync.Mutex
	cachedLocation *Location
	lastSeen       *time.Time
	lastRefresh    time.Time
}

func newDevice(c *Client, info DeviceInfo) *Device {
	return &Device{
		client:   c,
		info:     info,
		lastSeen: info.LastSeen,
	}
}

func (d *Device) asset() {}

// ID returns the device identifier, unique per account.
func (d *Device) ID() string { return d.info.ID }

// Name returns the display name, if the service has one.
func (d *Device) Name() string { return d.info.Name }

// Info returns the decoded device attributes.
func (d *Device) Info() DeviceInfo { return d.info }

// LastSeen returns when the device last reported, if known.
func (d *Device) LastSeen() *time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

// CachedLocation returns the last reconciled location without any
// network call. It may be stale or nil.
func (d *Device) CachedLocation() *Location {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cachedLocation
}

// LastRefresh returns when the cached location was last updated.
func (d *Device) LastRefresh() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRefresh
}

func (d *Device) cacheFresh() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cachedLocation == nil || d.lastRefresh.IsZero() {
		return false
	}
	return time.Since(d.lastRefresh) < d.client.freshnessWindow
}

// Refresh updates the cached location. Unless force is set, a cached
// value inside the freshness window is kept as is.
//
// Both the asset snapshot and the latest event are fetched, and the
// reconciler decides which one is authoritative; if one of the two
// fetches fails the refresh degrades to the other source. A result
// without a fix never replaces an existing cached location.
func (d *Device) Refresh(ctx context.Context, force bool) error {
	if !force && d.cacheFresh() {
		return nil
	}

	var (
		assetLoc, eventLoc *Location
		assetErr, eventErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		assetLoc, assetErr = d.client.getAssetLocation(gctx, d.info.ID)
		return nil
	})
	g.Go(func() error {
		events, err := d.client.getEvents(gctx, d.info.ID, 1, 0)
		if err != nil {
			eventErr = err
			return nil
		}
		if len(events) > 0 {
			eventLoc = events[0]
		}
		return nil
	})
	_ = g.Wait()

	if assetErr != nil && eventErr != nil {
		return eventErr
	}

	winner := reconcileLocations(assetLoc, eventLoc)
	if winner == nil {
		// No candidate carried a fix; keep whatever we already have
		// rather than overwrite it with a less complete value.
		d.mu.Lock()
		d.lastRefresh = time.Now().UTC()
		d.mu.Unlock()
		return nil
	}

	if winner == assetLoc {
		enrichLocation(winner, eventLoc)
	} else {
		enrichLocation(winner, assetLoc)
	}

	d.mu.Lock()
	d.cachedLocation = winner
	if winner.Timestamp != nil {
		d.lastSeen = winner.Timestamp
	}
	d.lastRefresh = time.Now().UTC()
	d.mu.Unlock()

	return nil
}

// GetLocation returns the device's location, refreshing the cache
// under the same force semantics as Refresh. A nil location means the
// service has never reported a fix.
func (d *Device) GetLocation(ctx context.Context, force bool) (*Location, error) {
	if force || !d.cacheFresh() {
		if err := d.Refresh(ctx, force); err != nil {
			return nil, err
		}
	}
	return d.CachedLocation(), nil
}

// History returns an iterator over the device's location history,
// newest first. The iterator is consumed once; calling History again
// starts a fresh sequence from the newest event.
func (d *Device) History(limit int) *HistoryIterator {
	return newHistoryIterator(d.client, d.info.ID, limit)
}

// SendCommand dispatches a raw command to this device.
func (d *Device) SendCommand(ctx context.Context, command string) (bool, error) {
	return d.client.SendCommand(ctx, d.info.ID, command, nil)
}

// RequestLocationUpdate asks the device to report its position.
func (d *Device) RequestLocationUpdate(ctx context.Context) (bool, error) {
	return d.SendCommand(ctx, "locate")
}

// RequestFreshLocation sends a locate command and returns the
// pre-command location timestamp. Compare it against later
// GetLocation(force) results to detect when fresh data has arrived.
func (d *Device) RequestFreshLocation(ctx context.Context) (*time.Time, error) {
	loc, err := d.client.getAssetLocation(ctx, d.info.ID)
	if err != nil {
		return nil, err
	}

	var baseline *time.Time
	if loc != nil {
		baseline = loc.Timestamp
	}

	if _, err := d.SendCommand(ctx, "locate"); err != nil {
		return baseline, err
	}
	return baseline, nil
}

// Lock locks the device. An optional message is shown on the device
// after sanitization; a passcode, when given, must be alphanumeric
// ASCII.
func (d *Device) Lock(ctx context.Context, message, passcode string) (bool, error) {
	if passcode != "" && !isValidPasscode(passcode) {
		return false, &InvalidParameterError{
			Parameter: "passcode",
			Value:     passcode,
			Reason:    "must be alphanumeric ASCII characters only",
		}
	}

	params := make(map[string]any)
	if message != "" {
		if sanitized := sanitizeMessage(message, 120); sanitized != "" {
			params["message"] = sanitized
		}
	}
	if passcode != "" {
		params["passcode"] = passcode
	}

	return d.client.SendCommand(ctx, d.info.ID, "lock", params)
}

// Unlock unlocks the device.
func (d *Device) Unlock(ctx context.Context) (bool, error) {
	return d.SendCommand(ctx, "unlock")
}

// Ring makes the device ring. A duration of 0 uses the service
// default; otherwise it must be between 1 and 300 seconds.
func (d *Device) Ring(ctx context.Context, duration int) (bool, error) {
	params := make(map[string]any)
	if duration != 0 {
		if duration < 1 || duration > 300 {
			return false, &InvalidParameterError{
				Parameter: "duration",
				Value:     duration,
				Reason:    "must be between 1 and 300 seconds",
			}
		}
		params["duration"] = duration
	}
	return d.client.SendCommand(ctx, d.info.ID, "ring", params)
}

// Update changes the device's display name or color.
func (d *Device) Update(ctx context.Context, name, color string) error {
	update := AssetUpdate{}
	if name != "" {
		update.Name = &name
	}
	if color != "" {
		update.Color = &color
	}
	return d.client.UpdateAsset(ctx, d.info.ID, update)
}

// ListGeofences lists the geofences configured for this device.
func (d *Device) ListGeofences(ctx context.Context) ([]Geofence, error) {
	return d.client.ListGeofences(ctx, d.info.ID)
}

// CreateGeofence creates a circular geofence around a point.
func (d *Device) CreateGeofence(ctx context.Context, name string, latitude, longitude, radius float64) (*Geofence, error) {
	return d.client.CreateGeofence(ctx, d.info.ID, name, latitude, longitude, radius)
}

// DeleteGeofence removes a geofence.
func (d *Device) DeleteGeofence(ctx context.Context, geofenceID string) error {
	return d.client.DeleteGeofence(ctx, d.info.ID, geofenceID)
}

// sanitizeMessage collapses whitespace, strips characters the device
// display cannot handle, and caps the length.
func sanitizeMessage(message string, maxLength int) string {
	sanitized := strings.Join(strings.Fields(message), " ")
	sanitized = strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '`', ';', '\\', '\n', '\r':
			return -1
		}
		return r
	}, sanitized)
	if len(sanitized) > maxLength {
		sanitized = sanitized[:maxLength]
	}
	return sanitized
}

func isValidPasscode(passcode string) bool {
	for _, r := range passcode {
		if r > 127 {
			return false
		}
		isDigit := r >= '0' && r <= '9'
		isLower := r >= 'a' && r <= 'z'
		isUpper := r >= 'A' && r <= 'Z'
		if !isDigit && !isLower && !isUpper {
			return false
		}
	}
	return passcode != ""
}
