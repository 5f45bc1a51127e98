package client

import (
	"time"
)

// Location is a single position observation. Latitude and longitude
// are nil when the service has no fix; Raw carries the original
// payload for forward compatibility with fields this library does not
// model.
type Location struct {
	Latitude  *float64       `json:"latitude,omitempty"`
	Longitude *float64       `json:"longitude,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Accuracy  *float64       `json:"accuracy,omitempty"`
	Speed     *float64       `json:"speed,omitempty"`
	Heading   *float64       `json:"heading,omitempty"`
	Address   string         `json:"address,omitempty"`
	Raw       map[string]any `json:"-"`
}

// HasFix reports whether the observation carries usable coordinates.
func (l *Location) HasFix() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// locationFromRecord decodes a location-shaped mapping. It accepts the
// spellings used by both the asset snapshot (lat/lng) and the event
// stream (latitude/longitude).
func locationFromRecord(record map[string]any) *Location {
	if record == nil {
		return nil
	}

	loc := &Location{Raw: record}
	loc.Latitude = floatField(record, "latitude", "lat")
	loc.Longitude = floatField(record, "longitude", "lng", "lon")
	loc.Accuracy = floatField(record, "accuracy", "hdop")
	loc.Speed = floatField(record, "speed")
	loc.Heading = floatField(record, "heading", "bearing")
	loc.Timestamp = timeField(record, "timestamp", "eventDate", "date", "fixTime")

	if addr := stringField(record, "address"); addr != "" {
		loc.Address = addr
	} else if nested, ok := record["address"].(map[string]any); ok {
		loc.Address = stringField(nested, "line1", "formatted")
	}

	return loc
}

// reconcileLocations selects the authoritative observation between the
// asset snapshot's embedded last-known location and the most recent
// event-stream entry. The two API surfaces are updated independently
// upstream, so neither can be trusted alone.
//
// Rules: candidates without a fix are discarded; a strictly more
// recent timestamp wins; on an exact tie, a missing timestamp, or two
// missing timestamps, the event candidate wins, as events reflect the
// service's canonical ping stream.
func reconcileLocations(asset, event *Location) *Location {
	if !asset.HasFix() {
		asset = nil
	}
	if !event.HasFix() {
		event = nil
	}

	switch {
	case asset == nil:
		return event
	case event == nil:
		return asset
	}

	// Only a strictly newer asset timestamp beats the event; any
	// ambiguity (tie, either timestamp missing) falls to the event.
	if asset.Timestamp != nil && event.Timestamp != nil && asset.Timestamp.After(*event.Timestamp) {
		return asset
	}
	return event
}

// enrichLocation copies telemetry the winner is missing from the other
// candidate. Coordinates and timestamp are never altered: the
// reconciler already decided which observation is authoritative.
func enrichLocation(winner, other *Location) {
	if winner == nil || other == nil {
		return
	}
	if winner.Speed == nil && other.Speed != nil {
		winner.Speed = other.Speed
	}
	if winner.Heading == nil && other.Heading != nil {
		winner.Heading = other.Heading
	}
	if winner.Accuracy == nil && other.Accuracy != nil {
		winner.Accuracy = other.Accuracy
	}
	if winner.Address == "" && other.Address != "" {
		winner.Address = other.Address
	}
}
