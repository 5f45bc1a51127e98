package client

import (
	"encoding/json"
	"time"
)

// DeviceInfo holds the decoded attributes of a tracked device. Raw
// carries the full API record for forward compatibility.
type DeviceInfo struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	LastSeen *time.Time     `json:"last_seen,omitempty"`
	Raw      map[string]any `json:"-"`
}

// VehicleInfo extends DeviceInfo with vehicle attributes. Upstream
// data completeness varies, so every field may be absent.
type VehicleInfo struct {
	DeviceInfo
	VIN          string   `json:"vin,omitempty"`
	Make         string   `json:"make,omitempty"`
	Model        string   `json:"model,omitempty"`
	Year         int      `json:"year,omitempty"`
	LicensePlate string   `json:"license_plate,omitempty"`
	Odometer     *float64 `json:"odometer,omitempty"`
}

// isVehicleRecord reports whether a raw asset record describes a
// vehicle. The service marks vehicles either with a VIN (possibly
// nested under attributes) or with an explicit type discriminator.
func isVehicleRecord(record map[string]any) bool {
	if stringField(record, "vin") != "" {
		return true
	}
	if attrs, ok := record["attributes"].(map[string]any); ok {
		if stringField(attrs, "vin") != "" {
			return true
		}
	}
	return stringField(record, "type") == "vehicle"
}

func deviceInfoFromRecord(record map[string]any) DeviceInfo {
	return DeviceInfo{
		ID:       stringField(record, "id", "assetId", "deviceId"),
		Name:     stringField(record, "name"),
		LastSeen: timeField(record, "last_seen", "lastSeen", "locationLastReported"),
		Raw:      record,
	}
}

func vehicleInfoFromRecord(record map[string]any) VehicleInfo {
	info := VehicleInfo{DeviceInfo: deviceInfoFromRecord(record)}

	// Vehicle attributes may live at the top level or nested under
	// "attributes", depending on the endpoint.
	sources := []map[string]any{record}
	if attrs, ok := record["attributes"].(map[string]any); ok {
		sources = append(sources, attrs)
	}

	for _, src := range sources {
		if info.VIN == "" {
			info.VIN = stringField(src, "vin")
		}
		if info.Make == "" {
			info.Make = stringField(src, "make")
		}
		if info.Model == "" {
			info.Model = stringField(src, "model")
		}
		if info.LicensePlate == "" {
			info.LicensePlate = stringField(src, "license_plate", "licensePlate", "plate")
		}
		if info.Year == 0 {
			if year := floatField(src, "year"); year != nil {
				info.Year = int(*year)
			}
		}
		if info.Odometer == nil {
			info.Odometer = floatField(src, "odometer")
		}
	}

	return info
}

// stringField returns the first non-empty string value among keys.
func stringField(record map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := record[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// floatField returns the first numeric value among keys, accepting
// both JSON numbers and numeric strings.
func floatField(record map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		switch v := record[key].(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return &f
			}
		}
	}
	return nil
}

// timeField parses the first timestamp value among keys. The service
// mixes RFC 3339 strings and epoch milliseconds across endpoints.
func timeField(record map[string]any, keys ...string) *time.Time {
	for _, key := range keys {
		switch v := record[key].(type) {
		case string:
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				utc := ts.UTC()
				return &utc
			}
		case float64:
			if v <= 0 {
				continue
			}
			ms := int64(v)
			// Values past the year 33658 in seconds are milliseconds.
			var ts time.Time
			if ms > 1e12 {
				ts = time.UnixMilli(ms).UTC()
			} else {
				ts = time.Unix(ms, 0).UTC()
			}
			return &ts
		}
	}
	return nil
}
