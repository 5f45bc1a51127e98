package client

import (
	"context"
)

// Vehicle is a Device with vehicle attributes and vehicle-only remote
// commands.
type Vehicle struct {
	Device
	vinfo VehicleInfo
}

func newVehicle(c *Client, info VehicleInfo) *Vehicle {
	v := &Vehicle{vinfo: info}
	v.Device.client = c
	v.Device.info = info.DeviceInfo
	v.Device.lastSeen = info.DeviceInfo.LastSeen
	return v
}

// VehicleInfo returns the decoded vehicle attributes.
func (v *Vehicle) VehicleInfo() VehicleInfo { return v.vinfo }

// VIN returns the vehicle identification number, if known.
func (v *Vehicle) VIN() string { return v.vinfo.VIN }

// Make returns the vehicle make, if known.
func (v *Vehicle) Make() string { return v.vinfo.Make }

// Model returns the vehicle model, if known.
func (v *Vehicle) Model() string { return v.vinfo.Model }

// Year returns the model year, or 0 if unknown.
func (v *Vehicle) Year() int { return v.vinfo.Year }

// LicensePlate returns the license plate, if known.
func (v *Vehicle) LicensePlate() string { return v.vinfo.LicensePlate }

// Odometer returns the odometer reading, if known.
func (v *Vehicle) Odometer() *float64 { return v.vinfo.Odometer }

// StartEngine remote-starts the engine.
func (v *Vehicle) StartEngine(ctx context.Context) (bool, error) {
	return v.SendCommand(ctx, "start")
}

// StopEngine remote-stops the engine.
func (v *Vehicle) StopEngine(ctx context.Context) (bool, error) {
	return v.SendCommand(ctx, "stop")
}

// HonkHorn honks the horn.
func (v *Vehicle) HonkHorn(ctx context.Context) (bool, error) {
	return v.SendCommand(ctx, "honk")
}

// FlashLights flashes the lights.
func (v *Vehicle) FlashLights(ctx context.Context) (bool, error) {
	return v.SendCommand(ctx, "flash")
}

// UpdateVehicle changes vehicle attributes on the service.
func (v *Vehicle) UpdateVehicle(ctx context.Context, update AssetUpdate) error {
	return v.client.UpdateAsset(ctx, v.info.ID, update)
}
