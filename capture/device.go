package capture

import (
	"github.com/opd-ai/videopipeline/media"
)

// Position is the physical placement of a capture device.
type Position uint8

const (
	// PositionUnspecified is used for devices with no fixed placement, such
	// as microphones.
	PositionUnspecified Position = iota
	// PositionBack faces away from the user.
	PositionBack
	// PositionFront faces the user.
	PositionFront
)

// String returns the position name.
func (p Position) String() string {
	switch p {
	case PositionBack:
		return "back"
	case PositionFront:
		return "front"
	default:
		return "unspecified"
	}
}

// Capabilities lists optional features a device supports.
type Capabilities struct {
	SmoothAutoFocus bool
	LowLightBoost   bool
}

// DeviceSettings is applied to a device while it is locked for
// configuration.
type DeviceSettings struct {
	SmoothAutoFocus             bool
	AutoLowLightBoost           bool
	SubjectAreaChangeMonitoring bool
}

// Device is a camera or microphone.
type Device interface {
	ID() string
	Name() string
	Position() Position
	MediaType() media.MediaType
	Capabilities() Capabilities
	// Configure locks the device, applies settings and unlocks it.
	Configure(settings DeviceSettings) error
}

// Discovery enumerates the capture devices of a media type.
type Discovery interface {
	Devices(mt media.MediaType) []Device
}

// settingsFor enables every optional feature the device supports.
func settingsFor(d Device) DeviceSettings {
	caps := d.Capabilities()
	return DeviceSettings{
		SmoothAutoFocus:             caps.SmoothAutoFocus,
		AutoLowLightBoost:           caps.LowLightBoost,
		SubjectAreaChangeMonitoring: true,
	}
}
