package geom

import "math"

// Orientation describes where the top row of a captured buffer ends up once
// the buffer is displayed upright.
type Orientation uint8

const (
	// OrientationUp needs no rotation.
	OrientationUp Orientation = iota
	// OrientationDown is rotated 180 degrees.
	OrientationDown
	// OrientationLeft is rotated 90 degrees counter-clockwise.
	OrientationLeft
	// OrientationRight is rotated 90 degrees clockwise.
	OrientationRight
)

// String returns the orientation name.
func (o Orientation) String() string {
	switch o {
	case OrientationUp:
		return "up"
	case OrientationDown:
		return "down"
	case OrientationLeft:
		return "left"
	case OrientationRight:
		return "right"
	default:
		return "unknown"
	}
}

// Transform returns the rotation that displays a buffer with this
// orientation upright.
func (o Orientation) Transform() Transform {
	switch o {
	case OrientationDown:
		return Rotation(math.Pi)
	case OrientationLeft:
		return Rotation(math.Pi / 2)
	case OrientationRight:
		return Rotation(-math.Pi / 2)
	default:
		return Identity
	}
}

// DeviceOrientation is the physical pose of the capturing device.
type DeviceOrientation uint8

const (
	DeviceUnknown DeviceOrientation = iota
	DevicePortrait
	DevicePortraitUpsideDown
	DeviceLandscapeLeft
	DeviceLandscapeRight
)

// ImageOrientation maps a device pose to the orientation of buffers captured
// by the back camera in that pose.
func ImageOrientation(d DeviceOrientation) Orientation {
	switch d {
	case DevicePortrait:
		return OrientationRight
	case DeviceLandscapeLeft:
		return OrientationDown
	case DeviceLandscapeRight:
		return OrientationUp
	default:
		return OrientationLeft
	}
}
