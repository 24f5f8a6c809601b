package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeRecordingStateChanged uint32 = iota + 1
	TypeVideoDeviceChanged
	TypePhotoCaptured
	TypeExportProgress
	TypeExportFinished
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// RecordingStateChanged is published on every recording session transition.
type RecordingStateChanged struct {
	SessionID string
	From      string
	To        string
	Path      string
	Timestamp time.Time
}

// Type returns the event type identifier for RecordingStateChanged.
func (e RecordingStateChanged) Type() uint32 { return TypeRecordingStateChanged }

// VideoDeviceChanged is published when the capture session switches camera.
type VideoDeviceChanged struct {
	DeviceID  string
	Position  string
	Mirrored  bool
	Timestamp time.Time
}

// Type returns the event type identifier for VideoDeviceChanged.
func (e VideoDeviceChanged) Type() uint32 { return TypeVideoDeviceChanged }

// PhotoCaptured is published after a still photo is taken or fails.
type PhotoCaptured struct {
	Path      string
	Error     string
	Timestamp time.Time
}

// Type returns the event type identifier for PhotoCaptured.
func (e PhotoCaptured) Type() uint32 { return TypePhotoCaptured }

// ExportProgress reports how many frames of an export are written.
type ExportProgress struct {
	Path     string
	Frames   int
	Total    int
	Progress float64
}

// Type returns the event type identifier for ExportProgress.
func (e ExportProgress) Type() uint32 { return TypeExportProgress }

// ExportFinished is published when an export completes or fails.
type ExportFinished struct {
	Path      string
	Frames    int
	Error     string
	Elapsed   time.Duration
	Timestamp time.Time
}

// Type returns the event type identifier for ExportFinished.
func (e ExportFinished) Type() uint32 { return TypeExportFinished }
