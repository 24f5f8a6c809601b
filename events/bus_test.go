package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan RecordingStateChanged, 1)

	unsub := Subscribe(bus, func(e RecordingStateChanged) {
		received <- e
	})
	defer unsub()

	Publish(bus, RecordingStateChanged{SessionID: "s1", From: "ready", To: "recording"})

	select {
	case got := <-received:
		assert.Equal(t, "s1", got.SessionID)
		assert.Equal(t, "recording", got.To)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBusRoutesByType(t *testing.T) {
	bus := New()
	devices := make(chan VideoDeviceChanged, 1)
	exports := make(chan ExportFinished, 1)

	defer Subscribe(bus, func(e VideoDeviceChanged) { devices <- e })()
	defer Subscribe(bus, func(e ExportFinished) { exports <- e })()

	Publish(bus, ExportFinished{Path: "out.mp4", Frames: 3})

	select {
	case got := <-exports:
		assert.Equal(t, 3, got.Frames)
	case <-time.After(2 * time.Second):
		t.Fatal("export event not delivered")
	}
	assert.Empty(t, devices)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := New()
	received := make(chan PhotoCaptured, 4)

	unsub := Subscribe(bus, func(e PhotoCaptured) { received <- e })
	unsub()

	Publish(bus, PhotoCaptured{Path: "a.jpg"})
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, received)
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus
	require.NotPanics(t, func() {
		Publish(bus, ExportProgress{Frames: 1})
		Subscribe(bus, func(ExportProgress) {})()
	})
}

func TestEventTypesAreDistinct(t *testing.T) {
	types := []Event{
		RecordingStateChanged{},
		VideoDeviceChanged{},
		PhotoCaptured{},
		ExportProgress{},
		ExportFinished{},
	}
	seen := map[uint32]bool{}
	for _, e := range types {
		assert.False(t, seen[e.Type()])
		seen[e.Type()] = true
	}
}
