package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/events"
	"github.com/opd-ai/videopipeline/render"
)

// FlashMode controls the flash for still photos.
type FlashMode uint8

const (
	FlashAuto FlashMode = iota
	FlashOff
	FlashOn
)

// String returns the flash mode name.
func (m FlashMode) String() string {
	switch m {
	case FlashOff:
		return "off"
	case FlashOn:
		return "on"
	default:
		return "auto"
	}
}

// PhotoSettings is passed to the still camera per photo.
type PhotoSettings struct {
	FlashMode FlashMode
	Mirrored  bool
}

// StillCamera takes full resolution photos on a capture session.
type StillCamera interface {
	// CapturePhoto takes one photo and calls done with its JPEG data.
	CapturePhoto(settings PhotoSettings, done func(data []byte, err error))
}

// PhotoOutput takes photos on the video session independently of any
// recording. Photos are mirrored whenever the pipeline is.
type PhotoOutput struct {
	camera   StillCamera
	pipeline *render.Pipeline
	path     string
	bus      *events.Bus

	mu        sync.Mutex
	flashMode FlashMode
}

// NewPhotoOutput attaches a photo output to session. Photos are saved to
// path.
func NewPhotoOutput(session DeviceSession, pipeline *render.Pipeline, path string, bus *events.Bus) (*PhotoOutput, error) {
	cam, ok := session.StillCamera()
	if !ok || cam == nil {
		return nil, ErrPhotoOutput
	}
	return &PhotoOutput{
		camera:   cam,
		pipeline: pipeline,
		path:     path,
		bus:      bus,
	}, nil
}

// Path returns where photos are saved.
func (p *PhotoOutput) Path() string { return p.path }

// FlashMode returns the flash mode used for the next photo.
func (p *PhotoOutput) FlashMode() FlashMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flashMode
}

// SetFlashMode sets the flash mode used for the next photo.
func (p *PhotoOutput) SetFlashMode(m FlashMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flashMode = m
}

// TakePhoto captures a photo, saves it and calls done with the decoded
// image or an error.
func (p *PhotoOutput) TakePhoto(done func(image.Image, error)) {
	settings := PhotoSettings{
		FlashMode: p.FlashMode(),
		Mirrored:  p.pipeline.Mirrored(),
	}

	logrus.WithFields(logrus.Fields{
		"function": "PhotoOutput.TakePhoto",
		"flash":    settings.FlashMode.String(),
		"mirrored": settings.Mirrored,
	}).Debug("Capturing photo")

	p.camera.CapturePhoto(settings, func(data []byte, err error) {
		img, err := p.handleCapture(data, err)
		p.publish(err)
		if done != nil {
			done(img, err)
		}
	})
}

func (p *PhotoOutput) handleCapture(data []byte, err error) (image.Image, error) {
	if err != nil {
		return nil, err
	}
	img, decodeErr := jpeg.Decode(bytes.NewReader(data))
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhotoData, decodeErr)
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "PhotoOutput.handleCapture",
			"path":     p.path,
			"error":    err.Error(),
		}).Error("Failed to save photo")
		return nil, fmt.Errorf("save photo: %w", err)
	}
	return img, nil
}

func (p *PhotoOutput) publish(err error) {
	ev := events.PhotoCaptured{Path: p.path, Timestamp: time.Now()}
	if err != nil {
		ev.Error = err.Error()
		logrus.WithFields(logrus.Fields{
			"function": "PhotoOutput.TakePhoto",
			"error":    err.Error(),
		}).Warn("Photo capture failed")
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "PhotoOutput.TakePhoto",
			"path":     p.path,
		}).Info("Photo captured")
	}
	events.Publish(p.bus, ev)
}
