package capture

import "errors"

var (
	// ErrPhotoOutput is returned when the video session cannot take photos.
	ErrPhotoOutput = errors.New("cannot add photo capture output")
	// ErrPhotoData is returned when captured photo data is not a JPEG image.
	ErrPhotoData = errors.New("could not create photo from captured data")
	// ErrAlreadyRecording is returned by StartRecording while recording.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording is returned by StopRecording with no recording session.
	ErrNotRecording = errors.New("not recording")
	// ErrNoVideoDevice is returned when no camera is available.
	ErrNoVideoDevice = errors.New("no video device")

	errSuperseded = errors.New("recording session superseded")
)
