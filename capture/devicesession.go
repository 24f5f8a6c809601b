package capture

import (
	"github.com/opd-ai/videopipeline/recording"
)

// DeviceSession is one platform capture session. Recording sessions attach
// their data outputs to it through the recording.Source methods.
type DeviceSession interface {
	recording.Source

	// BeginConfiguration starts a batch of input changes that take effect
	// atomically on CommitConfiguration.
	BeginConfiguration()
	CommitConfiguration()

	Inputs() []Device
	AddInput(d Device) error
	RemoveInput(d Device)

	StartRunning()
	StopRunning()
	IsRunning() bool

	// StillCamera returns the still image output of the session. ok is
	// false when the session cannot take photos.
	StillCamera() (cam StillCamera, ok bool)
}

// AudioCategory is the platform audio session category.
type AudioCategory uint8

const (
	// AudioCategoryAmbient mixes with other audio and does not record.
	AudioCategoryAmbient AudioCategory = iota
	// AudioCategoryPlayAndRecord records while mixing with other audio and
	// plays through the speaker.
	AudioCategoryPlayAndRecord
)

// AudioPort is an output port override.
type AudioPort uint8

const (
	AudioPortNone AudioPort = iota
	AudioPortSpeaker
)

// AudioRoute is the shared platform audio route.
type AudioRoute interface {
	IsOtherAudioPlaying() bool
	SetActive(active, notifyOthers bool) error
	SetCategory(c AudioCategory) error
	OverrideOutputPort(p AudioPort) error
}

type nopAudioRoute struct{}

func (nopAudioRoute) IsOtherAudioPlaying() bool          { return false }
func (nopAudioRoute) SetActive(bool, bool) error         { return nil }
func (nopAudioRoute) SetCategory(AudioCategory) error    { return nil }
func (nopAudioRoute) OverrideOutputPort(AudioPort) error { return nil }

// routeForRecording takes over the audio route for recording.
func routeForRecording(r AudioRoute) error {
	if r.IsOtherAudioPlaying() {
		if err := r.SetActive(false, true); err != nil {
			return err
		}
	}
	if err := r.SetCategory(AudioCategoryPlayAndRecord); err != nil {
		return err
	}
	if err := r.OverrideOutputPort(AudioPortSpeaker); err != nil {
		return err
	}
	return r.SetActive(true, false)
}

// releaseRoute hands the audio route back to other applications.
func releaseRoute(r AudioRoute) error {
	if err := r.SetActive(false, true); err != nil {
		return err
	}
	if err := r.SetCategory(AudioCategoryAmbient); err != nil {
		return err
	}
	return r.OverrideOutputPort(AudioPortNone)
}
