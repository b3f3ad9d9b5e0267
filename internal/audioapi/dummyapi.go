package audioapi

import (
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice/device"
)

// A dummy API that lists only one input and one output device:
// - a dummy input device (produces silence at real-time speed)
// - a dummy output device (consumes all audio and does nothing)
//
// Intended for testing and dry runs without audio hardware.
type DummyAudioIODeviceAPI struct {
	sampleRate int
}

func NewDummyAudioIODeviceAPI(sampleRate int) DummyAudioIODeviceAPI {
	return DummyAudioIODeviceAPI{
		sampleRate: sampleRate,
	}
}

func (api DummyAudioIODeviceAPI) InputDevices() []AudioIODevice {
	return []AudioIODevice{
		{
			ID:          0,
			Name:        "DummyInput",
			SampleRate:  api.sampleRate,
			NumChannels: 1,
		},
	}
}

func (api DummyAudioIODeviceAPI) InitCaptureSourceFromID(id AudioIODevice) (audiodevice.CaptureSource, error) {
	if id.ID != 0 {
		return nil, errNoDeviceWithID
	}
	return device.NewDummyCaptureSource(), nil
}

func (api DummyAudioIODeviceAPI) InitDefaultCaptureSource() (audiodevice.CaptureSource, error) {
	return device.NewDummyCaptureSource(), nil
}

func (api DummyAudioIODeviceAPI) OutputDevices() []AudioIODevice {
	return []AudioIODevice{
		{
			ID:          0,
			Name:        "DummyOutput",
			SampleRate:  api.sampleRate,
			NumChannels: 1,
		},
	}
}

func (api DummyAudioIODeviceAPI) InitPlaybackSinkFromID(id AudioIODevice) (audiodevice.PlaybackSink, error) {
	if id.ID != 0 {
		return nil, errNoDeviceWithID
	}
	return device.NewDummyPlaybackSink(), nil
}

func (api DummyAudioIODeviceAPI) InitDefaultPlaybackSink() (audiodevice.PlaybackSink, error) {
	return device.NewDummyPlaybackSink(), nil
}

func (api DummyAudioIODeviceAPI) Close() error {
	return nil
}
