package audioapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
)

var (
	errNoDefaultDevice = errors.New("no default device available")
	errNoDeviceWithID  = errors.New("no device with specified ID")
)

type AudioIODevice struct {
	// The ID of the device
	//
	// Comes from the underlying API (e.g. the PortAudio device index).
	// It is the canonical way to reference the AudioIODevice when asking
	// the API to open it.
	ID int

	// A human-readable name for the device, if one exists.
	// Not canonical.
	Name string

	// Preferred sample rate of the device.
	SampleRate int

	// Maximum channels the device offers in its direction.
	// Chirpsounder always opens a single channel.
	NumChannels int
}

func (device AudioIODevice) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "ID:          %d\n", device.ID)
	fmt.Fprintf(&sb, "Name:        %s\n", device.Name)
	fmt.Fprintf(&sb, "SampleRate:  %d\n", device.SampleRate)
	fmt.Fprintf(&sb, "NumChannels: %d\n", device.NumChannels)
	return sb.String()
}

// Define an API to interface with hardware devices.
// Intended to be an abstract way to:
// - Query existing devices (input and output)
// - Initialize an input/output device as a CaptureSource/PlaybackSink respectively
type AudioIODeviceAPI interface {
	InputDevices() []AudioIODevice
	InitCaptureSourceFromID(AudioIODevice) (audiodevice.CaptureSource, error)
	InitDefaultCaptureSource() (audiodevice.CaptureSource, error)

	OutputDevices() []AudioIODevice
	InitPlaybackSinkFromID(AudioIODevice) (audiodevice.PlaybackSink, error)
	InitDefaultPlaybackSink() (audiodevice.PlaybackSink, error)

	// Release the API. Sources and sinks created from it must not be used afterwards.
	Close() error
}

// Find a device by ID, or by exact name when id is not a number.
func FindDevice(devices []AudioIODevice, id string) (AudioIODevice, error) {
	for _, d := range devices {
		if fmt.Sprint(d.ID) == id || d.Name == id {
			return d, nil
		}
	}
	return AudioIODevice{}, fmt.Errorf("%w: %q", errNoDeviceWithID, id)
}
