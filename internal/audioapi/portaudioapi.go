package audioapi

import (
	"fmt"
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice/device"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

type PortAudioApi struct {
	logger          *slog.Logger
	framesPerBuffer int
}

// Create a new PortAudioApi, with a framesPerBuffer to be given to all created devices.
// PortAudio stays initialized until Close is called.
func NewPortAudioApi(framesPerBuffer int) (*PortAudioApi, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"portaudio api uuid", uuid,
	)

	if err := portaudio.Initialize(); err != nil {
		logger.Error("failed to initialize portaudio", "err", err)
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	logger.Debug("initialized portaudio", "version", portaudio.VersionText())

	return &PortAudioApi{
		logger:          logger,
		framesPerBuffer: framesPerBuffer,
	}, nil
}

func (api *PortAudioApi) devices(input bool) []AudioIODevice {
	devices, err := portaudio.Devices()
	if err != nil {
		api.logger.Error("failed to list devices", "err", err)
		return nil
	}

	ioDevices := make([]AudioIODevice, 0)
	for _, d := range devices {
		channels := d.MaxOutputChannels
		if input {
			channels = d.MaxInputChannels
		}
		if channels > 0 {
			ioDevices = append(ioDevices, AudioIODevice{
				ID:          d.Index,
				Name:        d.Name,
				SampleRate:  int(d.DefaultSampleRate),
				NumChannels: channels,
			})
		}
	}
	return ioDevices
}

// Filters PortAudio devices to get only input
func (api *PortAudioApi) InputDevices() []AudioIODevice {
	return api.devices(true)
}

// Filters PortAudio devices to get only output
func (api *PortAudioApi) OutputDevices() []AudioIODevice {
	return api.devices(false)
}

func (api *PortAudioApi) deviceInfo(ioDevice AudioIODevice) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		api.logger.Error("failed to get devices", "err", err)
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}
	for _, d := range devices {
		if d.Index == ioDevice.ID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", errNoDeviceWithID, ioDevice.ID)
}

func (api *PortAudioApi) InitCaptureSourceFromID(ioDevice AudioIODevice) (audiodevice.CaptureSource, error) {
	info, err := api.deviceInfo(ioDevice)
	if err != nil {
		return nil, err
	}
	if info.MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %q has no input channels", info.Name)
	}
	return device.NewPortAudioCaptureSource(info, api.framesPerBuffer), nil
}

func (api *PortAudioApi) InitDefaultCaptureSource() (audiodevice.CaptureSource, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		api.logger.Error("no default input device", "err", err)
		return nil, fmt.Errorf("%w: %w", errNoDefaultDevice, err)
	}
	return device.NewPortAudioCaptureSource(info, api.framesPerBuffer), nil
}

func (api *PortAudioApi) InitPlaybackSinkFromID(ioDevice AudioIODevice) (audiodevice.PlaybackSink, error) {
	info, err := api.deviceInfo(ioDevice)
	if err != nil {
		return nil, err
	}
	if info.MaxOutputChannels < 1 {
		return nil, fmt.Errorf("device %q has no output channels", info.Name)
	}
	return device.NewPortAudioPlaybackSink(info, api.framesPerBuffer), nil
}

func (api *PortAudioApi) InitDefaultPlaybackSink() (audiodevice.PlaybackSink, error) {
	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		api.logger.Error("no default output device", "err", err)
		return nil, fmt.Errorf("%w: %w", errNoDefaultDevice, err)
	}
	return device.NewPortAudioPlaybackSink(info, api.framesPerBuffer), nil
}

func (api *PortAudioApi) Close() error {
	return portaudio.Terminate()
}
