package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice/device"
	"github.com/spf13/viper"
)

// The audio ports of the sounder, and what must be released once it is done.
type ports struct {
	sink    audiodevice.PlaybackSink
	source  audiodevice.CaptureSource
	closers []io.Closer
}

func (p *ports) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Build the capture source and playback sink named by capture.backend and
// playback.backend.
func initializePorts() (*ports, error) {
	p := &ports{}

	var portAudioAPI *audioapi.PortAudioApi
	getPortAudioAPI := func() (*audioapi.PortAudioApi, error) {
		if portAudioAPI != nil {
			return portAudioAPI, nil
		}
		api, err := audioapi.NewPortAudioApi(viper.GetInt("portaudio.framesperbuffer"))
		if err != nil {
			return nil, err
		}
		portAudioAPI = api
		p.closers = append(p.closers, api)
		return api, nil
	}

	var loopback *device.LoopbackDevice
	getLoopback := func() *device.LoopbackDevice {
		if loopback == nil {
			loopback = device.NewLoopbackDevice(
				time.Duration(viper.GetInt("loopback.delaymilliseconds"))*time.Millisecond,
				viper.GetFloat64("loopback.attenuation"),
			)
		}
		return loopback
	}

	var err error
	switch backend := viper.GetString("capture.backend"); backend {
	case "portaudio":
		var api *audioapi.PortAudioApi
		if api, err = getPortAudioAPI(); err == nil {
			p.source, err = initCaptureSource(api, viper.GetString("capture.device"))
		}
	case "file":
		p.source = device.NewFileCaptureSource(viper.GetString("capture.file"))
	case "loopback":
		p.source = getLoopback()
	case "dummy":
		p.source = device.NewDummyCaptureSource()
	default:
		err = fmt.Errorf("unknown capture backend %q", backend)
	}
	if err != nil {
		return nil, errors.Join(err, p.Close())
	}

	switch backend := viper.GetString("playback.backend"); backend {
	case "portaudio":
		var api *audioapi.PortAudioApi
		if api, err = getPortAudioAPI(); err == nil {
			p.sink, err = initPlaybackSink(api, viper.GetString("playback.device"))
		}
	case "oto":
		p.sink = device.NewOtoPlaybackSink(viper.GetInt("portaudio.framesperbuffer"))
	case "file":
		p.sink = device.NewFilePlaybackSink(viper.GetString("playback.file"))
	case "loopback":
		p.sink = getLoopback()
	case "dummy":
		p.sink = device.NewDummyPlaybackSink()
	default:
		err = fmt.Errorf("unknown playback backend %q", backend)
	}
	if err != nil {
		return nil, errors.Join(err, p.Close())
	}

	slog.Info(
		"audio ports ready",
		"capture", viper.GetString("capture.backend"),
		"playback", viper.GetString("playback.backend"),
	)
	return p, nil
}

// The named input device, or the default one when name is empty.
func initCaptureSource(api audioapi.AudioIODeviceAPI, name string) (audiodevice.CaptureSource, error) {
	if name == "" {
		return api.InitDefaultCaptureSource()
	}
	ioDevice, err := audioapi.FindDevice(api.InputDevices(), name)
	if err != nil {
		return nil, err
	}
	return api.InitCaptureSourceFromID(ioDevice)
}

// The named output device, or the default one when name is empty.
func initPlaybackSink(api audioapi.AudioIODeviceAPI, name string) (audiodevice.PlaybackSink, error) {
	if name == "" {
		return api.InitDefaultPlaybackSink()
	}
	ioDevice, err := audioapi.FindDevice(api.OutputDevices(), name)
	if err != nil {
		return nil, err
	}
	return api.InitPlaybackSinkFromID(ioDevice)
}
