package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice/device"
)

func printDevices(title string, devices []audioapi.AudioIODevice) {
	fmt.Printf("%s (%d)\n", title, len(devices))
	for _, d := range devices {
		fmt.Printf("%v\n", d)
	}
}

func main() {
	api := flag.String("api", "portaudio", "Audio API to query: 'portaudio' or 'dummy'")
	sampleRate := flag.Int("sampleRate", 44100, "Sample rate reported by the dummy API")
	flag.Parse()

	var audioAPI audioapi.AudioIODeviceAPI
	switch *api {
	case "portaudio":
		portAudioAPI, err := audioapi.NewPortAudioApi(device.DefaultFramesPerBuffer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize portaudio: %v\n", err)
			os.Exit(1)
		}
		audioAPI = portAudioAPI
	case "dummy":
		audioAPI = audioapi.NewDummyAudioIODeviceAPI(*sampleRate)
	default:
		fmt.Fprintf(os.Stderr, "Invalid api: %s. Use 'portaudio' or 'dummy'\n", *api)
		flag.Usage()
		os.Exit(1)
	}
	defer audioAPI.Close()

	printDevices("Input devices", audioAPI.InputDevices())
	fmt.Println()
	printDevices("Output devices", audioAPI.OutputDevices())
}
