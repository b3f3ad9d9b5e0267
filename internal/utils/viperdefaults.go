package utils

import "github.com/spf13/viper"

// Set the viper defaults for a chirpsounder.
// For use in cmd/sounder and cmd/devices.
func SetViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")

	viper.SetDefault("sweep.starthz", 18000.0)
	viper.SetDefault("sweep.endhz", 20000.0)
	viper.SetDefault("sweep.durationseconds", 2)
	viper.SetDefault("sweep.samplerate", 44100)

	viper.SetDefault("session.durationseconds", 10)
	viper.SetDefault("session.tailmilliseconds", 200)
	viper.SetDefault("session.writechunkbytes", 4096)
	viper.SetDefault("session.readchunkbytes", 2048)

	viper.SetDefault("cycles.count", 1)
	viper.SetDefault("cycles.intervalseconds", 0)

	viper.SetDefault("output.dir", ".")
	viper.SetDefault("output.prefix", "chirp_reflection")
	viper.SetDefault("output.mode", "wav")

	viper.SetDefault("capture.backend", "portaudio")
	viper.SetDefault("capture.device", "")
	viper.SetDefault("capture.file", "")
	viper.SetDefault("playback.backend", "portaudio")
	viper.SetDefault("playback.device", "")
	viper.SetDefault("playback.file", "")
	viper.SetDefault("portaudio.framesperbuffer", 1024)

	viper.SetDefault("loopback.delaymilliseconds", 20)
	viper.SetDefault("loopback.attenuation", 0.5)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.address", ":9464")
}
