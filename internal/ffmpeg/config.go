package ffmpeg

// Config holds the locations of the ffmpeg and ffprobe binaries used
// by the encoder and probe. Empty values fall back to a PATH lookup.
type Config struct {
	FfmpegBinPath  string `yaml:"ffmpeg_binary" env:"FFMPEG_BINARY_PATH" env-default:"/usr/bin/ffmpeg"`
	FfprobeBinPath string `yaml:"ffprobe_binary" env:"FFPROBE_BINARY_PATH" env-default:"/usr/bin/ffprobe"`
}

func (config *Config) ffmpegBinary() string {
	if config == nil || config.FfmpegBinPath == "" {
		return "ffmpeg"
	}

	return config.FfmpegBinPath
}

func (config *Config) ffprobeBinary() string {
	if config == nil || config.FfprobeBinPath == "" {
		return "ffprobe"
	}

	return config.FfprobeBinPath
}
