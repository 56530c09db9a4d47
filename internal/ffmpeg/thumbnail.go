package ffmpeg

import (
	"context"
	"fmt"
)

const thumbnailScale = "scale=320:240"

// Encoder is the application facing entry point to ffmpeg, creating
// an EncodeCommand per invocation.
type Encoder struct {
	config *Config
}

func NewEncoder(config *Config) *Encoder {
	return &Encoder{config: config}
}

func (encoder *Encoder) Encode(ctx context.Context, input string, output string, args Args, progress func(*Progress)) error {
	return NewEncodeCommand(input, output, encoder.config).Run(ctx, args, progress)
}

// Thumbnail extracts a single 320x240 frame from the input at the
// offset (in seconds) provided.
func (encoder *Encoder) Thumbnail(ctx context.Context, input string, output string, atSeconds float64) error {
	if atSeconds < 0 {
		atSeconds = 0
	}

	return encoder.Encode(ctx, input, output, ThumbnailArgs(atSeconds), nil)
}

func ThumbnailArgs(atSeconds float64) Args {
	return Args{
		"-ss":      fmt.Sprintf("%.3f", atSeconds),
		"-vframes": 1,
		"-vf":      thumbnailScale,
	}
}
