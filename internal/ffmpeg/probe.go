package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var ErrProbe = errors.New("probe failed")

type (
	VideoStream struct {
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Codec  string `json:"codec"`
	}

	AudioStream struct {
		Bitrate    int64  `json:"bitrate"`
		SampleRate int    `json:"sampleRate"`
		Channels   int    `json:"channels"`
		Codec      string `json:"codec"`
	}

	// ProbeResult is the subset of ffprobe's output the rest of
	// the application cares about. The video and audio streams
	// are nil when the container has no stream of that type.
	ProbeResult struct {
		DurationSeconds float64      `json:"durationSeconds"`
		FormatName      string       `json:"formatName"`
		SizeBytes       int64        `json:"sizeBytes"`
		Bitrate         int64        `json:"bitrate"`
		Video           *VideoStream `json:"video,omitempty"`
		Audio           *AudioStream `json:"audio,omitempty"`
	}

	// Prober extracts media metadata from files on disk using ffprobe.
	Prober struct {
		config *Config
		run    commandRunner
	}

	commandRunner func(ctx context.Context, bin string, args ...string) (stdout []byte, stderr []byte, err error)

	ffprobeOutput struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			BitRate    string `json:"bit_rate"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
			Size       string `json:"size"`
			BitRate    string `json:"bit_rate"`
		} `json:"format"`
	}
)

func NewProber(config *Config) *Prober {
	return &Prober{config: config, run: execCommand}
}

// Probe runs ffprobe against the file at the path provided. Any failure
// (missing file, unrecognised container, unparseable output) is returned
// wrapping ErrProbe.
func (prober *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %w", ErrProbe, path, err)
	}

	args := []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path}
	stdout, stderr, err := prober.run(ctx, prober.config.ffprobeBinary(), args...)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}

		return nil, fmt.Errorf("%w: ffprobe rejected %s: %s", ErrProbe, path, msg)
	}

	result, err := parseProbeOutput(stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProbe, path, err)
	}

	log.Emit(logger.DEBUG, "Probed %s: %+v\n", path, result)
	return result, nil
}

func parseProbeOutput(raw []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("malformed ffprobe output: %w", err)
	}

	if out.Format.FormatName == "" && len(out.Streams) == 0 {
		return nil, errors.New("ffprobe reported no format or streams")
	}

	result := &ProbeResult{
		DurationSeconds: parseFloat(out.Format.Duration),
		FormatName:      out.Format.FormatName,
		SizeBytes:       parseInt(out.Format.Size),
		Bitrate:         parseInt(out.Format.BitRate),
	}

	for _, stream := range out.Streams {
		switch stream.CodecType {
		case "video":
			if result.Video != nil {
				continue
			}

			result.Video = &VideoStream{Width: stream.Width, Height: stream.Height, Codec: stream.CodecName}
		case "audio":
			if result.Audio != nil {
				continue
			}

			bitrate := parseInt(stream.BitRate)
			if bitrate == 0 {
				bitrate = result.Bitrate
			}

			result.Audio = &AudioStream{
				Bitrate:    bitrate,
				SampleRate: int(parseInt(stream.SampleRate)),
				Channels:   stream.Channels,
				Codec:      stream.CodecName,
			}
		}
	}

	return result, nil
}

func execCommand(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ffprobe reports numeric values as strings, and uses "N/A" when unknown.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}

	return v
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}

	return v
}
