package media

import (
	"errors"
	"time"

	"github.com/hbomb79/Mediadesk/internal/ffmpeg"
)

type Kind string

const (
	Video Kind = "video"
	Audio Kind = "audio"
)

var ErrUnknownKind = errors.New("unknown media kind")

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Video, Audio:
		return Kind(s), nil
	}

	return "", ErrUnknownKind
}

// Asset is a single video or audio file which has been uploaded or downloaded
// in to the file store. Assets are only ever created once the file has been
// written and successfully probed, and are never updated afterwards.
type Asset struct {
	ID              int64     `db:"id" json:"id"`
	Kind            Kind      `db:"kind" json:"kind"`
	Filename        string    `db:"filename" json:"filename"`
	OriginalName    string    `db:"original_name" json:"originalName"`
	RelativePath    string    `db:"relative_path" json:"relativePath"`
	FileSizeBytes   int64     `db:"file_size_bytes" json:"fileSize"`
	DurationSeconds float64   `db:"duration_seconds" json:"duration"`
	WidthPx         *int      `db:"width_px" json:"width,omitempty"`
	HeightPx        *int      `db:"height_px" json:"height,omitempty"`
	Bitrate         *int64    `db:"bitrate" json:"bitrate,omitempty"`
	SampleRate      *int      `db:"sample_rate" json:"sampleRate,omitempty"`
	ChannelCount    *int      `db:"channel_count" json:"channels,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// NewAsset builds an unsaved asset from the probe result of the file. Only
// the format specific fields relevant to the kind are populated.
func NewAsset(kind Kind, filename string, originalName string, relativePath string, probe *ffmpeg.ProbeResult) *Asset {
	asset := &Asset{
		Kind:            kind,
		Filename:        filename,
		OriginalName:    originalName,
		RelativePath:    relativePath,
		FileSizeBytes:   probe.SizeBytes,
		DurationSeconds: probe.DurationSeconds,
	}

	switch kind {
	case Video:
		if probe.Video != nil {
			width, height := probe.Video.Width, probe.Video.Height
			asset.WidthPx = &width
			asset.HeightPx = &height
		}
	case Audio:
		if probe.Audio != nil {
			bitrate, sampleRate, channels := probe.Audio.Bitrate, probe.Audio.SampleRate, probe.Audio.Channels
			asset.Bitrate = &bitrate
			asset.SampleRate = &sampleRate
			asset.ChannelCount = &channels
		}
	}

	return asset
}

// KindOf picks the kind of asset a probed file should be stored as: anything
// carrying a video stream is a video.
func KindOf(probe *ffmpeg.ProbeResult) Kind {
	if probe.Video != nil {
		return Video
	}

	return Audio
}
