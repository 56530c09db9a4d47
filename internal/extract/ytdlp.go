// Package extract wraps the yt-dlp binary, which is used to resolve
// remote media URLs (single videos and playlists) and download them
// to an exact location on disk.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var (
	log = logger.Get("Extractor")

	ErrDownload = errors.New("extractor failed")
)

const maxStderrTail = 2048

type Format int

const (
	FormatVideo Format = iota
	FormatAudio
)

type (
	Config struct {
		BinaryPath string `yaml:"binary" env:"YTDLP_BINARY_PATH" env-default:"yt-dlp"`
	}

	// Entry is a single downloadable item, either the resolved URL itself
	// or one of the entries of a playlist.
	Entry struct {
		ID         string  `json:"id"`
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		WebpageURL string  `json:"webpage_url"`
		Duration   float64 `json:"duration"`
	}

	// Descriptor is the metadata yt-dlp reports for a URL. For playlists,
	// Entries holds each item; for a single item it is empty.
	Descriptor struct {
		Type       string  `json:"_type"`
		ID         string  `json:"id"`
		Title      string  `json:"title"`
		WebpageURL string  `json:"webpage_url"`
		Duration   float64 `json:"duration"`
		Entries    []Entry `json:"entries"`
	}

	Client struct {
		config Config
		exec   func(ctx context.Context, args ...string) ([]byte, []byte, error)
	}
)

func (f Format) String() string {
	switch f {
	case FormatVideo:
		return "video"
	case FormatAudio:
		return "audio"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", f)
	}
}

// Extension returns the file extension (including the leading '.') that
// a download in this format produces.
func (f Format) Extension() string {
	if f == FormatAudio {
		return ".mp3"
	}

	return ".mp4"
}

func (d *Descriptor) IsPlaylist() bool {
	return d.Type == "playlist" || len(d.Entries) > 0
}

// Items returns the list of downloadable items described. A single item
// descriptor yields exactly one Entry; a playlist yields its entries
// (which may be empty).
func (d *Descriptor) Items() []Entry {
	if d.IsPlaylist() {
		return d.Entries
	}

	return []Entry{{ID: d.ID, Title: d.Title, WebpageURL: d.WebpageURL, Duration: d.Duration}}
}

// Location returns the URL that should be given to the downloader
// for this entry.
func (e Entry) Location() string {
	if e.WebpageURL != "" {
		return e.WebpageURL
	}

	return e.URL
}

func New(config Config) *Client {
	client := &Client{config: config}
	client.exec = client.run

	return client
}

func (c *Client) PathOrDefault() string {
	if c.config.BinaryPath == "" {
		return "yt-dlp"
	}

	return c.config.BinaryPath
}

// Resolve asks yt-dlp for the metadata of the URL without downloading
// anything. When playlist is false, yt-dlp is told to ignore any playlist
// the URL may belong to.
func (c *Client) Resolve(ctx context.Context, url string, playlist bool) (*Descriptor, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: url is required", ErrDownload)
	}

	args := []string{"--dump-single-json", "--no-warnings", "--no-check-certificate"}
	if playlist {
		args = append(args, "--yes-playlist")
	} else {
		args = append(args, "--no-playlist")
	}
	args = append(args, url)

	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return nil, wrapExecError(c.PathOrDefault(), args, stderr, err)
	}

	descriptor, err := parseDescriptor(stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	log.Emit(logger.DEBUG, "Resolved %s to %q (playlist=%v, entries=%d)\n", url, descriptor.Title, descriptor.IsPlaylist(), len(descriptor.Entries))
	return descriptor, nil
}

// Download fetches the media at the URL to the exact output path
// provided. Video is constrained to an mp4 container, and audio is
// extracted and converted to mp3.
func (c *Client) Download(ctx context.Context, url string, outputPath string, format Format) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("%w: url is required", ErrDownload)
	}
	if strings.TrimSpace(outputPath) == "" {
		return fmt.Errorf("%w: output path is required", ErrDownload)
	}

	args := downloadArgs(url, outputPath, format)
	log.Emit(logger.NEW, "Downloading %s (%s) to %s\n", url, format, outputPath)
	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return wrapExecError(c.PathOrDefault(), args, stderr, err)
	}

	log.Emit(logger.VERBOSE, "yt-dlp output for %s: %s\n", url, stdout)
	return nil
}

func downloadArgs(url string, outputPath string, format Format) []string {
	args := []string{"-o", outputPath, "--no-warnings", "--no-check-certificate", "--no-playlist"}
	switch format {
	case FormatAudio:
		args = append(args,
			"-f", "bestaudio/best",
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", "0",
		)
	default:
		args = append(args, "-f", "best[ext=mp4]")
	}

	return append(args, url)
}

func parseDescriptor(raw []byte) (*Descriptor, error) {
	var descriptor Descriptor
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return nil, fmt.Errorf("malformed yt-dlp metadata: %w", err)
	}

	// Unavailable playlist entries are reported as null
	entries := make([]Entry, 0, len(descriptor.Entries))
	for _, entry := range descriptor.Entries {
		if entry.Location() == "" && entry.Title == "" {
			continue
		}

		entries = append(entries, entry)
	}
	if descriptor.Entries != nil {
		descriptor.Entries = entries
	}

	return &descriptor, nil
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.PathOrDefault(), args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func wrapExecError(bin string, args []string, stderr []byte, err error) error {
	tail := strings.TrimSpace(string(stderr))
	if len(tail) > maxStderrTail {
		tail = tail[len(tail)-maxStderrTail:]
	}

	if tail == "" {
		return fmt.Errorf("%w: %s %s: %w", ErrDownload, bin, strings.Join(args, " "), err)
	}

	return fmt.Errorf("%w: %s %s: %w: %s", ErrDownload, bin, strings.Join(args, " "), err, tail)
}
