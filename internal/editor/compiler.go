package editor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/event"
	"github.com/hbomb79/Mediadesk/internal/ffmpeg"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/hbomb79/Mediadesk/internal/metrics"
	"github.com/hbomb79/Mediadesk/internal/reel"
	"github.com/hbomb79/Mediadesk/internal/storage"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var log = logger.Get("Editor")

var (
	ErrEditFailed    = errors.New("edit failed")
	ErrInvalidParams = errors.New("invalid edit parameters")
)

const (
	videoCodec = "libx264"
	audioCodec = "aac"
)

type (
	Config struct {
		FontFile string `yaml:"font_file" env:"EDITOR_FONT_FILE"`
	}

	Encoder interface {
		Encode(ctx context.Context, input string, output string, args ffmpeg.Args, progress func(*ffmpeg.Progress)) error
		Thumbnail(ctx context.Context, input string, output string, atSeconds float64) error
	}

	Prober interface {
		Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
	}

	DataStore interface {
		GetDownloadedVideo(id int64) (*reel.DownloadedVideo, error)
		GetAsset(id int64) (*media.Asset, error)
		GetEditRecord(id int64) (*Record, error)
		SaveEditRecord(record *Record) error
		EditHistory(videoID int64) ([]*Record, error)
		EditRecordsForPage(pageID int64) ([]*Record, error)
		DownloadedVideosForPage(pageID int64) ([]*reel.DownloadedVideo, error)
	}

	FileStore interface {
		EnsureCategoryDirectory(category storage.Category) (string, error)
		ToAbsolute(relative string) string
		ToRelative(absolute string) string
		Exists(path string) bool
		Size(path string) (int64, error)
		Remove(path string)
	}

	// EditError is returned when an edit could not be produced. The stage
	// names the step which failed, and the diagnostic (when available)
	// describes the ffmpeg invocation responsible.
	EditError struct {
		Stage      string
		Diagnostic *ffmpeg.Diagnostic
		Err        error
	}

	// Compiler turns an edit request in to a single ffmpeg invocation,
	// runs it, and records the output.
	Compiler struct {
		config   Config
		store    DataStore
		files    FileStore
		encoder  Encoder
		prober   Prober
		validate *validator.Validate
		eventBus event.EventDispatcher
		metrics  *metrics.Metrics
		now      func() time.Time
	}

	// resolvedSource is the file an edit reads, and the download or
	// media asset the edit is attributed to.
	resolvedSource struct {
		videoID *int64
		assetID *int64
		path    string
	}
)

// label names the source in logs and output filenames. Asset sources are
// prefixed so they never collide with the downloaded video of the same ID.
func (source *resolvedSource) label() string {
	if source.assetID != nil {
		return fmt.Sprintf("asset%d", *source.assetID)
	}

	return fmt.Sprintf("%d", *source.videoID)
}

func (e *EditError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrEditFailed, e.Stage, e.Err)
}

func (e *EditError) Unwrap() []error { return []error{ErrEditFailed, e.Err} }

func newEditError(stage string, err error) *EditError {
	editErr := &EditError{Stage: stage, Err: err}

	var encodeErr *ffmpeg.EncodeError
	if errors.As(err, &encodeErr) {
		diagnostic := encodeErr.Diagnostic
		editErr.Diagnostic = &diagnostic
	}

	return editErr
}

func NewCompiler(config Config, store DataStore, files FileStore, encoder Encoder, prober Prober, validate *validator.Validate, eventBus event.EventDispatcher, metrics *metrics.Metrics) *Compiler {
	return &Compiler{
		config:   config,
		store:    store,
		files:    files,
		encoder:  encoder,
		prober:   prober,
		validate: validate,
		eventBus: eventBus,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Compile applies the edit described by the request to its source video.
// On success exactly one EditRecord is persisted and returned. On failure
// nothing is persisted, and any files produced are removed.
func (compiler *Compiler) Compile(ctx context.Context, request Request) (*Record, error) {
	if err := compiler.validate.Struct(request); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	source, err := compiler.resolveSource(request.Source)
	if err != nil {
		return nil, err
	}

	probe, err := compiler.prober.Probe(ctx, source.path)
	if err != nil {
		return nil, newEditError("probe source", err)
	}

	params, err := request.Params.normalized(probe.DurationSeconds)
	if err != nil {
		return nil, err
	}

	args, err := compiler.buildArgs(params, probe.DurationSeconds)
	if err != nil {
		return nil, err
	}

	outputPath, thumbPath, err := compiler.outputPaths(source.label())
	if err != nil {
		return nil, newEditError("prepare output", err)
	}

	cleanup := func() {
		compiler.files.Remove(outputPath)
		compiler.files.Remove(thumbPath)
	}

	log.Emit(logger.NEW, "Editing video %s from %s -> %s\n", source.label(), source.path, outputPath)
	started := time.Now()
	err = compiler.encoder.Encode(ctx, source.path, outputPath, args, func(p *ffmpeg.Progress) {
		log.Emit(logger.VERBOSE, "Edit of video %s: %.2f%% (%s)\n", source.label(), p.Progress, p.Speed)
	})
	if err == nil {
		err = compiler.verifyOutput(outputPath)
	}
	compiler.metrics.RecordEdit(time.Since(started), err)
	if err != nil {
		cleanup()
		log.Emit(logger.ERROR, "Edit of video %s failed: %v\n", source.label(), err)

		var editErr *EditError
		if errors.As(err, &editErr) {
			return nil, err
		}
		return nil, newEditError("encode", err)
	}

	outputDuration := params.duration(probe.DurationSeconds)
	if outputProbe, err := compiler.prober.Probe(ctx, outputPath); err == nil && outputProbe.DurationSeconds > 0 {
		outputDuration = outputProbe.DurationSeconds
	}

	if err := compiler.encoder.Thumbnail(ctx, outputPath, thumbPath, outputDuration/2); err != nil {
		cleanup()
		return nil, newEditError("thumbnail", err)
	}

	thumbRelative := compiler.files.ToRelative(thumbPath)
	record := &Record{
		SourceVideoID:         source.videoID,
		SourceAssetID:         source.assetID,
		PageID:                request.PageID,
		OutputRelativePath:    compiler.files.ToRelative(outputPath),
		ThumbnailRelativePath: &thumbRelative,
		EditParameters:        database.NewJsonColumn(params),
	}
	if err := compiler.store.SaveEditRecord(record); err != nil {
		cleanup()
		return nil, err
	}

	log.Emit(logger.SUCCESS, "Edit %d of video %s complete: %s\n", record.ID, source.label(), record.OutputRelativePath)
	compiler.eventBus.Dispatch(event.EDIT_COMPLETE, record.ID)
	return record, nil
}

// resolveSource finds the file the edit should be applied to. Edits of
// an edit are attributed to the original source of that edit.
func (compiler *Compiler) resolveSource(source Source) (*resolvedSource, error) {
	var resolved resolvedSource
	switch source.Kind {
	case SourceOriginal:
		video, err := compiler.store.GetDownloadedVideo(source.ID)
		if err != nil {
			return nil, err
		}
		resolved = resolvedSource{videoID: &video.ID, path: video.LocalFilePath}
	case SourceAsset:
		asset, err := compiler.store.GetAsset(source.ID)
		if err != nil {
			return nil, err
		}
		if asset.Kind != media.Video {
			return nil, fmt.Errorf("%w: media asset %d is %s, not video", ErrInvalidParams, asset.ID, asset.Kind)
		}
		resolved = resolvedSource{assetID: &asset.ID, path: compiler.files.ToAbsolute(asset.RelativePath)}
	case SourceEdit:
		record, err := compiler.store.GetEditRecord(source.ID)
		if err != nil {
			return nil, err
		}
		if record.SourceVideoID == nil && record.SourceAssetID == nil {
			return nil, newEditError("resolve source", fmt.Errorf("source of edit %d no longer exists", record.ID))
		}
		resolved = resolvedSource{videoID: record.SourceVideoID, assetID: record.SourceAssetID, path: compiler.files.ToAbsolute(record.OutputRelativePath)}
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", ErrInvalidParams, source.Kind)
	}

	if !compiler.files.Exists(resolved.path) {
		return nil, newEditError("resolve source", fmt.Errorf("source file %s does not exist", resolved.path))
	}

	return &resolved, nil
}

func (compiler *Compiler) buildArgs(params Params, sourceDuration float64) (ffmpeg.Args, error) {
	args := ffmpeg.Args{"-c:v": videoCodec, "-c:a": audioCodec}

	if params.Trim != nil {
		args["-ss"] = num(*params.Trim.Start)
		args["-t"] = num(*params.Trim.End - *params.Trim.Start)
	}

	tl := params.timeline(sourceDuration)
	if graph := buildFilterGraph(params, tl, compiler.config.FontFile); graph != "" {
		args["-filter_complex"] = graph
	}

	chain, err := NewAudioChain(params.AudioEffects, tl.offset, tl.duration)
	if err != nil {
		return nil, err
	}
	if !chain.Empty() {
		args["-af"] = chain.String()
	}

	return args, nil
}

func (compiler *Compiler) outputPaths(label string) (string, string, error) {
	editedDir, err := compiler.files.EnsureCategoryDirectory(storage.EditedOutput)
	if err != nil {
		return "", "", err
	}

	thumbDir, err := compiler.files.EnsureCategoryDirectory(storage.Thumbnails)
	if err != nil {
		return "", "", err
	}

	stamp := compiler.now().UnixMilli()
	return filepath.Join(editedDir, fmt.Sprintf("%s_%d_edited.mp4", label, stamp)),
		filepath.Join(thumbDir, fmt.Sprintf("%s_%d_thumb.jpg", label, stamp)),
		nil
}

// verifyOutput ensures the encoder actually produced something, as ffmpeg
// can exit cleanly having written an empty file.
func (compiler *Compiler) verifyOutput(outputPath string) error {
	size, err := compiler.files.Size(outputPath)
	if err != nil {
		return newEditError("verify output", fmt.Errorf("output file was not created: %w", err))
	}
	if size == 0 {
		return newEditError("verify output", errors.New("output file is empty"))
	}

	return nil
}
