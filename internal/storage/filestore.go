package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var log = logger.Get("FileStore")

const directoryPermissions os.FileMode = 0o755

type Category int

const (
	RawUploads Category = iota
	TempVideo
	TempAudio
	Playlists
	EditedOutput
	Thumbnails
	Images
	ReelDownloads
	JsonUploads
)

var (
	ErrFileSystem      = errors.New("file system failure")
	ErrOutsideRoot     = errors.New("path is not rooted under the storage root")
	ErrUnknownCategory = errors.New("unknown storage category")

	unsafeNameChars      = regexp.MustCompile(`[^a-z0-9]`)
	unsafeSubdirectories = regexp.MustCompile(`[^a-zA-Z0-9-_]`)
)

type (
	// Config describes where on disk each category of artifact
	// lives. Category paths are relative to the PublicRoot unless
	// they are absolute, in which case they are used as-is (e.g. a
	// playlist directory on an external volume).
	Config struct {
		PublicRoot    string `yaml:"public_root" env:"STORAGE_PUBLIC_ROOT" env-default:"./public"`
		RawUploads    string `yaml:"raw_uploads" env:"STORAGE_RAW_UPLOADS" env-default:"uploads"`
		TempVideo     string `yaml:"temp_video" env:"STORAGE_TEMP_VIDEO" env-default:"uploads/temp_video"`
		TempAudio     string `yaml:"temp_audio" env:"STORAGE_TEMP_AUDIO" env-default:"uploads/temp_audio"`
		Playlists     string `yaml:"playlists" env:"STORAGE_PLAYLISTS" env-default:"playlists"`
		EditedOutput  string `yaml:"edited_output" env:"STORAGE_EDITED_OUTPUT" env-default:"edited_videos"`
		Thumbnails    string `yaml:"thumbnails" env:"STORAGE_THUMBNAILS" env-default:"thumbnails"`
		Images        string `yaml:"images" env:"STORAGE_IMAGES" env-default:"images"`
		ReelDownloads string `yaml:"reel_downloads" env:"STORAGE_REEL_DOWNLOADS" env-default:"downloads"`
		JsonUploads   string `yaml:"json_uploads" env:"STORAGE_JSON_UPLOADS" env-default:"uploads/json"`
	}

	// FileStore manages the placement of artifacts on disk, and
	// the translation between the absolute paths used on the host
	// and the root-relative paths persisted in the database.
	FileStore struct {
		root        string
		directories map[Category]string
		ensured     sync.Map
	}
)

func (c Category) String() string {
	switch c {
	case RawUploads:
		return "raw_uploads"
	case TempVideo:
		return "temp_video"
	case TempAudio:
		return "temp_audio"
	case Playlists:
		return "playlists"
	case EditedOutput:
		return "edited_output"
	case Thumbnails:
		return "thumbnails"
	case Images:
		return "images"
	case ReelDownloads:
		return "reel_downloads"
	case JsonUploads:
		return "json_uploads"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", c)
	}
}

// New constructs a FileStore using the configuration provided. The
// public root is resolved to an absolute, cleaned path.
func New(config Config) (*FileStore, error) {
	root, err := filepath.Abs(config.PublicRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve public root %q: %w", ErrFileSystem, config.PublicRoot, err)
	}

	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}

		return filepath.Join(root, p)
	}

	return &FileStore{
		root: root,
		directories: map[Category]string{
			RawUploads:    resolve(config.RawUploads),
			TempVideo:     resolve(config.TempVideo),
			TempAudio:     resolve(config.TempAudio),
			Playlists:     resolve(config.Playlists),
			EditedOutput:  resolve(config.EditedOutput),
			Thumbnails:    resolve(config.Thumbnails),
			Images:        resolve(config.Images),
			ReelDownloads: resolve(config.ReelDownloads),
			JsonUploads:   resolve(config.JsonUploads),
		},
	}, nil
}

func (store *FileStore) Root() string { return store.root }

// CategoryPath returns the absolute directory path for the category
// without creating it.
func (store *FileStore) CategoryPath(category Category) (string, error) {
	dir, ok := store.directories[category]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	return dir, nil
}

// EnsureCategoryDirectory returns the absolute path for the category
// provided, creating the directory (and any parents) if it does not
// already exist. Safe to call concurrently.
func (store *FileStore) EnsureCategoryDirectory(category Category) (string, error) {
	dir, err := store.CategoryPath(category)
	if err != nil {
		return "", err
	}

	if _, ok := store.ensured.Load(dir); ok {
		return dir, nil
	}

	if err := ensureDirectory(dir); err != nil {
		return "", err
	}

	store.ensured.Store(dir, struct{}{})
	return dir, nil
}

// SubDirectory ensures a directory named 'name' exists beneath the
// category directory and returns its absolute path. The name is used
// verbatim, callers are expected to sanitize it first.
func (store *FileStore) SubDirectory(category Category, name string) (string, error) {
	base, err := store.EnsureCategoryDirectory(category)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(base, filepath.Base(filepath.Clean("/"+name)))
	if err := ensureDirectory(dir); err != nil {
		return "", err
	}

	return dir, nil
}

// Place copies the content of the reader in to a new file named
// 'desiredName' inside the category directory, returning the path
// of the new file relative to the public root.
func (store *FileStore) Place(category Category, source io.Reader, desiredName string) (string, error) {
	target, err := store.targetPath(category, desiredName)
	if err != nil {
		return "", err
	}

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create %s: %w", ErrFileSystem, target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, source); err != nil {
		out.Close()
		os.Remove(target)
		return "", fmt.Errorf("%w: failed to write %s: %w", ErrFileSystem, target, err)
	}

	return store.ToRelative(target), nil
}

// PlaceFile moves an existing file (e.g. a multipart temp file) in to
// the category directory. If a rename is not possible (such as when
// crossing devices) the file is copied and the source removed.
func (store *FileStore) PlaceFile(category Category, sourcePath string, desiredName string) (string, error) {
	target, err := store.targetPath(category, desiredName)
	if err != nil {
		return "", err
	}

	if err := os.Rename(sourcePath, target); err == nil {
		return store.ToRelative(target), nil
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %w", ErrFileSystem, sourcePath, err)
	}
	defer src.Close()

	rel, err := store.Place(category, src, desiredName)
	if err != nil {
		return "", err
	}

	if err := os.Remove(sourcePath); err != nil {
		log.Emit(logger.WARNING, "Failed to remove source %s after copy: %v\n", sourcePath, err)
	}

	return rel, nil
}

// ToRelative converts an absolute path beneath the public root in to
// a root-relative, slash separated path. Paths outside the root are
// returned unchanged, as they cannot be expressed relative to the root.
func (store *FileStore) ToRelative(absolute string) string {
	clean := filepath.Clean(absolute)
	rel, err := filepath.Rel(store.root, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return absolute
	}

	return filepath.ToSlash(rel)
}

// ToAbsolute converts a root-relative path to an absolute path on the host.
// Absolute paths that already point beneath the root, or beneath a category
// directory configured outside of it, are returned cleaned. Otherwise a
// leading slash on the relative path is ignored.
func (store *FileStore) ToAbsolute(relative string) string {
	if filepath.IsAbs(relative) && (store.IsRooted(relative) || store.inCategoryDirectory(relative)) {
		return filepath.Clean(relative)
	}

	trimmed := strings.TrimPrefix(filepath.FromSlash(relative), string(filepath.Separator))
	return filepath.Join(store.root, trimmed)
}

// IsRooted returns true if the absolute path provided lives beneath the
// public root of this store.
func (store *FileStore) IsRooted(absolute string) bool {
	return isBeneath(store.root, absolute)
}

func (store *FileStore) inCategoryDirectory(absolute string) bool {
	for _, dir := range store.directories {
		if isBeneath(dir, absolute) {
			return true
		}
	}

	return false
}

func isBeneath(dir string, absolute string) bool {
	rel, err := filepath.Rel(dir, filepath.Clean(absolute))
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Exists reports whether the path (absolute, or root-relative) exists on disk.
func (store *FileStore) Exists(path string) bool {
	if !filepath.IsAbs(path) {
		path = store.ToAbsolute(path)
	}

	_, err := os.Stat(path)
	return err == nil
}

// Size returns the size in bytes of the file at the given path (absolute or root-relative).
func (store *FileStore) Size(path string) (int64, error) {
	if !filepath.IsAbs(path) {
		path = store.ToAbsolute(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFileSystem, err)
	}

	return info.Size(), nil
}

// Remove deletes the file at the path provided (absolute, or root-relative). Failure
// is logged but never returned, as removal is used exclusively for cleanup.
func (store *FileStore) Remove(path string) {
	if path == "" {
		return
	}

	if !filepath.IsAbs(path) {
		path = store.ToAbsolute(path)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Emit(logger.WARNING, "Failed to remove %s: %v\n", path, err)
		return
	}

	log.Emit(logger.REMOVE, "Removed %s\n", path)
}

func (store *FileStore) targetPath(category Category, desiredName string) (string, error) {
	dir, err := store.EnsureCategoryDirectory(category)
	if err != nil {
		return "", err
	}

	name := filepath.Base(filepath.Clean("/" + desiredName))
	if name == "/" || name == "." {
		return "", fmt.Errorf("%w: invalid file name %q", ErrFileSystem, desiredName)
	}

	return filepath.Join(dir, name), nil
}

// SanitizeName converts a free-text title in to a filesystem safe
// name by replacing any non-alphanumeric character with an underscore
// and lower-casing the result.
func SanitizeName(title string) string {
	return unsafeNameChars.ReplaceAllString(strings.ToLower(title), "_")
}

// SanitizeSubdirectory strips everything except alphanumerics, dashes
// and underscores from the provided name. An empty result yields 'default'.
func SanitizeSubdirectory(name string) string {
	safe := unsafeSubdirectories.ReplaceAllString(name, "")
	if safe == "" {
		return "default"
	}

	return safe
}

func ensureDirectory(dir string) error {
	if err := os.MkdirAll(dir, directoryPermissions); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %w", ErrFileSystem, dir, err)
	}

	return nil
}
