package helpers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hbomb79/Mediadesk/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TempDirWithFiles creates a temporary directory containing a file
// for each of the names provided, returning the directory and the
// absolute paths of the files. Each file contains its own name.
func TempDirWithFiles(t *testing.T, files []string) (string, []string) {
	dirPath := t.TempDir()
	filePaths := make([]string, 0, len(files))
	for _, filename := range files {
		path := filepath.Join(dirPath, filename)
		err := os.WriteFile(path, []byte(filename), 0o644)
		assert.Nil(t, err, "failed to create temporary file in temporary dir")
		filePaths = append(filePaths, path)
	}

	assert.Len(t, filePaths, len(files), "Expected file paths recorded to match length of requested files")
	return dirPath, filePaths
}

// NewFileStore returns a file store rooted in a new temporary directory,
// using the default layout for each category.
func NewFileStore(t *testing.T) (*storage.FileStore, string) {
	root := t.TempDir()
	store, err := storage.New(storage.Config{
		PublicRoot:    root,
		RawUploads:    "uploads",
		TempVideo:     "uploads/temp_video",
		TempAudio:     "uploads/temp_audio",
		Playlists:     "playlists",
		EditedOutput:  "edited_videos",
		Thumbnails:    "thumbnails",
		Images:        "images",
		ReelDownloads: "downloads",
		JsonUploads:   "uploads/json",
	})
	require.NoError(t, err)

	return store, root
}
