package ingest

import "time"

// Config contains configuration options that allow
// customization of how Mediadesk detects raw uploads to ingest.
type Config struct {
	// The service uses a directory watcher, but a 'force'
	// sync is performed on a regular interval to protect
	// against the watcher failing.
	ForceSyncSeconds int `yaml:"force_sync_seconds" env:"INGEST_FORCE_SYNC_SECONDS" env-default:"60"`

	// Regular expressions which RESTRICT the files processed
	// by this service. If any expression matches the name of
	// the file, it is ignored.
	Blacklist []string `yaml:"blacklist" env:"INGEST_BLACKLIST" env-separator:","`

	// A new file is likely to be an in-progress copy. As we cannot
	// KNOW when the copy is complete, we instead wait for the 'modtime'
	// of the item to be at least this long in the past before processing.
	RequiredModTimeAgeSeconds int `yaml:"modtime_threshold_seconds" env:"INGEST_MODTIME_THRESHOLD_SECONDS" env-default:"30"`

	// Controls the number of workers that can perform ingestions.
	IngestionParallelism int `yaml:"parallelism" env:"INGEST_PARALLELISM" env-default:"1"`
}

func (config *Config) RequiredModTimeAgeDuration() time.Duration {
	return time.Duration(config.RequiredModTimeAgeSeconds) * time.Second
}

func (config *Config) forceSyncInterval() time.Duration {
	if config.ForceSyncSeconds <= 0 {
		return time.Minute
	}

	return time.Duration(config.ForceSyncSeconds) * time.Second
}
