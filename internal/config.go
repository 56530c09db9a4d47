package internal

import (
	"errors"
	"fmt"
	"os"

	"github.com/hbomb79/Mediadesk/internal/api"
	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/download"
	"github.com/hbomb79/Mediadesk/internal/editor"
	"github.com/hbomb79/Mediadesk/internal/extract"
	"github.com/hbomb79/Mediadesk/internal/facebook"
	"github.com/hbomb79/Mediadesk/internal/ffmpeg"
	"github.com/hbomb79/Mediadesk/internal/ingest"
	"github.com/hbomb79/Mediadesk/internal/storage"
	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

const DefaultConfigPath = "~/.config/mediadesk/config.yaml"

// MediadeskConfig is the struct used to contain the
// various user config supplied by file, or by the
// environment.
type MediadeskConfig struct {
	Database  database.DatabaseConfig `yaml:"database" env-required:"true"`
	Storage   storage.Config          `yaml:"storage"`
	Ffmpeg    ffmpeg.Config           `yaml:"ffmpeg"`
	Extractor extract.Config          `yaml:"extractor"`
	Facebook  facebook.Config         `yaml:"facebook"`
	Ingest    ingest.Config           `yaml:"ingest"`
	Download  download.Config         `yaml:"download"`
	Editor    editor.Config           `yaml:"editor"`
	RestAPI   api.RestConfig          `yaml:"api"`
	LogLevel  string                  `yaml:"log_level" env:"LOG_LEVEL" env-default:"INFO"`
}

// LoadConfig reads the YAML configuration at the path given, expanding a
// leading '~'. A missing file is not an error: the configuration is then
// read from the environment alone.
func LoadConfig(configPath string) (*MediadeskConfig, error) {
	path, err := homedir.Expand(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path %q: %w", configPath, err)
	}

	config := &MediadeskConfig{}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		log.Emit(logger.WARNING, "Config file %s not found, using environment only\n", path)
		err = cleanenv.ReadEnv(config)
	} else {
		err = cleanenv.ReadConfig(path, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return config, nil
}

// MinLoggingLevel resolves the configured log level by name, falling back
// to INFO when the name is not recognised.
func (config *MediadeskConfig) MinLoggingLevel() int {
	level, ok := logger.ParseLogStatus(config.LogLevel)
	if !ok {
		log.Emit(logger.WARNING, "Unknown log level %q, defaulting to INFO\n", config.LogLevel)
	}

	return level.Level()
}

const redacted = "[REDACTED]"

// Redacted returns a copy of the config which is safe to log, with every
// credential masked.
func (config MediadeskConfig) Redacted() MediadeskConfig {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}

	mask(&config.Database.Password)
	mask(&config.Facebook.UserToken)
	mask(&config.Facebook.Cookie)
	return config
}
