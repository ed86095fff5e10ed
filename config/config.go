// Package config loads whisperpad settings from an optional YAML file, a
// .env file and WHISPERPAD_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"whisperpad/engine"
	"whisperpad/reflow"
)

// DefaultFile is read when no config path is given and it exists
const DefaultFile = "whisperpad.yaml"

// Engine names
const (
	EngineWhisper = "whisper"
	EngineScribe  = "scribe"
)

type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Update  UpdateConfig  `yaml:"update"`
}

type EngineConfig struct {
	Name           string `yaml:"name"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	Task           string `yaml:"task"`
	WordTimestamps *bool  `yaml:"word_timestamps"`
	WhisperBinary  string `yaml:"whisper_binary"`
	CacheDir       string `yaml:"cache_dir"`

	// ScribeAPIKey only comes from ELEVENLABS_API_KEY
	ScribeAPIKey string `yaml:"-"`
}

type OutputConfig struct {
	LineLength int         `yaml:"line_length"`
	Mode       reflow.Mode `yaml:"mode"`
	Timestamps *bool       `yaml:"timestamps"`
}

type LoggingConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

type UpdateConfig struct {
	Repository string `yaml:"repository"`
}

// Load reads path (or DefaultFile when path is empty and present), then
// .env, then the environment, and validates the result
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setBool := func(dst **bool, key string) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = &b
			}
		}
	}

	setString(&c.Engine.Name, "WHISPERPAD_ENGINE")
	setString(&c.Engine.Model, "WHISPERPAD_MODEL")
	setString(&c.Engine.Language, "WHISPERPAD_LANGUAGE")
	setString(&c.Engine.Task, "WHISPERPAD_TASK")
	setString(&c.Engine.WhisperBinary, "WHISPERPAD_WHISPER_BINARY")
	setString(&c.Engine.CacheDir, "WHISPERPAD_CACHE_DIR")
	setString(&c.Engine.ScribeAPIKey, "ELEVENLABS_API_KEY")
	setBool(&c.Engine.WordTimestamps, "WHISPERPAD_WORD_TIMESTAMPS")

	if v, ok := os.LookupEnv("WHISPERPAD_LINE_LENGTH"); ok {
		c.Output.LineLength = reflow.ParseLineLength(v)
	}
	if v, ok := os.LookupEnv("WHISPERPAD_MODE"); ok {
		c.Output.Mode = reflow.Mode(v)
	}
	setBool(&c.Output.Timestamps, "WHISPERPAD_TIMESTAMPS")

	setString(&c.Logging.File, "WHISPERPAD_LOG_FILE")
	setString(&c.Logging.Level, "WHISPERPAD_LOG_LEVEL")
	setString(&c.Update.Repository, "WHISPERPAD_UPDATE_REPOSITORY")
}

// Validate rejects unknown names and fills defaults
func (c *Config) Validate() error {
	if c.Engine.Name == "" {
		c.Engine.Name = EngineWhisper
	}
	if c.Engine.Name != EngineWhisper && c.Engine.Name != EngineScribe {
		return fmt.Errorf("engine.name must be %s or %s, got %q", EngineWhisper, EngineScribe, c.Engine.Name)
	}
	if c.Engine.Model == "" {
		c.Engine.Model = engine.DefaultModel
	}
	if c.Engine.Name == EngineWhisper && !slices.Contains(engine.Models, c.Engine.Model) {
		return fmt.Errorf("engine.model must be one of %s, got %q", strings.Join(engine.Models, ", "), c.Engine.Model)
	}
	if c.Engine.Task == "" {
		c.Engine.Task = engine.TaskTranscribe
	}
	if err := engine.ValidateTask(c.Engine.Task); err != nil {
		return fmt.Errorf("engine.task: %w", err)
	}
	if c.Engine.WordTimestamps == nil {
		c.Engine.WordTimestamps = boolPtr(true)
	}
	if c.Engine.WhisperBinary == "" {
		c.Engine.WhisperBinary = engine.DefaultWhisperBinary
	}
	if c.Engine.CacheDir == "" {
		c.Engine.CacheDir = engine.DefaultCacheDir()
	}

	// Widths are coerced rather than rejected, matching the settings field
	if c.Output.LineLength < reflow.MinLineLength {
		c.Output.LineLength = reflow.DefaultLineLength
	}
	if c.Output.Mode == "" {
		c.Output.Mode = reflow.ModeSegments
	}
	mode, err := reflow.ParseMode(string(c.Output.Mode))
	if err != nil {
		return fmt.Errorf("output.mode: %w", err)
	}
	c.Output.Mode = mode
	if c.Output.Timestamps == nil {
		c.Output.Timestamps = boolPtr(true)
	}

	if c.Logging.File == "" {
		c.Logging.File = "transcription.log"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}

	if c.Update.Repository == "" {
		c.Update.Repository = "whisperpad/whisperpad"
	}

	return nil
}

// FormatConfig returns the initial output settings
func (c *Config) FormatConfig() reflow.FormatConfig {
	return reflow.FormatConfig{
		MaxLineLength:  c.Output.LineLength,
		Mode:           c.Output.Mode,
		ShowTimestamps: c.Output.Timestamps == nil || *c.Output.Timestamps,
	}
}

// Request returns an engine request for path using the configured options
func (c *Config) Request(path string) engine.Request {
	return engine.Request{
		FilePath:       path,
		Model:          c.Engine.Model,
		Language:       c.Engine.Language,
		Task:           c.Engine.Task,
		WordTimestamps: c.Engine.WordTimestamps == nil || *c.Engine.WordTimestamps,
	}
}

// LogLevel returns the configured slog level
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Logging.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

func boolPtr(b bool) *bool {
	return &b
}
