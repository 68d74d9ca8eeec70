// Package config holds the server settings. Every setting has a flag in
// cmd/server whose default comes from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/clothing-classifier/internal/model"
)

type Config struct {
	Port           string
	Backend        string
	ModelPath      string
	MetadataPath   string
	WeightsPath    string
	OnnxLibrary    string
	ResultPath     string
	MaxUploadBytes int64
	QueueSize      int
	LogLevel       string
	Development    bool
}

// FromEnv returns the defaults, taking each value from its environment variable
// when set.
func FromEnv() Config {
	return Config{
		Port:           GetEnv("PORT", "8080"),
		Backend:        GetEnv("CLASSIFIER_BACKEND", model.BackendONNX),
		ModelPath:      GetEnv("MODEL_PATH", filepath.Join("models", "model.onnx")),
		MetadataPath:   GetEnv("MODEL_METADATA", filepath.Join("models", "model_metadata.json")),
		WeightsPath:    GetEnv("MODEL_WEIGHTS", filepath.Join("models", "weights.json")),
		OnnxLibrary:    GetEnv("ONNXRUNTIME_LIB", ""),
		ResultPath:     GetEnv("RESULT_PATH", filepath.Join("static", "result.png")),
		MaxUploadBytes: int64(GetEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		QueueSize:      GetEnvInt("INFERENCE_QUEUE", 8),
		LogLevel:       GetEnv("LOG_LEVEL", "info"),
		Development:    GetEnv("ENV", "") == "development",
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case model.BackendONNX, model.BackendDense:
	default:
		return fmt.Errorf("invalid backend '%s'. Must be '%s' or '%s'", c.Backend, model.BackendONNX, model.BackendDense)
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid port '%s'", c.Port)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadBytes)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("inference queue must hold at least one job, got %d", c.QueueSize)
	}
	if c.ResultPath == "" {
		return fmt.Errorf("result path is required")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level '%s': %w", c.LogLevel, err)
	}
	return nil
}

// ModelOptions selects the classifier artifacts.
func (c Config) ModelOptions() model.Options {
	return model.Options{
		Backend:      c.Backend,
		ModelPath:    c.ModelPath,
		MetadataPath: c.MetadataPath,
		WeightsPath:  c.WeightsPath,
		LibraryPath:  c.OnnxLibrary,
	}
}

// Resolve makes every relative path absolute against root.
func (c *Config) Resolve(root string) {
	for _, p := range []*string{&c.ModelPath, &c.MetadataPath, &c.WeightsPath, &c.ResultPath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}
}

// ProjectRoot is the working directory, or the repository root when the server
// is started from cmd/server.
func ProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if filepath.Base(wd) == "server" && filepath.Base(filepath.Dir(wd)) == "cmd" {
		wd = filepath.Join(wd, "..", "..")
	}
	return filepath.Clean(wd), nil
}

// InitLogger configures the global zerolog logger.
func InitLogger(c Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.Development {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func GetEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

// GetEnvInt falls back to defaultVal, with a warning, when the variable is not
// an integer.
func GetEnvInt(key string, defaultVal int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		log.Warn().
			Str("key", key).
			Str("value", val).
			Int("default", defaultVal).
			Msg("Ignoring malformed integer environment variable")
		return defaultVal
	}
	return i
}
