package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Classifier backends understood by the server.
const (
	BackendProcess = "process"
	BackendGRPC    = "grpc"
)

// Config holds every tunable of the prediction service.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	PredictPath     string        `yaml:"predict_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`

	StagingDir        string   `yaml:"staging_dir"`
	MaxUploadSize     int64    `yaml:"max_upload_size"`
	AllowedMediaTypes []string `yaml:"allowed_media_types"`
	StrictCleanup     bool     `yaml:"strict_cleanup"`
	ExposeErrors      bool     `yaml:"expose_errors"`

	ClassifierBackend       string        `yaml:"classifier_backend"`
	ClassifierCommand       []string      `yaml:"classifier_command"`
	ClassifierEnv           []string      `yaml:"classifier_env"`
	ClassifierAddr          string        `yaml:"classifier_addr"`
	ClassifierTimeout       time.Duration `yaml:"classifier_timeout"`
	MaxConcurrentInferences int64         `yaml:"max_concurrent_inferences"`

	JWTSecret   string `yaml:"jwt_secret"`
	JWTAudience string `yaml:"jwt_audience"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTPAddr:                ":8080",
		PredictPath:             "/api/predict",
		ShutdownTimeout:         15 * time.Second,
		LogLevel:                "info",
		StagingDir:              os.TempDir(),
		MaxUploadSize:           16 << 20,
		AllowedMediaTypes:       []string{"image/jpeg", "image/png"},
		StrictCleanup:           true,
		ExposeErrors:            true,
		ClassifierBackend:       BackendProcess,
		ClassifierCommand:       []string{"python", "inference.py"},
		ClassifierAddr:          "classifier:50051",
		ClassifierTimeout:       time.Minute,
		MaxConcurrentInferences: 4,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE, a .env file in the working directory and finally the process
// environment, each layer overriding the previous one.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string, split func(string) []string) {
		if v, ok := lookup(key); ok {
			*dst = split(v)
		}
	}

	str("HTTP_ADDR", &c.HTTPAddr)
	str("PREDICT_PATH", &c.PredictPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("STAGING_DIR", &c.StagingDir)
	str("CLASSIFIER_BACKEND", &c.ClassifierBackend)
	str("CLASSIFIER_ADDR", &c.ClassifierAddr)
	str("JWT_SECRET", &c.JWTSecret)
	str("JWT_AUDIENCE", &c.JWTAudience)
	list("CLASSIFIER_COMMAND", &c.ClassifierCommand, strings.Fields)
	list("CLASSIFIER_ENV", &c.ClassifierEnv, splitComma)
	list("ALLOWED_MEDIA_TYPES", &c.AllowedMediaTypes, splitComma)

	durations := map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT":   &c.ShutdownTimeout,
		"CLASSIFIER_TIMEOUT": &c.ClassifierTimeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int64{
		"MAX_UPLOAD_SIZE":           &c.MaxUploadSize,
		"MAX_CONCURRENT_INFERENCES": &c.MaxConcurrentInferences,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"STRICT_CLEANUP": &c.StrictCleanup,
		"EXPOSE_ERRORS":  &c.ExposeErrors,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate reports configuration combinations the server cannot run with.
func (c Config) Validate() error {
	switch c.ClassifierBackend {
	case BackendProcess:
		if len(c.ClassifierCommand) == 0 {
			return errors.New("classifier_command is required for the process backend")
		}
	case BackendGRPC:
		if c.ClassifierAddr == "" {
			return errors.New("classifier_addr is required for the grpc backend")
		}
	default:
		return fmt.Errorf("unknown classifier_backend %q", c.ClassifierBackend)
	}
	if c.StagingDir == "" {
		return errors.New("staging_dir is required")
	}
	if !strings.HasPrefix(c.PredictPath, "/") {
		return fmt.Errorf("predict_path must start with /, got %q", c.PredictPath)
	}
	if c.MaxUploadSize < 0 || c.MaxConcurrentInferences < 0 || c.ClassifierTimeout < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

func splitComma(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
