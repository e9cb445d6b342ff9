package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-recognizer/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Web      WebConfig
	Database DatabaseConfig
	Detector DetectorConfig
	Matching MatchingConfig
	Log      LogConfig
	MQTT     MQTTConfig
	Models   ModelCatalog
}

type WebConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration // overall per-request timeout (default 1000s)
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL           string // postgres://, mongodb:// or mysql:// connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	MongoDatabase string // database name used for mongodb:// URLs without a path
	HNSWIndexPath string // Path to persist the descriptor HNSW index (optional)
}

type DetectorConfig struct {
	Backend   string // dlib or remote
	ModelsDir string // directory with dlib model files
	URL       string // embedding server base URL for the remote backend
	Mode      string // single or all
}

type MatchingConfig struct {
	Threshold        float64 // maximum mean distance for a match
	EnrollImageCount int     // number of File1..FileN fields required for enrollment
	Index            string  // exact or hnsw
	Thumbnails       bool    // include cropped face data URLs in lookup results
	Align            bool    // rotate thumbnails so the eye line is horizontal
}

type LogConfig struct {
	Level  string
	Format string // text or json
	File   string // optional additional log file
}

type MQTTConfig struct {
	Broker   string // tcp://host:1883, empty disables publishing
	Topic    string
	ClientID string
	Username string
	Password string
}

type ModelCatalog struct {
	Models map[string]ModelSpec `yaml:"models"`
}

type ModelSpec struct {
	Description string   `yaml:"description"`
	Dim         int      `yaml:"dim"`
	Threshold   float64  `yaml:"threshold"`
	Files       []string `yaml:"files"`
}

const (
	BackendDlib   = "dlib"
	BackendRemote = "remote"

	ModeSingle = "single"
	ModeAll    = "all"

	IndexExact = "exact"
	IndexHNSW  = "hnsw"
)

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envDuration accepts Go durations ("90s") or a plain number of seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var models ModelCatalog
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	backend := strings.ToLower(envString("DETECTOR", BackendDlib))

	// PORT is honoured for compatibility with PaaS style deployments.
	port := envInt("PORT", 5000)
	port = envInt("WEB_PORT", port)

	cfg := &Config{
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           port,
			RequestTimeout: envDuration("REQUEST_TIMEOUT", 1000*time.Second),
			AllowedOrigins: splitList(os.Getenv("WEB_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			MongoDatabase: envString("MONGO_DATABASE", "face_recognition"),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Detector: DetectorConfig{
			Backend:   backend,
			ModelsDir: envString("DETECTOR_MODELS_DIR", "models"),
			URL:       os.Getenv("DETECTOR_URL"),
			Mode:      strings.ToLower(envString("DETECTION_MODE", ModeAll)),
		},
		Matching: MatchingConfig{
			Threshold:        envFloat("MATCH_THRESHOLD", models.DefaultThreshold(backend)),
			EnrollImageCount: envInt("ENROLL_IMAGE_COUNT", constants.DefaultEnrollImageCount),
			Index:            strings.ToLower(envString("MATCHER_INDEX", IndexExact)),
			Thumbnails:       envBool("FACE_THUMBNAILS", true),
			Align:            envBool("FACE_ALIGN", true),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "text")),
			File:   os.Getenv("LOG_FILE"),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			Topic:    envString("MQTT_TOPIC", "face-recognizer"),
			ClientID: envString("MQTT_CLIENT_ID", "face-recognizer"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
		},
		Models: models,
	}

	return cfg
}

// DefaultThreshold returns the catalog threshold for a backend, or 0.6.
func (m ModelCatalog) DefaultThreshold(backend string) float64 {
	if spec, ok := m.Models[backend]; ok && spec.Threshold > 0 {
		return spec.Threshold
	}
	return constants.DefaultDistanceThreshold
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	switch c.Detector.Backend {
	case BackendDlib:
	case BackendRemote:
		if c.Detector.URL == "" {
			return errors.New("DETECTOR_URL is required for the remote detector")
		}
	default:
		return fmt.Errorf("unknown detector backend %q (expected %s or %s)", c.Detector.Backend, BackendDlib, BackendRemote)
	}

	if c.Detector.Mode != ModeSingle && c.Detector.Mode != ModeAll {
		return fmt.Errorf("unknown detection mode %q (expected %s or %s)", c.Detector.Mode, ModeSingle, ModeAll)
	}
	if c.Matching.Index != IndexExact && c.Matching.Index != IndexHNSW {
		return fmt.Errorf("unknown matcher index %q (expected %s or %s)", c.Matching.Index, IndexExact, IndexHNSW)
	}
	if c.Matching.EnrollImageCount > constants.MaxEnrollImageCount {
		return fmt.Errorf("ENROLL_IMAGE_COUNT must be between 1 and %d, got %d", constants.MaxEnrollImageCount, c.Matching.EnrollImageCount)
	}
	return nil
}

// MissingModelFiles lists catalog files for the configured backend that are
// not present in the models directory.
func (c *Config) MissingModelFiles() []string {
	spec, ok := c.Models.Models[c.Detector.Backend]
	if !ok {
		return nil
	}

	var missing []string
	for _, name := range spec.Files {
		if _, err := os.Stat(filepath.Join(c.Detector.ModelsDir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}
