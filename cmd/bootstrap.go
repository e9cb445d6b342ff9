package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/kozaktomas/face-recognizer/internal/database/mariadb"
	"github.com/kozaktomas/face-recognizer/internal/database/mongo"
	"github.com/kozaktomas/face-recognizer/internal/database/postgres"
	"github.com/kozaktomas/face-recognizer/internal/detector"
	"github.com/kozaktomas/face-recognizer/internal/events"
	"github.com/kozaktomas/face-recognizer/internal/recognition"

	log "github.com/sirupsen/logrus"
)

// storeBackend maps the DATABASE_URL scheme to a backend name.
func storeBackend(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("DATABASE_URL environment variable is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return database.BackendPostgres, nil
	case "mongodb":
		return database.BackendMongo, nil
	case "mysql", "mariadb":
		return database.BackendMariaDB, nil
	default:
		return "", fmt.Errorf("unsupported DATABASE_URL scheme %q (expected postgres, mongodb or mysql)", u.Scheme)
	}
}

// openStore initializes the backend selected by DATABASE_URL.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (database.FaceRecordWriter, error) {
	backend, err := storeBackend(cfg.URL)
	if err != nil {
		return nil, err
	}

	log.WithField("backend", backend).Info("Connecting to record store")
	switch backend {
	case database.BackendPostgres:
		err = postgres.Initialize(cfg)
	case database.BackendMongo:
		err = mongo.Initialize(cfg)
	case database.BackendMariaDB:
		err = mariadb.Initialize(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", backend, err)
	}
	return database.GetFaceRecordWriter(ctx)
}

// openDetector validates the models directory and loads the detector.
func openDetector(cfg *config.Config) (detector.Detector, error) {
	if missing := cfg.MissingModelFiles(); len(missing) > 0 {
		return nil, fmt.Errorf("missing model files in %s: %s", cfg.Detector.ModelsDir, strings.Join(missing, ", "))
	}

	switch cfg.Detector.Backend {
	case config.BackendRemote:
		log.WithField("url", cfg.Detector.URL).Info("Using remote face detector")
		return detector.NewRemoteDetector(cfg.Detector.URL, cfg.Web.RequestTimeout), nil
	case config.BackendDlib:
		log.WithField("models", cfg.Detector.ModelsDir).Info("Loading dlib face models")
		return newDlibDetector(cfg.Detector.ModelsDir)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.Detector.Backend)
	}
}

// serviceOptions converts configuration into recognition options.
func serviceOptions(cfg *config.Config) (recognition.Options, error) {
	mode, err := detector.ParseMode(cfg.Detector.Mode)
	if err != nil {
		return recognition.Options{}, err
	}
	return recognition.Options{
		Mode:             mode,
		EnrollImageCount: cfg.Matching.EnrollImageCount,
		Threshold:        cfg.Matching.Threshold,
		Thumbnails:       cfg.Matching.Thumbnails,
		Align:            cfg.Matching.Align,
	}, nil
}

// app holds everything a command needs; close releases it in reverse order.
type app struct {
	service   *recognition.Service
	detector  detector.Detector
	publisher events.Publisher
}

func (a *app) close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.detector != nil {
		a.detector.Close()
	}
	if err := database.CloseBackend(); err != nil {
		log.WithError(err).Warn("Failed to close record store")
	}
}

// bootstrap wires config, store, detector, index and events. needDetector is
// false for commands that only touch the store.
func bootstrap(ctx context.Context, cfg *config.Config, needDetector bool) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := serviceOptions(cfg)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &app{}

	var det detector.Detector = unavailableDetector{}
	if needDetector {
		det, err = openDetector(cfg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.detector = det
	}

	publisher, err := events.New(cfg.MQTT)
	if err != nil {
		log.WithError(err).Warn("MQTT events disabled")
		publisher = events.Nop{}
	}
	a.publisher = publisher

	options := []recognition.Option{recognition.WithPublisher(publisher)}
	if cfg.Matching.Index == config.IndexHNSW {
		idx, err := recognition.LoadIndex(ctx, store, cfg.Database.HNSWIndexPath)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to prepare HNSW index: %w", err)
		}
		options = append(options, recognition.WithIndex(idx, cfg.Database.HNSWIndexPath))
	}

	a.service = recognition.NewService(det, store, opts, options...)
	return a, nil
}

// unavailableDetector stands in for commands that never detect faces.
type unavailableDetector struct{}

var errNoDetector = errors.New("face detector not loaded")

func (unavailableDetector) DetectSingle(context.Context, []byte) (*detector.Face, error) {
	return nil, errNoDetector
}

func (unavailableDetector) DetectAll(context.Context, []byte) ([]detector.Face, error) {
	return nil, errNoDetector
}

func (unavailableDetector) Name() string { return "none" }
func (unavailableDetector) Close() error { return nil }
