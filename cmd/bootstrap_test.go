package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/kozaktomas/face-recognizer/internal/detector"
	"github.com/spf13/cobra"
)

func TestStoreBackend(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/faces?sslmode=disable", database.BackendPostgres, false},
		{"postgresql://localhost/faces", database.BackendPostgres, false},
		{"mongodb://localhost:27017/faces", database.BackendMongo, false},
		{"mysql://root@localhost:3306/faces", database.BackendMariaDB, false},
		{"MariaDB://root@localhost/faces", database.BackendMariaDB, false},
		{"sqlite:///tmp/faces.db", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := storeBackend(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("storeBackend(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("storeBackend(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestServiceOptions(t *testing.T) {
	cfg := &config.Config{
		Detector: config.DetectorConfig{Mode: "single"},
		Matching: config.MatchingConfig{EnrollImageCount: 3, Threshold: 0.5, Thumbnails: true},
	}
	opts, err := serviceOptions(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Mode != detector.ModeSingle || opts.EnrollImageCount != 3 || opts.Threshold != 0.5 || !opts.Thumbnails {
		t.Errorf("unexpected options: %+v", opts)
	}

	cfg.Detector.Mode = "several"
	if _, err := serviceOptions(cfg); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestOpenDetector(t *testing.T) {
	cfg := config.Load()
	cfg.Detector.Backend = config.BackendDlib
	cfg.Detector.ModelsDir = t.TempDir()
	if _, err := openDetector(cfg); err == nil {
		t.Error("expected missing model files error")
	}

	cfg.Detector.Backend = config.BackendRemote
	cfg.Detector.URL = "http://localhost:8000"
	cfg.Web.RequestTimeout = time.Second
	det, err := openDetector(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if det.Name() != config.BackendRemote {
		t.Errorf("expected remote detector, got %s", det.Name())
	}
}

func TestReadImages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jane.jpg")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}

	images, err := readImages([]string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(images) != 1 || images[0].Field != "jane.jpg" || string(images[0].Data) != "data" {
		t.Errorf("unexpected images: %+v", images)
	}

	if _, err := readImages([]string{filepath.Join(dir, "missing.jpg")}); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestApplyServeFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().Int("port", 5000, "")
	cmd.Flags().String("host", "0.0.0.0", "")

	cfg := &config.Config{Web: config.WebConfig{Host: "10.0.0.1", Port: 8080}}
	applyServeFlags(cmd, cfg)
	if cfg.Web.Port != 8080 || cfg.Web.Host != "10.0.0.1" {
		t.Errorf("unset flags must not override config, got %+v", cfg.Web)
	}

	if err := cmd.Flags().Set("port", "9000"); err != nil {
		t.Fatal(err)
	}
	applyServeFlags(cmd, cfg)
	if cfg.Web.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Web.Port)
	}
}
