package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/web"
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the face recognition HTTP API.

Endpoints:
  POST   /recognizing-face      enroll a label from File1..FileN
  POST   /recognizer-face       match File1 against a label
  GET    /search-face/{label}   check whether a label is enrolled
  GET    /faces                 list enrolled labels
  DELETE /faces/{label}         remove a label`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 5000, "Port to listen on (overrides WEB_PORT/PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
}

// applyServeFlags lets explicitly set flags win over the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bootstrap(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	server := web.NewServer(cfg, a.service)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Error during shutdown")
		}
	}()

	log.WithFields(log.Fields{
		"addr":     fmt.Sprintf("http://%s:%d", cfg.Web.Host, cfg.Web.Port),
		"detector": cfg.Detector.Backend,
		"mode":     cfg.Detector.Mode,
		"index":    cfg.Matching.Index,
	}).Info("Face recognizer ready")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
