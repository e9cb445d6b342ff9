package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/logger"
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"
)

var logCloser io.Closer

var rootCmd = &cobra.Command{
	Use:   "face-recognizer",
	Short: "Face enrollment and recognition service",
	Long: `Face Recognizer stores labelled face descriptors and matches faces in new
images against them. Run "serve" for the HTTP API or use the enroll, search
and labels commands directly.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	closer, err := logger.Init(config.Load().Log)
	if err != nil {
		log.WithError(err).Warn("Falling back to stdout logging")
		return
	}
	logCloser = closer
}
