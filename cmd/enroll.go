package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/recognition"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <label> <image>...",
	Short: "Enroll a label from image files",
	Long: `Detect one face in every image and store the descriptors under label.

All images must contain a face, otherwise nothing is stored. Unlike the HTTP
API, any number of images is accepted.

Example:
  face-recognizer enroll "Jane Doe" jane1.jpg jane2.jpg jane3.jpg`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

// readImages loads image files, naming each by its base name.
func readImages(paths []string) ([]recognition.Image, error) {
	images := make([]recognition.Image, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // paths are provided by the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		images = append(images, recognition.Image{Field: filepath.Base(path), Data: data})
	}
	return images, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	label, paths := args[0], args[1:]

	images, err := readImages(paths)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := bootstrap(ctx, config.Load(), true)
	if err != nil {
		return err
	}
	defer a.close()

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Detecting faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	record, err := a.service.EnrollWithProgress(ctx, label, images, func(done, total int) {
		bar.Set(done)
	})
	bar.Finish()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	fmt.Printf("Enrolled %q with %d descriptors (model %s)\n", record.Label, len(record.Descriptions), record.Model)
	return nil
}
