package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/recognition"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Match the faces in an image against enrolled labels",
	Long: `Detect faces in an image and print the best label for each of them.
With --label only faces matching that label are printed and the command fails
if there are none.

Example:
  face-recognizer search group.jpg
  face-recognizer search door.jpg --label "Jane Doe"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().String("label", "", "Only report faces matching this label")
}

func runSearch(cmd *cobra.Command, args []string) error {
	label := mustGetString(cmd, "label")

	images, err := readImages(args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := bootstrap(ctx, config.Load(), true)
	if err != nil {
		return err
	}
	defer a.close()

	var results []recognition.Result
	if label != "" {
		results, err = a.service.Identify(ctx, label, images[0])
	} else {
		results, err = a.service.Recognize(ctx, images[0])
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		return fmt.Errorf("no face matching label %q found", label)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FACE\tLABEL\tDISTANCE\tSIMILARITY")
	fmt.Fprintln(w, "----\t-----\t--------\t----------")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\n", i+1, r.Label, recognition.FormatDistance(r.Distance), r.Similarity)
	}
	w.Flush()

	fmt.Printf("\nThreshold: %.2f\n", a.service.Threshold())
	return nil
}
