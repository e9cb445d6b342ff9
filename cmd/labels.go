package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/recognition"
	"github.com/spf13/cobra"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List and manage enrolled labels",
	Long:  `List all enrolled labels with their descriptor counts. Use subcommands to delete labels.`,
	RunE:  runLabelsList,
}

var labelsDeleteCmd = &cobra.Command{
	Use:   "delete [label...]",
	Short: "Delete labels",
	Long: `Delete one or more enrolled labels so they can be enrolled again.

Example:
  face-recognizer labels delete "Jane Doe"
  face-recognizer labels delete alice bob --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLabelsDelete,
}

func init() {
	rootCmd.AddCommand(labelsCmd)
	labelsCmd.AddCommand(labelsDeleteCmd)

	labelsDeleteCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func runLabelsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := bootstrap(ctx, config.Load(), false)
	if err != nil {
		return err
	}
	defer a.close()

	labels, err := a.service.Labels(ctx)
	if err != nil {
		return err
	}

	if len(labels) == 0 {
		fmt.Println("No labels enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tDESCRIPTORS\tMODEL\tDIM\tENROLLED")
	fmt.Fprintln(w, "-----\t-----------\t-----\t---\t--------")
	for _, l := range labels {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n", l.Label, l.Descriptors, l.Model, l.Dim, l.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d labels\n", len(labels))
	return nil
}

// confirm asks a yes/no question on stdin.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func runLabelsDelete(cmd *cobra.Command, args []string) error {
	skipConfirm := mustGetBool(cmd, "yes")

	fmt.Println("Labels to delete:")
	for _, label := range args {
		fmt.Printf("  - %s\n", label)
	}
	if !skipConfirm && !confirm(fmt.Sprintf("\nDelete %d label(s)?", len(args))) {
		fmt.Println("Cancelled.")
		return nil
	}

	ctx := context.Background()
	a, err := bootstrap(ctx, config.Load(), false)
	if err != nil {
		return err
	}
	defer a.close()

	deleted := 0
	for _, label := range args {
		err := a.service.Delete(ctx, label)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, recognition.ErrLabelNotFound):
			fmt.Printf("  - WARNING: %s is not enrolled (skipping)\n", label)
		default:
			return fmt.Errorf("failed to delete %s: %w", label, err)
		}
	}

	fmt.Printf("Deleted %d label(s).\n", deleted)
	return nil
}
