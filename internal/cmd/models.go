package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/YosriMlik/llm-wrapper/internal/config"
	"github.com/YosriMlik/llm-wrapper/internal/registry"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models offered by the chat API",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reg, err := registry.New(cfg.Models.Available, cfg.Models.Default)
	if err != nil {
		return err
	}

	return printModels(cmd.OutOrStdout(), reg)
}

func printModels(w io.Writer, reg *registry.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDEFAULT")
	for _, m := range reg.Models() {
		mark := ""
		if m.ID == reg.Default() {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Name, mark)
	}
	return tw.Flush()
}
