package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/calmcall/finassist/pkg/budget"
)

var sankeyCmd = &cobra.Command{
	Use:   "sankey",
	Short: "Budget graph tools",
}

var sankeyNormalizeCmd = &cobra.Command{
	Use:   "normalize [file]",
	Short: "Validate and normalize a budget graph",
	Long: `normalize reads {"nodes": [...], "links": [...]} from file, or stdin when
no file is given, and prints the normalized graph as a budget_sankey envelope.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		balance, _ := cmd.Flags().GetBool("balance")
		return normalizeGraph(in, cmd.OutOrStdout(), balance)
	},
}

func normalizeGraph(in io.Reader, out io.Writer, balance bool) error {
	var args budget.ToolArguments
	if err := json.NewDecoder(in).Decode(&args); err != nil {
		return fmt.Errorf("%w: %v", budget.ErrInvalidGraphInput, err)
	}
	if balance {
		args.Balance = true
	}

	g, err := args.Build()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(budget.NewEnvelope(g))
}

func init() {
	sankeyNormalizeCmd.Flags().Bool("balance", false, "Route unallocated remainders to a Surplus node")
	sankeyCmd.AddCommand(sankeyNormalizeCmd)
}
