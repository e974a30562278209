package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calderhq/calder/internal/types"
)

func newInspectCmd() *cobra.Command {
	var basePath string

	cmd := &cobra.Command{
		Use:   "inspect <workflow-file>",
		Short: "Parse a workflow document and print its fragment tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			compiled, err := compileFile(cmd, args[0], basePath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			chain := compiled.Chain
			fmt.Fprintln(out, "Chain:")
			fmt.Fprintf(out, "  ID: %s\n", chain.ID)
			if chain.DefaultMachine != nil {
				fmt.Fprintf(out, "  Default machine: %s\n", *chain.DefaultMachine)
			}
			fmt.Fprintf(out, "\nFragments (%d):\n", len(compiled.Fragments))

			for i, frag := range compiled.Fragments {
				fmt.Fprintf(out, "  [%d] %s\n", i, frag.ID)
				fmt.Fprintf(out, "      Type: %s  Sequence: %d\n", frag.FragmentType, frag.SequenceOrder)
				if frag.ParentFragmentID != nil {
					fmt.Fprintf(out, "      Parent: %s\n", *frag.ParentFragmentID)
				}
				if frag.FragmentType == types.FragmentTypeGroup {
					fmt.Fprintf(out, "      Parallel: %t\n", frag.IsParallel)
				}
				if frag.RunScript != nil {
					fmt.Fprintf(out, "      Script: %s\n", scriptPreview(*frag.RunScript))
				}
				if frag.MachineGroup != nil {
					fmt.Fprintf(out, "      Machine: %s\n", *frag.MachineGroup)
				}
				if frag.Condition != nil {
					fmt.Fprintf(out, "      Condition: %s\n", *frag.Condition)
				}
				if frag.SourceURL != nil {
					fmt.Fprintf(out, "      Source: %s\n", *frag.SourceURL)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&basePath, "base-path", "", "Base directory for resolving imports (default: the file's directory)")
	return cmd
}

func scriptPreview(script string) string {
	flat := strings.ReplaceAll(script, "\n", " ")
	if len(flat) > 60 {
		return flat[:60] + "..."
	}
	return flat
}
