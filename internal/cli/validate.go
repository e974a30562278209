package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calderhq/calder/internal/compiler"
	"github.com/calderhq/calder/internal/platform/logger"
)

// compileFile parses a workflow document from disk with file-based import
// resolution. Shared by validate and inspect.
func compileFile(cmd *cobra.Command, path, basePath string) (*compiler.Compiled, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if basePath == "" {
		basePath = filepath.Dir(path)
	}

	svc := compiler.NewService(compiler.NewFileFetcher(basePath), logger.NewNop())
	sourcePath := path
	wctx := &compiler.WorkflowContext{
		TenantID:       uuid.New(),
		SourceFilePath: &sourcePath,
	}
	compiled, err := svc.CompileAnyTrigger(cmd.Context(), string(content), wctx)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return compiled, nil
}

func newValidateCmd() *cobra.Command {
	var (
		basePath string
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "validate <workflow-file>",
		Short: "Parse a workflow document and report errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			compiled, err := compileFile(cmd, args[0], basePath)
			if err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d fragments\n", args[0], len(compiled.Fragments))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&basePath, "base-path", "", "Base directory for resolving imports (default: the file's directory)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Only output errors")
	return cmd
}
