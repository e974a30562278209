package cli

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// FileConfig is the optional .calderctl.yaml next to the working directory.
// Flags always win over file values.
type FileConfig struct {
	ParserURL string `yaml:"parser_url"`
	TenantID  string `yaml:"tenant_id"`
}

func loadFileConfig() FileConfig {
	var cfg FileConfig
	data, err := os.ReadFile(".calderctl.yaml")
	if err != nil {
		return cfg
	}
	_ = yaml.Unmarshal(data, &cfg)
	return cfg
}

// NewRootCmd builds the calderctl command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calderctl",
		Short: "Validate, inspect and submit Calder workflow documents",
		Long: `calderctl works with Calder workflow documents locally and against a
running parser API.

Local commands (validate, inspect) resolve imports from files: an import URL
is reduced to its basename and looked up in the base directory. The submit
command sends the document to the parser API, where imports are rejected.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newSubmitCmd())
	return cmd
}
