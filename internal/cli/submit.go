package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var (
		parserURL  string
		tenant     string
		trigger    string
		triggerRef string
		repo       string
		commit     string
		branch     string
	)

	cmd := &cobra.Command{
		Use:   "submit <workflow-file>",
		Short: "Submit a workflow document to the parser API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileCfg := loadFileConfig()
			if parserURL == "" {
				parserURL = fileCfg.ParserURL
			}
			if tenant == "" {
				tenant = fileCfg.TenantID
			}
			if parserURL == "" {
				return errors.New("parser URL required (--parser-url or parser_url in .calderctl.yaml)")
			}
			if _, err := uuid.Parse(tenant); err != nil {
				return fmt.Errorf("invalid tenant id %q: %w", tenant, err)
			}

			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			body := map[string]any{
				"content":          string(content),
				"tenant_id":        tenant,
				"source_file_path": args[0],
			}
			if trigger != "" {
				body["trigger"] = trigger
			}
			if triggerRef != "" {
				body["trigger_ref"] = triggerRef
			}
			if repo != "" {
				body["repository_url"] = repo
			}
			if commit != "" {
				body["commit_sha"] = commit
			}
			if branch != "" {
				body["branch"] = branch
			}

			payload, err := json.Marshal(body)
			if err != nil {
				return err
			}

			endpoint := strings.TrimRight(parserURL, "/") + "/parse"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("submit to %s: %w", endpoint, err)
			}
			defer resp.Body.Close()

			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			if resp.StatusCode != http.StatusOK {
				var envelope struct {
					Error struct {
						Message string `json:"message"`
						Code    string `json:"code"`
					} `json:"error"`
				}
				if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
					return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
				}
				return fmt.Errorf("parser API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
			}

			var result struct {
				ChainID       string `json:"chain_id"`
				FragmentCount int    `json:"fragment_count"`
			}
			if err := json.Unmarshal(raw, &result); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "chain %s stored with %d fragments\n", result.ChainID, result.FragmentCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&parserURL, "parser-url", "", "Parser API base URL")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant UUID")
	cmd.Flags().StringVar(&trigger, "trigger", "", "Trigger to validate against (push, pull_request, tag, schedule, manual)")
	cmd.Flags().StringVar(&triggerRef, "trigger-ref", "", "Trigger reference (tag name, PR number)")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository URL recorded on the chain")
	cmd.Flags().StringVar(&commit, "commit", "", "Commit SHA recorded on the chain")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch recorded on the chain")
	return cmd
}
