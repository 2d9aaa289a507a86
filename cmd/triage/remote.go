package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

type remoteOptions struct {
	addr  string
	token string
}

func (o *remoteOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.addr, "addr", envOrDefault("TRIAGE_ADDR", defaultAddr), "triage gateway address")
	cmd.Flags().StringVar(&o.token, "token", envOrDefault("TRIAGE_TOKEN", os.Getenv("TRIAGE_DEV_TOKEN")), "bearer token")
}

func newVerifyCmd() *cobra.Command {
	opts := &remoteOptions{}
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "verify <decision_id>",
		Short: "Verify a stored audit record's digest and signature",
		Args:  exactArgs(1, "<decision_id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			decisionID := args[0]
			respBody, status, err := httpGet(http.DefaultClient, opts.addr+"/v1/verify/"+decisionID, opts.token)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("verify failed: %s", strings.TrimSpace(string(respBody)))
			}

			var payload struct {
				DecisionID string `json:"decision_id"`
				Valid      bool   `json:"valid"`
				Error      string `json:"error,omitempty"`
			}
			if err := json.Unmarshal(respBody, &payload); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				_, _ = out.Write(respBody)
			} else if payload.Valid {
				fmt.Fprintf(out, "valid=true decision_id=%s\n", payload.DecisionID)
			} else {
				fmt.Fprintf(out, "valid=false decision_id=%s error=%s\n", payload.DecisionID, payload.Error)
			}
			if !payload.Valid {
				return fmt.Errorf("audit record %s failed verification", decisionID)
			}
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print raw JSON response")
	return cmd
}

func newPackCmd() *cobra.Command {
	opts := &remoteOptions{}
	var outPath string
	cmd := &cobra.Command{
		Use:   "pack <decision_id>",
		Short: "Download the evidence pack for a decision",
		Args:  exactArgs(1, "<decision_id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			respBody, status, err := httpGet(http.DefaultClient, opts.addr+"/v1/pack/"+args[0], opts.token)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("pack failed: %s", strings.TrimSpace(string(respBody)))
			}

			if dir := filepath.Dir(outPath); dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("output dir: %w", err)
				}
			}
			if err := os.WriteFile(outPath, respBody, 0o600); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&outPath, "out", "triage-pack.zip", "output zip path")
	return cmd
}

func httpGet(client *http.Client, url string, token string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
