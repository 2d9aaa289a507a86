package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davidahmann/licensetriage/internal/app"
	"github.com/davidahmann/licensetriage/internal/policy"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Prompt template tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "lint [templates.yaml]",
		Short: "Check a template file; without a path, the built-in templates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			reg, err := app.LoadTemplates(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range reg.Templates() {
				fmt.Fprintf(out, "template=%s placeholders=%d\n", t.Ref(), len(t.Placeholders))
			}
			fmt.Fprintf(out, "ok templates=%d templates_hash=%s\n", len(reg.Templates()), reg.Hash())
			return nil
		},
	})
	return cmd
}

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Escalation policy tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "lint <policy_path>",
		Short: "Check an escalation policy",
		Args:  exactArgs(1, "<policy_path>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := policy.LoadPolicy(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok policy_id=%s policy_version=%s policy_hash=%s\n",
				loaded.Policy.PolicyID, loaded.Policy.PolicyVersion, loaded.Hash)
			return nil
		},
	})
	return cmd
}
