package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

// usageError marks bad invocations; they exit 2 instead of 1.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args[1:])

	err := root.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, "error:", err)

	var uerr usageError
	if errors.As(err, &uerr) || strings.HasPrefix(err.Error(), "unknown command") {
		fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	return 1
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "triage",
		Short:         "License application triage",
		Long:          "Runs license applications through the review pipeline, records signed audit decisions, and lints templates and policies.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unknown command %q", args[0])
			}
			return usageError{msg: "a command is required"}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{msg: err.Error()}
	})

	opts := &localOptions{}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to triage config file (default $TRIAGE_CONFIG_PATH)")
	root.PersistentFlags().StringVar(&opts.policyPath, "policy", "", "escalation policy path, overrides config")
	root.PersistentFlags().StringVar(&opts.scriptPath, "script", "", "replay script; selects the scripted generator")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for stderr logging")

	root.AddCommand(
		newProcessCmd(opts),
		newBatchCmd(opts),
		newConsistencyCmd(opts),
		newPerformanceCmd(opts),
		newTemplateCmd(),
		newPolicyCmd(),
		newVerifyCmd(),
		newPackCmd(),
	)
	return root
}

func exactArgs(n int, what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError{msg: fmt.Sprintf("%s requires %s", cmd.CommandPath(), what)}
		}
		return nil
	}
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}
